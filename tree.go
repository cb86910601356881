// tree.go
//
// Decoder for the B-tree of path records.
// A tree block names a root child; internal child blocks point further
// down, leaf blocks carry runs of path-index entries and chain to the
// next leaf through a forward link. The walk is iterative and tracks
// visited block indices, so a crafted file with self-referential
// pointers produces ErrCyclicStructure instead of looping forever.

package bomstore

import (
	"bytes"
	"fmt"
)

const (
	treeTag            = "tree"
	treeHeaderSize     = 21 // tag(4) + version(4) + child(4) + node size(4) + path count(4) + flag(1)
	pathsNodeHeader    = 12 // leaf flag(2) + count(2) + forward(4) + backward(4)
	pathsNodeEntrySize = 8  // two u32 pointers per entry
)

// treeHeader is the decoded header of a tree block.
type treeHeader struct {
	// version of the tree structure; surfaced but not interpreted.
	version uint32

	// child is the block index of the root paths node. The walk starts
	// here; 0 means the tree is empty.
	child uint32

	// nodeSize is the byte size the producer used for paths nodes.
	nodeSize uint32

	// pathCount is the number of path records the tree declares. The walk
	// cross-checks it against the entries actually produced.
	pathCount uint32

	// indexType is the trailing flag byte. Known producers emit 0 or 1;
	// the value is carried through but does not change the traversal.
	indexType uint8
}

func parseTreeHeader(raw []byte) (treeHeader, error) {
	if len(raw) < treeHeaderSize {
		return treeHeader{}, fmt.Errorf("%w: tree block too short (%d bytes)",
			ErrMalformedBlock, len(raw))
	}
	if string(raw[:4]) != treeTag {
		return treeHeader{}, fmt.Errorf("%w: tree tag %q", ErrMalformedBlock, raw[:4])
	}
	return treeHeader{
		version:   be32(raw[4:]),
		child:     be32(raw[8:]),
		nodeSize:  be32(raw[12:]),
		pathCount: be32(raw[16:]),
		indexType: raw[20],
	}, nil
}

// pathIndexEntry is one raw leaf entry: the identifiers and block
// pointers needed to resolve a single path record.
//
// Entries are owned by the slice walkTree returns; the resolver only
// reads them.
type pathIndexEntry struct {
	// id identifies the entry; parent refers to another entry's id, with
	// 0 marking the root.
	id     uint32
	parent uint32

	// name is the entry's own name component, without any path prefix.
	name string

	// recordBlock is the block index of the entry's metadata record.
	recordBlock uint32
}

// pathsNode is the decoded fixed header of an internal or leaf node.
type pathsNode struct {
	isLeaf   bool
	count    int
	forward  uint32
	backward uint32
	raw      []byte
}

func parsePathsNode(raw []byte, index uint32) (pathsNode, error) {
	if len(raw) < pathsNodeHeader {
		return pathsNode{}, fmt.Errorf("%w: paths node %d too short (%d bytes)",
			ErrMalformedBlock, index, len(raw))
	}
	n := pathsNode{
		isLeaf:   be16(raw) != 0,
		count:    int(be16(raw[2:])),
		forward:  be32(raw[4:]),
		backward: be32(raw[8:]),
		raw:      raw,
	}
	if pathsNodeHeader+n.count*pathsNodeEntrySize > len(raw) {
		return pathsNode{}, fmt.Errorf("%w: paths node %d declares %d entries but holds %d bytes",
			ErrMalformedBlock, index, n.count, len(raw))
	}
	return n, nil
}

// pointers returns the i-th (index0, index1) pointer pair of the node.
// For internal nodes index0 is a child paths block and index1 a
// separating key; for leaves index0 is a path-info block and index1 the
// file block carrying parent id and name.
func (n pathsNode) pointers(i int) (uint32, uint32) {
	base := pathsNodeHeader + i*pathsNodeEntrySize
	return be32(n.raw[base:]), be32(n.raw[base+4:])
}

// walkTree performs the ordered traversal of the tree rooted at root.
//
// It descends leftmost child pointers until it reaches the first leaf,
// then follows the forward chain of leaves, yielding entries in on-disk
// logical order. kinds records the role discovered for every block
// touched, feeding the block enumerator's classification.
//
// A count mismatch between the tree header and the entries actually
// produced is a known benign producer quirk and is reported through the
// returned warnings rather than as an error.
func walkTree(bi *blockIndex, root uint32, kinds map[uint32]BlockKind) ([]pathIndexEntry, []string, error) {
	raw, err := bi.block(root)
	if err != nil {
		return nil, nil, err
	}
	hdr, err := parseTreeHeader(raw)
	if err != nil {
		return nil, nil, err
	}
	kinds[root] = KindTree

	if hdr.child == 0 {
		return nil, countWarning(hdr.pathCount, 0), nil
	}

	visited := make(map[uint32]bool)

	// Descend to the leftmost leaf.
	cur := hdr.child
	var node pathsNode
	for {
		if visited[cur] {
			return nil, nil, fmt.Errorf("%w: paths block %d revisited during descent",
				ErrCyclicStructure, cur)
		}
		visited[cur] = true

		nraw, err := bi.block(cur)
		if err != nil {
			return nil, nil, err
		}
		node, err = parsePathsNode(nraw, cur)
		if err != nil {
			return nil, nil, err
		}
		kinds[cur] = KindPaths

		if node.isLeaf {
			break
		}
		if node.count == 0 {
			return nil, nil, fmt.Errorf("%w: internal paths node %d has no children",
				ErrMalformedBlock, cur)
		}
		child, _ := node.pointers(0)
		if child == 0 {
			return nil, nil, fmt.Errorf("%w: internal paths node %d has a null child pointer",
				ErrMalformedBlock, cur)
		}
		cur = child
	}

	// Follow the forward chain of leaves.
	var entries []pathIndexEntry
	for {
		for i := 0; i < node.count; i++ {
			infoIdx, fileIdx := node.pointers(i)
			entry, err := decodeLeafEntry(bi, cur, infoIdx, fileIdx, kinds)
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, entry)
		}

		next := node.forward
		if next == 0 {
			break
		}
		if visited[next] {
			return nil, nil, fmt.Errorf("%w: leaf chain revisits paths block %d",
				ErrCyclicStructure, next)
		}
		visited[next] = true

		nraw, err := bi.block(next)
		if err != nil {
			return nil, nil, err
		}
		node, err = parsePathsNode(nraw, next)
		if err != nil {
			return nil, nil, err
		}
		if !node.isLeaf {
			return nil, nil, fmt.Errorf("%w: leaf chain reaches internal paths block %d",
				ErrMalformedBlock, next)
		}
		kinds[next] = KindPaths
		cur = next
	}

	return entries, countWarning(hdr.pathCount, len(entries)), nil
}

// decodeLeafEntry resolves the two pointers of one leaf entry: the
// path-info block {id, record block index} and the file block
// {parent id, name}.
func decodeLeafEntry(bi *blockIndex, leaf, infoIdx, fileIdx uint32, kinds map[uint32]BlockKind) (pathIndexEntry, error) {
	if infoIdx == 0 || fileIdx == 0 {
		return pathIndexEntry{}, fmt.Errorf("%w: leaf %d carries a null entry pointer",
			ErrMalformedBlock, leaf)
	}

	info, err := bi.block(infoIdx)
	if err != nil {
		return pathIndexEntry{}, err
	}
	if len(info) < 8 {
		return pathIndexEntry{}, fmt.Errorf("%w: path-info block %d too short (%d bytes)",
			ErrMalformedBlock, infoIdx, len(info))
	}
	kinds[infoIdx] = KindPathInfoIndex

	file, err := bi.block(fileIdx)
	if err != nil {
		return pathIndexEntry{}, err
	}
	if len(file) < 4 {
		return pathIndexEntry{}, fmt.Errorf("%w: file block %d too short (%d bytes)",
			ErrMalformedBlock, fileIdx, len(file))
	}
	kinds[fileIdx] = KindFile

	name := file[4:]
	if nul := bytes.IndexByte(name, 0); nul >= 0 {
		name = name[:nul]
	}

	return pathIndexEntry{
		id:          be32(info),
		parent:      be32(file),
		name:        string(name),
		recordBlock: be32(info[4:]),
	}, nil
}

func countWarning(declared uint32, produced int) []string {
	if int(declared) == produced {
		return nil
	}
	return []string{fmt.Sprintf("tree declares %d path records, traversal produced %d",
		declared, produced)}
}
