// resolver.go
//
// Turns the raw leaf entries of a tree walk into caller-visible path
// records: absolute path reconstruction via parent links plus metadata
// decoding. Parent-chain resolution is depth-bounded — the tree walk
// already rejects block-level cycles, this layer rejects parent-id
// cycles that can exist even in a structurally acyclic tree.

package bomstore

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// recordCacheSize bounds the per-resolution cache of decoded metadata
// blocks. Hard-link sections and the auxiliary trees re-reference the
// same record blocks, so repeated decodes are common in real files.
const recordCacheSize = 4096

// PathRecord is the caller-visible result for one tree entry: the
// resolved path plus the decoded filesystem metadata.
type PathRecord struct {
	// Path is the absolute-style path with the document root rendered as
	// ".", e.g. "./Applications/Utilities".
	Path string

	// PathType is the decoded entry type; PathTypeUnknown when the type
	// tag was not recognized.
	PathType PathType

	// PathTypeRaw is the on-disk type tag before mapping.
	PathTypeRaw uint8

	// SymbolicMode is the ten-character ls-style rendering of PathType
	// and Mode, e.g. "drwxr-xr-x".
	SymbolicMode string

	// Mode carries the POSIX mode bits exactly as stored.
	Mode uint16

	// UserID and GroupID are the recorded owner and group.
	UserID  uint32
	GroupID uint32

	// ModTime is the recorded modification time in Unix seconds.
	ModTime uint32

	// Size is the recorded byte size.
	Size uint32

	// Checksum is the stored CRC-32 of the entry's contents.
	Checksum uint32

	// LinkName is the symlink target, empty for non-links.
	LinkName string

	// DecodeError carries the reason metadata decoding failed for this
	// record. The path itself is still resolved; a bad record never
	// aborts the document.
	DecodeError string
}

// parentLink is one row of the id table built from the leaf entries.
type parentLink struct {
	parent uint32
	name   string
}

// resolvePaths converts raw leaf entries into PathRecords in traversal
// order.
//
// maxDepth bounds the parent-chain walk per entry; exceeding it fails
// with ErrCyclicParentChain. kinds receives the discovered role of every
// metadata block touched.
func resolvePaths(bi *blockIndex, entries []pathIndexEntry, maxDepth int, kinds map[uint32]BlockKind) ([]PathRecord, []string, error) {
	if len(entries) == 0 {
		return nil, nil, nil
	}

	links := make(map[uint32]parentLink, len(entries))
	for _, e := range entries {
		links[e.id] = parentLink{parent: e.parent, name: e.name}
	}

	cache, err := lru.New[uint32, *pathMetadata](recordCacheSize)
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	records := make([]PathRecord, 0, len(entries))
	for _, e := range entries {
		path, warn, err := resolvePath(links, e.id, maxDepth)
		if err != nil {
			return nil, nil, err
		}
		if warn != "" {
			warnings = append(warnings, warn)
		}

		rec := PathRecord{Path: path}
		md, decodeErr := lookupRecord(bi, cache, e.recordBlock, kinds)
		if decodeErr != nil {
			rec.DecodeError = decodeErr.Error()
		} else {
			rec.PathType = md.pathType
			rec.PathTypeRaw = md.pathTypeRaw
			rec.Mode = md.mode
			rec.SymbolicMode = symbolicMode(md.pathType, md.mode)
			rec.UserID = md.userID
			rec.GroupID = md.groupID
			rec.ModTime = md.modTime
			rec.Size = md.size
			rec.Checksum = md.checksum
			rec.LinkName = md.linkName
		}
		records = append(records, rec)
	}

	return records, warnings, nil
}

// resolvePath walks parent links from id to the root, joining name
// components. The root entry carries name "." and parent 0, so the
// resolved string naturally starts with "./" for non-root entries.
func resolvePath(links map[uint32]parentLink, id uint32, maxDepth int) (string, string, error) {
	var parts []string
	warn := ""

	cur := id
	for depth := 0; ; depth++ {
		if depth > maxDepth {
			return "", "", fmt.Errorf("%w: resolving id %d exceeded depth %d",
				ErrCyclicParentChain, id, maxDepth)
		}
		link, ok := links[cur]
		if !ok {
			// Orphaned subtree: the chain references an id outside the
			// table. Surface what we have rather than dropping the entry.
			warn = fmt.Sprintf("path id %d references unknown parent id %d", id, cur)
			break
		}
		parts = append(parts, link.name)
		if link.parent == 0 {
			break
		}
		cur = link.parent
	}

	// parts was collected leaf-first; reverse into root-first order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/"), warn, nil
}

// lookupRecord decodes the metadata block for one entry, consulting the
// per-resolution cache first. Failures are returned to the caller to be
// flagged on the individual record, never to abort the document.
func lookupRecord(bi *blockIndex, cache *lru.Cache[uint32, *pathMetadata], block uint32, kinds map[uint32]BlockKind) (*pathMetadata, error) {
	if block == 0 {
		return nil, fmt.Errorf("null metadata block")
	}
	if md, ok := cache.Get(block); ok {
		return md, nil
	}

	raw, err := bi.block(block)
	if err != nil {
		return nil, err
	}
	md, err := decodePathRecord(raw)
	if err != nil {
		return nil, err
	}
	kinds[block] = KindPathRecord
	cache.Add(block, md)
	return md, nil
}
