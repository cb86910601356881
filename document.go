// Package bomstore decodes Apple's BOM ("Bill of Materials") container
// format: the pointer-indexed binary file installers use to record a
// filesystem tree with per-entry metadata.
//
// The decoder reads the fixed header, resolves the block-pointer table,
// locates the "Paths" tree through the named-variable table, walks its
// B-tree of path records, and reconstructs absolute paths with
// POSIX-style metadata. Parsing is a pure function of an immutable byte
// buffer: no process-wide state is touched, so the package is safe for
// concurrent calls on distinct inputs without synchronization.
//
// All traversals over the self-referential block graph carry explicit
// visited sets or depth bounds, so truncated, malformed, or adversarial
// inputs produce a classified error instead of a crash or an infinite
// loop.
package bomstore

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/exp/mmap"
)

// Options configures a parse call. The zero value is not the default;
// use DefaultOptions (or pass nil to Parse) and override fields as
// needed.
type Options struct {
	// IncludeBlocks enumerates every raw block with a best-effort kind
	// classification in Document.Blocks. Default true.
	IncludeBlocks bool

	// IncludeRawBlockBytes attaches each enumerated block's bytes as a
	// lowercase hex string. Only meaningful when IncludeBlocks is set.
	// Default false.
	IncludeRawBlockBytes bool

	// LenientVersion downgrades an unrecognized header version from a
	// fatal ErrUnsupportedVersion to a document warning. Default false.
	LenientVersion bool

	// MaxPathDepth bounds the parent-chain walk when resolving a single
	// path. Default 4096.
	MaxPathDepth int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		IncludeBlocks: true,
		MaxPathDepth:  4096,
	}
}

// BlockKind classifies a block's role. Classification is heuristic: the
// roles discovered while walking the trees are authoritative, a leading
// "tree" tag identifies unvisited tree blocks, and everything else falls
// back to KindUnknown. Classification never fails a parse.
type BlockKind byte

const (
	// KindUnknown is the fallback for blocks with no recognized role.
	KindUnknown BlockKind = iota

	// KindEmpty marks zero-length blocks, including the null block 0.
	KindEmpty

	// KindTree is a tree header block.
	KindTree

	// KindPaths is an internal or leaf node of a tree.
	KindPaths

	// KindPathInfoIndex pairs a path id with its record block.
	KindPathInfoIndex

	// KindFile carries a parent id and a name component.
	KindFile

	// KindPathRecord is a path metadata record.
	KindPathRecord

	// KindVIndex is the indirection block the VIndex variable points at.
	KindVIndex

	// KindBomInfo is the summary block the BomInfo variable points at.
	KindBomInfo
)

var blockKindNames = map[BlockKind]string{
	KindUnknown:       "Unknown",
	KindEmpty:         "Empty",
	KindTree:          "Tree",
	KindPaths:         "Paths",
	KindPathInfoIndex: "PathInfoIndex",
	KindFile:          "File",
	KindPathRecord:    "PathRecord",
	KindVIndex:        "VIndex",
	KindBomInfo:       "BomInfo",
}

func (k BlockKind) String() string {
	if name, ok := blockKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// BlockInfo describes one enumerated block.
type BlockInfo struct {
	Index      int
	FileOffset uint32
	Length     uint32
	Kind       BlockKind

	// RawHex holds the block bytes as lowercase hex without separators.
	// Populated only under Options.IncludeRawBlockBytes; its length is
	// always exactly twice the block's byte length.
	RawHex string
}

// BomInfoEntry is one row of the BomInfo summary block. The four fields
// are recorded but their meaning is producer-specific.
type BomInfoEntry struct {
	A, B, C, D uint32
}

// BomInfo is the decoded summary block named by the BomInfo variable.
type BomInfo struct {
	Version   uint32
	PathCount uint32
	Entries   []BomInfoEntry
}

// Document is the fully assembled result of one parse call. It is built
// once from the immutable input buffer and never mutated afterwards.
type Document struct {
	// Format is always "apple-bom".
	Format string

	// ByteLength is the size of the parsed input.
	ByteLength int

	// SourcePath is the file the document was read from; empty for
	// byte-slice inputs.
	SourcePath string

	Header Header

	// BlockCount is the entry count of the block-pointer table, the null
	// block included.
	BlockCount int

	// Variables lists the named-variable table in file order.
	Variables []Variable

	// Info is the decoded BomInfo summary, nil when the variable is
	// absent or failed to decode (see SectionErrors).
	Info *BomInfo

	// Blocks enumerates every block when Options.IncludeBlocks is set;
	// nil otherwise.
	Blocks []BlockInfo

	// Paths holds the records of the main Paths tree in traversal order;
	// nil when the Paths variable is absent.
	Paths []PathRecord

	// HLIndex, Size64 and VIndex hold the records of the corresponding
	// auxiliary trees when present and decodable.
	HLIndex []PathRecord
	Size64  []PathRecord
	VIndex  []PathRecord

	// SectionErrors maps an optional section name to the reason it could
	// not be decoded. Failures here never abort the parse.
	SectionErrors map[string]string

	// Warnings collects non-fatal oddities: version leniency, count
	// mismatches, orphaned parent references.
	Warnings []string
}

// Parse decodes a BOM from data.
//
// A nil opts uses DefaultOptions. Errors in the header, block-pointer
// table, variable table, or the main Paths tree are fatal and wrap one
// of the package's sentinel errors; optional sections fail soft into
// Document.SectionErrors.
func Parse(data []byte, opts *Options) (*Document, error) {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if o.MaxPathDepth <= 0 {
		o.MaxPathDepth = DefaultOptions().MaxPathDepth
	}

	bs := newByteStore(data)
	hdr, warnings, err := parseHeader(bs, o.LenientVersion)
	if err != nil {
		return nil, err
	}

	bi, err := parseBlockIndex(bs, hdr.IndexOffset, hdr.IndexLength)
	if err != nil {
		return nil, err
	}

	vars, err := parseVariables(bs, hdr.VarsOffset, hdr.VarsLength)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Format:        "apple-bom",
		ByteLength:    len(data),
		Header:        hdr,
		BlockCount:    bi.count(),
		Variables:     vars,
		SectionErrors: map[string]string{},
		Warnings:      warnings,
	}

	kinds := map[uint32]BlockKind{}

	// The main Paths tree: absence is legal, malformation is fatal.
	if root, ok := lookupVariable(vars, varPaths); ok {
		records, warns, err := decodeTreeSection(bi, root, o.MaxPathDepth, kinds)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", varPaths, err)
		}
		doc.Paths = records
		doc.Warnings = append(doc.Warnings, warns...)
	}

	// Auxiliary sections fail soft: a bad HLIndex must not hide a good
	// Paths manifest.
	doc.HLIndex = decodeOptionalTree(doc, bi, varHLIndex, o.MaxPathDepth, kinds)
	doc.Size64 = decodeOptionalTree(doc, bi, varSize64, o.MaxPathDepth, kinds)
	doc.VIndex = decodeVIndexSection(doc, bi, o.MaxPathDepth, kinds)
	doc.Info = decodeBomInfo(doc, bi, kinds)

	if o.IncludeBlocks {
		doc.Blocks = enumerateBlocks(bi, kinds, o.IncludeRawBlockBytes)
	}

	if len(doc.SectionErrors) == 0 {
		doc.SectionErrors = nil
	}
	return doc, nil
}

// ParseFile decodes a BOM from a file on disk. The file is read through
// a read-only memory map and released before returning; the resulting
// Document does not reference the mapping.
func ParseFile(path string, opts *Options) (*Document, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	data := make([]byte, r.Len())
	if len(data) > 0 {
		if _, err := r.ReadAt(data, 0); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	doc, err := Parse(data, opts)
	if err != nil {
		return nil, err
	}
	doc.SourcePath = path
	return doc, nil
}

// decodeTreeSection runs the walk plus path resolution for one tree.
func decodeTreeSection(bi *blockIndex, root uint32, maxDepth int, kinds map[uint32]BlockKind) ([]PathRecord, []string, error) {
	entries, warns, err := walkTree(bi, root, kinds)
	if err != nil {
		return nil, nil, err
	}
	records, moreWarns, err := resolvePaths(bi, entries, maxDepth, kinds)
	if err != nil {
		return nil, nil, err
	}
	return records, append(warns, moreWarns...), nil
}

// decodeOptionalTree decodes the tree named by an auxiliary variable.
// A missing variable yields nil with no error; a decode failure lands in
// doc.SectionErrors.
func decodeOptionalTree(doc *Document, bi *blockIndex, name string, maxDepth int, kinds map[uint32]BlockKind) []PathRecord {
	root, ok := lookupVariable(doc.Variables, name)
	if !ok {
		return nil
	}
	records, warns, err := decodeTreeSection(bi, root, maxDepth, kinds)
	if err != nil {
		doc.SectionErrors[name] = err.Error()
		return nil
	}
	doc.Warnings = append(doc.Warnings, warns...)
	return records
}

// decodeVIndexSection resolves the VIndex variable, which points at an
// indirection block whose second field is the actual tree block index.
func decodeVIndexSection(doc *Document, bi *blockIndex, maxDepth int, kinds map[uint32]BlockKind) []PathRecord {
	idx, ok := lookupVariable(doc.Variables, varVIndex)
	if !ok {
		return nil
	}
	raw, err := bi.block(idx)
	if err != nil {
		doc.SectionErrors[varVIndex] = err.Error()
		return nil
	}
	if len(raw) < 8 {
		doc.SectionErrors[varVIndex] = fmt.Sprintf("vindex block too short (%d bytes)", len(raw))
		return nil
	}
	kinds[idx] = KindVIndex

	treeRoot := be32(raw[4:])
	records, warns, err := decodeTreeSection(bi, treeRoot, maxDepth, kinds)
	if err != nil {
		doc.SectionErrors[varVIndex] = err.Error()
		return nil
	}
	doc.Warnings = append(doc.Warnings, warns...)
	return records
}

// decodeBomInfo decodes the summary block named by the BomInfo variable:
// u32 version, u32 path count, u32 entry count, then entry-count rows of
// four u32s.
func decodeBomInfo(doc *Document, bi *blockIndex, kinds map[uint32]BlockKind) *BomInfo {
	idx, ok := lookupVariable(doc.Variables, varBomInfo)
	if !ok {
		return nil
	}
	raw, err := bi.block(idx)
	if err != nil {
		doc.SectionErrors[varBomInfo] = err.Error()
		return nil
	}
	if len(raw) < 12 {
		doc.SectionErrors[varBomInfo] = fmt.Sprintf("info block too short (%d bytes)", len(raw))
		return nil
	}

	info := &BomInfo{
		Version:   be32(raw),
		PathCount: be32(raw[4:]),
	}
	entryCount := int(be32(raw[8:]))
	if 12+entryCount*16 > len(raw) {
		doc.SectionErrors[varBomInfo] = fmt.Sprintf(
			"info block declares %d entries but holds %d bytes", entryCount, len(raw))
		return nil
	}
	for i := 0; i < entryCount; i++ {
		base := 12 + i*16
		info.Entries = append(info.Entries, BomInfoEntry{
			A: be32(raw[base:]),
			B: be32(raw[base+4:]),
			C: be32(raw[base+8:]),
			D: be32(raw[base+12:]),
		})
	}
	kinds[idx] = KindBomInfo
	return info
}

// enumerateBlocks lists every block-table entry with its classified
// kind. Entries whose byte range is invalid are still listed, as
// KindUnknown with no raw bytes; enumeration never fails the parse.
func enumerateBlocks(bi *blockIndex, kinds map[uint32]BlockKind, withRaw bool) []BlockInfo {
	blocks := make([]BlockInfo, 0, bi.count())
	for i := 0; i < bi.count(); i++ {
		e := bi.entry(i)
		info := BlockInfo{
			Index:      i,
			FileOffset: e.offset,
			Length:     e.length,
			Kind:       KindUnknown,
		}

		raw, err := bi.block(uint32(i))
		switch {
		case err != nil:
			// Unresolvable range; leave Unknown.
		case len(raw) == 0:
			info.Kind = KindEmpty
		default:
			if k, ok := kinds[uint32(i)]; ok {
				info.Kind = k
			} else if len(raw) >= treeHeaderSize && string(raw[:4]) == treeTag {
				info.Kind = KindTree
			}
			if withRaw {
				info.RawHex = hex.EncodeToString(raw)
			}
		}
		blocks = append(blocks, info)
	}
	return blocks
}
