package bomstore

import "fmt"

const blockPointerSize = 8 // u32 file offset + u32 length per entry.

// blockEntry is one pointer in the flat block table: a contiguous byte
// range inside the input buffer.
type blockEntry struct {
	offset uint32
	length uint32
}

// blockIndex is the arena every logical record in a BOM resolves through.
//
// Blocks are addressed by integer index; index 0 is the reserved null
// block, so a pointer value of 0 always means "no block". Every
// dereference goes through block, which bounds-checks both the index and
// the referenced byte range — the primary defense against a crafted file
// pointing outside itself.
type blockIndex struct {
	bs      *byteStore
	entries []blockEntry
}

// parseBlockIndex reads the block-pointer table section.
//
// The section opens with a u32 entry count followed by that many
// (offset, length) pairs. The declared count is validated against the
// section length before allocation, so a forged count cannot force a
// giant allocation or a wrapped length calculation.
func parseBlockIndex(bs *byteStore, offset, length uint32) (*blockIndex, error) {
	sec, err := bs.section(offset, length)
	if err != nil {
		return nil, fmt.Errorf("block index: %w", err)
	}
	if len(sec) < 4 {
		return nil, fmt.Errorf("%w: block index section too short (%d bytes)",
			ErrMalformedBlock, len(sec))
	}

	count := be32(sec)
	if uint64(count)*blockPointerSize > uint64(len(sec)-4) {
		return nil, fmt.Errorf("%w: block index declares %d entries but section holds %d bytes",
			ErrMalformedBlock, count, len(sec))
	}

	entries := make([]blockEntry, count)
	for i := range entries {
		base := 4 + i*blockPointerSize
		entries[i] = blockEntry{
			offset: be32(sec[base:]),
			length: be32(sec[base+4:]),
		}
	}

	return &blockIndex{bs: bs, entries: entries}, nil
}

func (bi *blockIndex) count() int { return len(bi.entries) }

// block resolves index i to its byte range.
//
// Index 0 is the null block and yields an empty slice regardless of what
// the table entry contains. Out-of-table indices fail with
// ErrInvalidBlockIndex; in-table entries whose range escapes the buffer
// fail with ErrOffsetOutOfRange.
func (bi *blockIndex) block(i uint32) ([]byte, error) {
	if i == 0 {
		return nil, nil
	}
	if int64(i) >= int64(len(bi.entries)) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidBlockIndex, i, len(bi.entries))
	}
	e := bi.entries[i]
	raw, err := bi.bs.slice(e.offset, e.length)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", i, err)
	}
	return raw, nil
}

// entry returns the raw table entry for i without touching the pointed-to
// bytes. Used by the block enumerator, which reports even entries whose
// ranges are invalid.
func (bi *blockIndex) entry(i int) blockEntry { return bi.entries[i] }
