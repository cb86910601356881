// bytestore.go
//
// Bounds-checked accessors over the raw BOM input buffer.
// Every integer in the format is big-endian, and every other file in the
// package reads the buffer exclusively through byteStore, so a crafted
// offset can never slice past the end of the input.

package bomstore

import (
	"encoding/binary"
	"fmt"
)

// byteStore wraps the immutable input buffer behind range-checked reads.
//
// All accessors return ErrOffsetOutOfRange when the requested range
// extends past the buffer end; section additionally distinguishes
// header-claimed regions with ErrTruncatedInput. A byteStore never copies
// the underlying data, so returned slices alias the caller's buffer and
// must be treated as read-only.
type byteStore struct {
	data []byte
}

func newByteStore(data []byte) *byteStore { return &byteStore{data: data} }

func (bs *byteStore) size() int { return len(bs.data) }

// slice returns the byte range [offset, offset+length).
// The arithmetic is done in 64 bits so that offset+length cannot wrap on
// adversarial inputs.
func (bs *byteStore) slice(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(bs.data)) {
		return nil, fmt.Errorf("%w: [%d, %d) exceeds %d-byte input",
			ErrOffsetOutOfRange, offset, end, len(bs.data))
	}
	return bs.data[offset:end:end], nil
}

// section is slice for regions the header claims to exist.
// A short buffer here means the file was cut off, so the error kind is
// ErrTruncatedInput rather than ErrOffsetOutOfRange.
func (bs *byteStore) section(offset, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(bs.data)) {
		return nil, fmt.Errorf("%w: section [%d, %d) exceeds %d-byte input",
			ErrTruncatedInput, offset, end, len(bs.data))
	}
	return bs.data[offset:end:end], nil
}

func (bs *byteStore) u8(offset uint32) (uint8, error) {
	b, err := bs.slice(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (bs *byteStore) u16(offset uint32) (uint16, error) {
	b, err := bs.slice(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (bs *byteStore) u32(offset uint32) (uint32, error) {
	b, err := bs.slice(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Shorthands for reads inside a slice whose length has already been
// checked by the caller.
func be16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func be32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
