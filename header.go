package bomstore

import "fmt"

// Header field layout.
//
// A BOMStore file opens with an eight-byte magic literal followed by six
// big-endian u32 fields. The on-disk header is padded to 512 bytes, but
// only the first 32 carry data; the parser requires just the meaningful
// prefix so that minimal producers remain readable.
const (
	magicSize        = 8  // "BOMStore" literal.
	headerDataSize   = 32 // Magic plus six u32 fields.
	supportedVersion = 1  // The only version observed in the wild.
)

var headerMagic = [magicSize]byte{'B', 'O', 'M', 'S', 't', 'o', 'r', 'e'}

// Header is the decoded fixed file header.
//
// The offset and length pairs locate the block-pointer table and the
// named-variable table inside the input buffer. Both pairs are validated
// against the buffer length before the Header is returned, so downstream
// components may trust them.
type Header struct {
	// Magic holds the eight-byte literal exactly as stored on disk.
	Magic string

	// Version is the format version from the header. Parsing fails on
	// unrecognized values unless Options.LenientVersion is set.
	Version uint32

	// BlockCount is the block total the header declares. The
	// block-pointer table carries its own count; the header value is
	// surfaced for inspection but not trusted for allocation.
	BlockCount uint32

	// IndexOffset and IndexLength locate the block-pointer table.
	IndexOffset uint32
	IndexLength uint32

	// VarsOffset and VarsLength locate the named-variable table.
	VarsOffset uint32
	VarsLength uint32
}

// parseHeader reads and validates the fixed header at offset 0.
//
// With lenient set, an unrecognized version is reported as a warning
// string instead of an ErrUnsupportedVersion failure and parsing proceeds
// best-effort.
func parseHeader(bs *byteStore, lenient bool) (Header, []string, error) {
	// Check the magic before demanding the full fixed prefix, so that
	// arbitrary non-BOM input classifies as InvalidMagic rather than
	// truncation.
	magic, err := bs.section(0, magicSize)
	if err != nil {
		return Header{}, nil, fmt.Errorf("header: %w", err)
	}

	var hdr Header
	hdr.Magic = string(magic)
	if hdr.Magic != string(headerMagic[:]) {
		return Header{}, nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, magic)
	}

	raw, err := bs.section(0, headerDataSize)
	if err != nil {
		return Header{}, nil, fmt.Errorf("header: %w", err)
	}

	hdr.Version = be32(raw[8:])
	hdr.BlockCount = be32(raw[12:])
	hdr.IndexOffset = be32(raw[16:])
	hdr.IndexLength = be32(raw[20:])
	hdr.VarsOffset = be32(raw[24:])
	hdr.VarsLength = be32(raw[28:])

	var warnings []string
	if hdr.Version != supportedVersion {
		if !lenient {
			return Header{}, nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, hdr.Version)
		}
		warnings = append(warnings,
			fmt.Sprintf("unrecognized header version %d, decoding best-effort", hdr.Version))
	}

	// Both sections must lie inside the buffer before anything trusts the
	// offsets.
	if _, err := bs.section(hdr.IndexOffset, hdr.IndexLength); err != nil {
		return Header{}, nil, fmt.Errorf("block index section: %w", err)
	}
	if _, err := bs.section(hdr.VarsOffset, hdr.VarsLength); err != nil {
		return Header{}, nil, fmt.Errorf("variable section: %w", err)
	}

	return hdr, warnings, nil
}
