package bomstore

import "errors"

// Parse failures form a closed set of sentinel errors. Every error
// returned by Parse wraps exactly one of these, so callers can classify
// failures with errors.Is without string matching.
var (
	// ErrInvalidMagic reports that the first eight bytes of the input are
	// not the "BOMStore" literal.
	ErrInvalidMagic = errors.New("bom: invalid magic")

	// ErrUnsupportedVersion reports an unrecognized header version field.
	// Options.LenientVersion downgrades this to a document warning.
	ErrUnsupportedVersion = errors.New("bom: unsupported version")

	// ErrTruncatedInput reports that the buffer is shorter than a section
	// the header claims to contain.
	ErrTruncatedInput = errors.New("bom: truncated input")

	// ErrOffsetOutOfRange reports a block pointer or read that extends
	// past the end of the input buffer.
	ErrOffsetOutOfRange = errors.New("bom: offset out of range")

	// ErrInvalidBlockIndex reports a block reference outside the parsed
	// block-pointer table.
	ErrInvalidBlockIndex = errors.New("bom: invalid block index")

	// ErrMalformedBlock reports a block whose contents do not match the
	// structure its role requires.
	ErrMalformedBlock = errors.New("bom: malformed block")

	// ErrCyclicStructure reports a tree whose block pointers revisit a
	// block already seen during traversal.
	ErrCyclicStructure = errors.New("bom: cyclic block structure")

	// ErrCyclicParentChain reports a parent-id chain that exceeds the
	// configured depth bound while resolving a path.
	ErrCyclicParentChain = errors.New("bom: cyclic parent chain")
)
