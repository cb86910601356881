package bomstore

import "fmt"

// Well-known variable names. A BOM may carry others; these are the ones
// the decoder interprets.
const (
	varPaths   = "Paths"
	varHLIndex = "HLIndex"
	varSize64  = "Size64"
	varVIndex  = "VIndex"
	varBomInfo = "BomInfo"
)

// Variable is one entry of the named-variable table: a well-known name
// mapped to the block index it points at.
type Variable struct {
	// Name is the variable name exactly as stored, without the length
	// prefix.
	Name string

	// BlockIndex is the block the variable names. 0 means the null block.
	BlockIndex uint32
}

// parseVariables reads the named-variable section.
//
// The section opens with a u32 count followed by count entries of
// {u32 block index, u8 name length, name bytes}. File order is preserved
// in the returned slice; duplicate names are legal and resolved by
// lookupVariable.
func parseVariables(bs *byteStore, offset, length uint32) ([]Variable, error) {
	sec, err := bs.section(offset, length)
	if err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	if len(sec) < 4 {
		return nil, fmt.Errorf("%w: variable section too short (%d bytes)",
			ErrMalformedBlock, len(sec))
	}

	count := be32(sec)
	vars := make([]Variable, 0, min(int(count), len(sec)/5))
	cursor := 4
	for i := uint32(0); i < count; i++ {
		if cursor+5 > len(sec) {
			return nil, fmt.Errorf("%w: variable %d header runs past section end",
				ErrMalformedBlock, i)
		}
		blockIdx := be32(sec[cursor:])
		nameLen := int(sec[cursor+4])
		cursor += 5
		if cursor+nameLen > len(sec) {
			return nil, fmt.Errorf("%w: variable %d name runs past section end",
				ErrMalformedBlock, i)
		}
		vars = append(vars, Variable{
			Name:       string(sec[cursor : cursor+nameLen]),
			BlockIndex: blockIdx,
		})
		cursor += nameLen
	}

	return vars, nil
}

// lookupVariable returns the block index of the first variable with the
// given name, scanning in file order.
//
// First-match-wins is a deliberate policy, not an accident of map
// insertion: producers have historically emitted duplicate names and the
// first occurrence is the canonical one.
func lookupVariable(vars []Variable, name string) (uint32, bool) {
	for _, v := range vars {
		if v.Name == name {
			return v.BlockIndex, true
		}
	}
	return 0, false
}
