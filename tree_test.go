package bomstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureTree parses a built file far enough to walk a tree variable.
func fixtureTree(t *testing.T, data []byte, varName string) (*blockIndex, uint32) {
	t.Helper()
	bs := newByteStore(data)
	hdr, _, err := parseHeader(bs, false)
	require.NoError(t, err)
	bi, err := parseBlockIndex(bs, hdr.IndexOffset, hdr.IndexLength)
	require.NoError(t, err)
	vars, err := parseVariables(bs, hdr.VarsOffset, hdr.VarsLength)
	require.NoError(t, err)
	root, ok := lookupVariable(vars, varName)
	require.True(t, ok, "fixture must carry variable %q", varName)
	return bi, root
}

func TestParseTreeHeader_RejectsBadTag(t *testing.T) {
	_, err := parseTreeHeader([]byte("eert\x00\x00\x00\x01aaaaaaaaaaaaa"))
	assert.ErrorIs(t, err, ErrMalformedBlock)

	_, err = parseTreeHeader([]byte("tree"))
	assert.ErrorIs(t, err, ErrMalformedBlock, "short block")
}

func TestWalkTree_SingleLeaf(t *testing.T) {
	bi, root := fixtureTree(t, buildStandardBom(), varPaths)

	kinds := map[uint32]BlockKind{}
	entries, warnings, err := walkTree(bi, root, kinds)
	require.NoError(t, err)
	assert.Empty(t, warnings, "declared count matches")
	require.Len(t, entries, 4)

	assert.Equal(t, uint32(1), entries[0].id)
	assert.Equal(t, uint32(0), entries[0].parent)
	assert.Equal(t, ".", entries[0].name)
	assert.Equal(t, "Applications", entries[1].name)
	assert.Equal(t, KindTree, kinds[root], "root block classified during walk")
}

func TestWalkTree_LeafChain(t *testing.T) {
	b := newBomBuilder()

	// Two leaves linked through the forward pointer.
	rec := b.addBlock(encodeRecord(dirSpec(0o755)))
	info1 := b.addBlock(encodePathInfo(1, rec))
	file1 := b.addBlock(encodeFileBlock(0, "."))
	info2 := b.addBlock(encodePathInfo(2, rec))
	file2 := b.addBlock(encodeFileBlock(1, "usr"))

	leaf2 := b.addBlock(encodePathsNode(true, 0, 0, [][2]uint32{{info2, file2}}))
	leaf1 := b.addBlock(encodePathsNode(true, leaf2, 0, [][2]uint32{{info1, file1}}))
	tree := b.addBlock(encodeTreeBlock(leaf1, 2))
	b.addVar(varPaths, tree)

	bi, root := fixtureTree(t, b.build(), varPaths)
	entries, _, err := walkTree(bi, root, map[uint32]BlockKind{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".", entries[0].name)
	assert.Equal(t, "usr", entries[1].name, "forward chain is followed in order")
}

func TestWalkTree_InternalDescent(t *testing.T) {
	b := newBomBuilder()

	rec := b.addBlock(encodeRecord(dirSpec(0o755)))
	info := b.addBlock(encodePathInfo(1, rec))
	file := b.addBlock(encodeFileBlock(0, "."))
	leaf := b.addBlock(encodePathsNode(true, 0, 0, [][2]uint32{{info, file}}))

	// One internal level above the leaf; the key pointer reuses the file
	// block the way real producers do.
	internal := b.addBlock(encodePathsNode(false, 0, 0, [][2]uint32{{leaf, file}}))
	tree := b.addBlock(encodeTreeBlock(internal, 1))
	b.addVar(varPaths, tree)

	bi, root := fixtureTree(t, b.build(), varPaths)
	entries, _, err := walkTree(bi, root, map[uint32]BlockKind{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".", entries[0].name)
}

func TestWalkTree_EmptyTree(t *testing.T) {
	b := newBomBuilder()
	tree := b.addBlock(encodeTreeBlock(0, 0))
	b.addVar(varPaths, tree)

	bi, root := fixtureTree(t, b.build(), varPaths)
	entries, warnings, err := walkTree(bi, root, map[uint32]BlockKind{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, warnings)
}

func TestWalkTree_CountMismatchIsWarning(t *testing.T) {
	b := newBomBuilder()
	rec := b.addBlock(encodeRecord(dirSpec(0o755)))
	info := b.addBlock(encodePathInfo(1, rec))
	file := b.addBlock(encodeFileBlock(0, "."))
	leaf := b.addBlock(encodePathsNode(true, 0, 0, [][2]uint32{{info, file}}))
	tree := b.addBlock(encodeTreeBlock(leaf, 5)) // declares five, holds one
	b.addVar(varPaths, tree)

	bi, root := fixtureTree(t, b.build(), varPaths)
	entries, warnings, err := walkTree(bi, root, map[uint32]BlockKind{})
	require.NoError(t, err, "count mismatch must not be fatal")
	assert.Len(t, entries, 1)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "declares 5")
}

func TestWalkTree_ForwardCycleDetected(t *testing.T) {
	b := newBomBuilder()
	rec := b.addBlock(encodeRecord(dirSpec(0o755)))
	info := b.addBlock(encodePathInfo(1, rec))
	file := b.addBlock(encodeFileBlock(0, "."))

	// A leaf whose forward pointer loops back to itself.
	leaf := b.reserveBlock()
	b.setBlock(leaf, encodePathsNode(true, leaf, 0, [][2]uint32{{info, file}}))
	tree := b.addBlock(encodeTreeBlock(leaf, 1))
	b.addVar(varPaths, tree)

	bi, root := fixtureTree(t, b.build(), varPaths)
	_, _, err := walkTree(bi, root, map[uint32]BlockKind{})
	assert.ErrorIs(t, err, ErrCyclicStructure)
}

func TestWalkTree_DescentCycleDetected(t *testing.T) {
	b := newBomBuilder()
	file := b.addBlock(encodeFileBlock(0, "."))

	// An internal node whose child pointer is itself.
	internal := b.reserveBlock()
	b.setBlock(internal, encodePathsNode(false, 0, 0, [][2]uint32{{internal, file}}))
	tree := b.addBlock(encodeTreeBlock(internal, 1))
	b.addVar(varPaths, tree)

	bi, root := fixtureTree(t, b.build(), varPaths)
	_, _, err := walkTree(bi, root, map[uint32]BlockKind{})
	assert.ErrorIs(t, err, ErrCyclicStructure)
}

func TestWalkTree_NodeCountPastBlock(t *testing.T) {
	b := newBomBuilder()
	// A leaf that declares two entries but only stores one pair.
	raw := encodePathsNode(true, 0, 0, [][2]uint32{{1, 2}})
	raw[3] = 2 // count low byte
	leaf := b.addBlock(raw)
	tree := b.addBlock(encodeTreeBlock(leaf, 2))
	b.addVar(varPaths, tree)

	bi, root := fixtureTree(t, b.build(), varPaths)
	_, _, err := walkTree(bi, root, map[uint32]BlockKind{})
	assert.ErrorIs(t, err, ErrMalformedBlock)
}

func TestWalkTree_NullEntryPointer(t *testing.T) {
	b := newBomBuilder()
	leaf := b.addBlock(encodePathsNode(true, 0, 0, [][2]uint32{{0, 0}}))
	tree := b.addBlock(encodeTreeBlock(leaf, 1))
	b.addVar(varPaths, tree)

	bi, root := fixtureTree(t, b.build(), varPaths)
	_, _, err := walkTree(bi, root, map[uint32]BlockKind{})
	assert.ErrorIs(t, err, ErrMalformedBlock)
}
