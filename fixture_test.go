// fixture_test.go
//
// Helpers that assemble syntactically valid BOMStore files in memory so
// tests never depend on binary fixtures checked into the repository.

package bomstore

import (
	"bytes"
	"encoding/binary"
)

// bomBuilder accumulates blocks and variables and serializes them into
// the on-disk layout: 512-byte header, variable section, block-pointer
// table, then the block payloads.
type bomBuilder struct {
	blocks [][]byte
	vars   []Variable
}

func newBomBuilder() *bomBuilder { return &bomBuilder{} }

// addBlock appends a block payload and returns its 1-based index
// (index 0 is the implicit null block).
func (b *bomBuilder) addBlock(data []byte) uint32 {
	b.blocks = append(b.blocks, data)
	return uint32(len(b.blocks))
}

// reserveBlock appends a placeholder block whose payload is filled in
// later with setBlock. Needed for structures with forward references,
// such as leaf chains.
func (b *bomBuilder) reserveBlock() uint32 {
	return b.addBlock(nil)
}

func (b *bomBuilder) setBlock(index uint32, data []byte) {
	b.blocks[index-1] = data
}

func (b *bomBuilder) addVar(name string, block uint32) {
	b.vars = append(b.vars, Variable{Name: name, BlockIndex: block})
}

func (b *bomBuilder) build() []byte {
	var varsSec bytes.Buffer
	putU32(&varsSec, uint32(len(b.vars)))
	for _, v := range b.vars {
		putU32(&varsSec, v.BlockIndex)
		varsSec.WriteByte(byte(len(v.Name)))
		varsSec.WriteString(v.Name)
	}

	const fixedHeader = 512
	varsOffset := uint32(fixedHeader)
	indexOffset := varsOffset + uint32(varsSec.Len())

	var indexSec bytes.Buffer
	putU32(&indexSec, uint32(len(b.blocks)+1))
	putU32(&indexSec, 0) // null block offset
	putU32(&indexSec, 0) // null block length
	blockStart := indexOffset + uint32(4+(len(b.blocks)+1)*blockPointerSize)
	addr := blockStart
	for _, blk := range b.blocks {
		putU32(&indexSec, addr)
		putU32(&indexSec, uint32(len(blk)))
		addr += uint32(len(blk))
	}

	var out bytes.Buffer
	out.Write(headerMagic[:])
	putU32(&out, supportedVersion)
	putU32(&out, uint32(len(b.blocks)))
	putU32(&out, indexOffset)
	putU32(&out, uint32(indexSec.Len()))
	putU32(&out, varsOffset)
	putU32(&out, uint32(varsSec.Len()))
	out.Write(make([]byte, fixedHeader-out.Len()))

	out.Write(varsSec.Bytes())
	out.Write(indexSec.Bytes())
	for _, blk := range b.blocks {
		out.Write(blk)
	}
	return out.Bytes()
}

func putU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func putU16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func encodeTreeBlock(child, pathCount uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString(treeTag)
	putU32(&buf, 1)
	putU32(&buf, child)
	putU32(&buf, 4096)
	putU32(&buf, pathCount)
	buf.WriteByte(0)
	return buf.Bytes()
}

func encodePathsNode(isLeaf bool, forward, backward uint32, pairs [][2]uint32) []byte {
	var buf bytes.Buffer
	if isLeaf {
		putU16(&buf, 1)
	} else {
		putU16(&buf, 0)
	}
	putU16(&buf, uint16(len(pairs)))
	putU32(&buf, forward)
	putU32(&buf, backward)
	for _, p := range pairs {
		putU32(&buf, p[0])
		putU32(&buf, p[1])
	}
	return buf.Bytes()
}

func encodePathInfo(id, recordBlock uint32) []byte {
	var buf bytes.Buffer
	putU32(&buf, id)
	putU32(&buf, recordBlock)
	return buf.Bytes()
}

func encodeFileBlock(parent uint32, name string) []byte {
	var buf bytes.Buffer
	putU32(&buf, parent)
	buf.WriteString(name)
	buf.WriteByte(0)
	return buf.Bytes()
}

// recordSpec captures the fields of a synthetic path record.
type recordSpec struct {
	rawType  uint8
	mode     uint16
	uid, gid uint32
	mtime    uint32
	size     uint32
	crc      uint32
	linkName string
}

func encodeRecord(spec recordSpec) []byte {
	var buf bytes.Buffer
	buf.WriteByte(spec.rawType)
	buf.WriteByte(0) // flag
	putU16(&buf, 15) // architecture
	putU16(&buf, spec.mode)
	putU32(&buf, spec.uid)
	putU32(&buf, spec.gid)
	putU32(&buf, spec.mtime)
	putU32(&buf, spec.size)
	buf.WriteByte(0) // trailing flag
	putU32(&buf, spec.crc)
	if spec.linkName != "" {
		putU32(&buf, uint32(len(spec.linkName)+1)) // stored length includes NUL
		buf.WriteString(spec.linkName)
		buf.WriteByte(0)
	} else {
		putU32(&buf, 0)
	}
	return buf.Bytes()
}

// fixtureEntry describes one path entry of a synthetic tree.
type fixtureEntry struct {
	id     uint32
	parent uint32
	name   string
	spec   recordSpec
}

// addTree builds a single-leaf tree for the given entries and returns
// the tree block's index.
func (b *bomBuilder) addTree(entries []fixtureEntry) uint32 {
	pairs := make([][2]uint32, len(entries))
	for i, e := range entries {
		record := b.addBlock(encodeRecord(e.spec))
		info := b.addBlock(encodePathInfo(e.id, record))
		file := b.addBlock(encodeFileBlock(e.parent, e.name))
		pairs[i] = [2]uint32{info, file}
	}
	leaf := b.addBlock(encodePathsNode(true, 0, 0, pairs))
	return b.addBlock(encodeTreeBlock(leaf, uint32(len(entries))))
}

// addTreeVar is addTree plus the variable binding.
func (b *bomBuilder) addTreeVar(varName string, entries []fixtureEntry) uint32 {
	tree := b.addTree(entries)
	b.addVar(varName, tree)
	return tree
}

// encodeVIndexBlock is the indirection block the VIndex variable points
// at; the second field carries the actual tree block index.
func encodeVIndexBlock(tree uint32) []byte {
	var buf bytes.Buffer
	putU32(&buf, 1)
	putU32(&buf, tree)
	putU32(&buf, 0)
	buf.WriteByte(0)
	return buf.Bytes()
}

func dirSpec(mode uint16) recordSpec {
	return recordSpec{rawType: rawTypeDirectory, mode: mode, uid: 0, gid: 80, mtime: 1_600_000_000}
}

func fileSpec(mode uint16, size, crc uint32) recordSpec {
	return recordSpec{rawType: rawTypeFile, mode: mode, uid: 0, gid: 80,
		mtime: 1_600_000_000, size: size, crc: crc}
}

func linkSpec(target string) recordSpec {
	return recordSpec{rawType: rawTypeLink, mode: 0o755, uid: 0, gid: 80,
		mtime: 1_600_000_000, size: uint32(len(target)), linkName: target}
}

// standardEntries is the baseline filesystem tree used across tests:
// a root, a directory, a file, and a symlink.
func standardEntries() []fixtureEntry {
	return []fixtureEntry{
		{id: 1, parent: 0, name: ".", spec: dirSpec(0o755)},
		{id: 2, parent: 1, name: "Applications", spec: dirSpec(0o755)},
		{id: 3, parent: 2, name: "ReadMe.rtf", spec: fileSpec(0o644, 1204, 0xdeadbeef)},
		{id: 4, parent: 2, name: "Current", spec: linkSpec("ReadMe.rtf")},
	}
}

// buildStandardBom assembles the baseline document most tests parse.
func buildStandardBom() []byte {
	b := newBomBuilder()
	b.addTreeVar(varPaths, standardEntries())

	var info bytes.Buffer
	putU32(&info, 1) // version
	putU32(&info, 4) // path count
	putU32(&info, 1) // entry count
	putU32(&info, 7)
	putU32(&info, 0)
	putU32(&info, 0)
	putU32(&info, 0)
	b.addVar(varBomInfo, b.addBlock(info.Bytes()))

	return b.build()
}
