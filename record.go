// record.go
//
// Decoder for path metadata records and the ls-style symbolic mode
// rendering derived from them.

package bomstore

import "fmt"

// PathType enumerates the kinds of filesystem entries a BOM records.
//
// The zero value, PathTypeUnknown, denotes an unrecognized type tag.
// Unknown tags never fail a parse; the record is surfaced with this type
// and a decode note so that the rest of the document remains usable.
type PathType byte

const (
	// PathTypeUnknown represents an unrecognized entry type tag.
	PathTypeUnknown PathType = iota

	// PathTypeFile is a regular file.
	PathTypeFile

	// PathTypeDirectory is a directory.
	PathTypeDirectory

	// PathTypeSymlink is a symbolic link.
	PathTypeSymlink

	// PathTypeSocket is a UNIX domain socket.
	PathTypeSocket

	// PathTypeBlockDevice is a block special device.
	PathTypeBlockDevice

	// PathTypeCharDevice is a character special device.
	PathTypeCharDevice

	// PathTypeFifo is a named pipe.
	PathTypeFifo
)

var pathTypeNames = map[PathType]string{
	PathTypeUnknown:     "unknown",
	PathTypeFile:        "file",
	PathTypeDirectory:   "directory",
	PathTypeSymlink:     "symlink",
	PathTypeSocket:      "socket",
	PathTypeBlockDevice: "block-device",
	PathTypeCharDevice:  "char-device",
	PathTypeFifo:        "fifo",
}

func (t PathType) String() string {
	if name, ok := pathTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Raw entry type tags as stored in path record blocks.
const (
	rawTypeFile      = 1
	rawTypeDirectory = 2
	rawTypeLink      = 3
	rawTypeDevice    = 4
)

// POSIX mode bits. The record's mode field carries the familiar
// permission bits plus, on some producers, the file-format bits in the
// high nibble.
const (
	modeFormatMask = 0xF000
	modeSocket     = 0xC000
	modeSymlink    = 0xA000
	modeRegular    = 0x8000
	modeBlockDev   = 0x6000
	modeDirectory  = 0x4000
	modeCharDev    = 0x2000
	modeFifo       = 0x1000

	modeSetuid = 0o4000
	modeSetgid = 0o2000
	modeSticky = 0o1000
)

// pathMetadata is the decoded contents of one path record block.
type pathMetadata struct {
	pathType    PathType
	pathTypeRaw uint8

	// arch is the architecture field; recorded but not interpreted.
	arch uint16

	mode    uint16
	userID  uint32
	groupID uint32
	modTime uint32
	size    uint32

	checksum uint32
	linkName string
}

// decodePathRecord parses a path record block.
//
// The fixed prefix through the size field is mandatory. The trailing
// checksum and link-name fields are decoded when present; older or
// minimal producers truncate records after the fields they populate, so
// a short tail is not an error.
func decodePathRecord(raw []byte) (*pathMetadata, error) {
	// type(1) + flag(1) + arch(2) + mode(2) + uid(4) + gid(4) + mtime(4) + size(4)
	const fixedPrefix = 22
	if len(raw) < fixedPrefix {
		return nil, fmt.Errorf("%w: path record too short (%d bytes)",
			ErrMalformedBlock, len(raw))
	}

	md := &pathMetadata{
		pathTypeRaw: raw[0],
		arch:        be16(raw[2:]),
		mode:        be16(raw[4:]),
		userID:      be32(raw[6:]),
		groupID:     be32(raw[10:]),
		modTime:     be32(raw[14:]),
		size:        be32(raw[18:]),
	}
	md.pathType = classifyPathType(md.pathTypeRaw, md.mode)

	// Optional tail: flag(1) + checksum(4) + link name length(4) + link name.
	if len(raw) >= fixedPrefix+9 {
		md.checksum = be32(raw[fixedPrefix+1:])
		linkLen := be32(raw[fixedPrefix+5:])
		if linkLen > 0 {
			nameStart := fixedPrefix + 9
			if uint64(nameStart)+uint64(linkLen) > uint64(len(raw)) {
				return nil, fmt.Errorf("%w: link name of %d bytes runs past %d-byte record",
					ErrMalformedBlock, linkLen, len(raw))
			}
			name := raw[nameStart : nameStart+int(linkLen)]
			// Producers include the terminating NUL in the stored length.
			if name[len(name)-1] == 0 {
				name = name[:len(name)-1]
			}
			md.linkName = string(name)
		}
	}

	return md, nil
}

// classifyPathType maps the raw type tag to the closed PathType set.
// The mode's format bits refine ambiguous tags: a device entry is split
// into block or character special, and file entries whose format bits say
// otherwise are surfaced as sockets or fifos.
func classifyPathType(rawType uint8, mode uint16) PathType {
	switch rawType {
	case rawTypeFile:
		switch mode & modeFormatMask {
		case modeSocket:
			return PathTypeSocket
		case modeFifo:
			return PathTypeFifo
		}
		return PathTypeFile
	case rawTypeDirectory:
		return PathTypeDirectory
	case rawTypeLink:
		return PathTypeSymlink
	case rawTypeDevice:
		switch mode & modeFormatMask {
		case modeBlockDev:
			return PathTypeBlockDevice
		case modeFifo:
			return PathTypeFifo
		case modeSocket:
			return PathTypeSocket
		}
		return PathTypeCharDevice
	}
	return PathTypeUnknown
}

var pathTypeChars = map[PathType]byte{
	PathTypeUnknown:     '?',
	PathTypeFile:        '-',
	PathTypeDirectory:   'd',
	PathTypeSymlink:     'l',
	PathTypeSocket:      's',
	PathTypeBlockDevice: 'b',
	PathTypeCharDevice:  'c',
	PathTypeFifo:        'p',
}

// symbolicMode renders the ten-character mode string the way ls does:
// a type character followed by three rwx triples with the setuid, setgid
// and sticky overlays.
func symbolicMode(t PathType, mode uint16) string {
	var out [10]byte
	out[0] = pathTypeChars[t]

	const rwx = "rwxrwxrwx"
	for i := 0; i < 9; i++ {
		if mode&(1<<uint(8-i)) != 0 {
			out[1+i] = rwx[i]
		} else {
			out[1+i] = '-'
		}
	}

	if mode&modeSetuid != 0 {
		out[3] = overlay(out[3], 's', 'S')
	}
	if mode&modeSetgid != 0 {
		out[6] = overlay(out[6], 's', 'S')
	}
	if mode&modeSticky != 0 {
		out[9] = overlay(out[9], 't', 'T')
	}

	return string(out[:])
}

// overlay picks the lowercase form when the underlying execute bit is
// set and the uppercase form when it is not.
func overlay(current, set, unset byte) byte {
	if current == 'x' {
		return set
	}
	return unset
}
