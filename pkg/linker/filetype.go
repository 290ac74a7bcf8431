package linker

import "bytes"

// FileType is the result of §4.1's magic-byte dispatch.
type FileType int8

const (
	FileTypeUnknown FileType = iota
	FileTypeObject
	FileTypeArchive
)

var elfMagic = [7]byte{0x7F, 'E', 'L', 'F', ELFCLASS64, ELFDATA2LSB, EV_CURRENT}
var arMagic = []byte("!<arch>\n")

// GetFileType classifies a mapped buffer by magic bytes only, exactly as
// §4.1 describes: an ELF64-LSB-v1 candidate, an ar archive, or bad input.
// It does not validate anything beyond the magic; §4.2 does the rest.
func GetFileType(contents []byte) FileType {
	if len(contents) >= len(elfMagic) && bytes.Equal(contents[:len(elfMagic)], elfMagic[:]) {
		return FileTypeObject
	}
	if bytes.HasPrefix(contents, arMagic) {
		return FileTypeArchive
	}
	return FileTypeUnknown
}
