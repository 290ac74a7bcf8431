package linker

import (
	"bytes"

	"github.com/rvld/ld64/pkg/utils"
)

// readStruct marshals a fixed-layout struct out of data starting at
// offset, using the same little-endian utils.Read generic the rest of
// this package uses for binary layout.
func readStruct[T any](data []byte, offset uint64, out *T) {
	*out = utils.Read[T](data[offset:])
}

// Raw ELF64 structures, laid out by hand rather than through debug/elf so
// that utils.Read can unmarshal them directly from mapped bytes without
// an intermediate allocation per field.

const (
	PageSize = 0x1000
	// ImageBase is the fixed virtual address the first loaded segment
	// starts from. There is no ASLR and no PIE output.
	ImageBase uint64 = 0x400000
)

const (
	SARMAG = 8 // length of the "!<arch>\n" archive magic
)

const (
	sizeofEhdr = 64
	sizeofShdr = 64
	sizeofPhdr = 56
	sizeofSym  = 24
	sizeofRela = 24
)

type Ehdr struct {
	Ident     [16]uint8
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	PhOff     uint64
	ShOff     uint64
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrndx  uint16
}

type Shdr struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

type Phdr struct {
	Type     uint32
	Flags    uint32
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

type Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Val   uint64
	Size  uint64
}

func (s *Sym) IsUndef() bool  { return s.Shndx == uint16(SHN_UNDEF) }
func (s *Sym) IsDefined() bool { return !s.IsUndef() }
func (s *Sym) IsAbs() bool    { return s.Shndx == uint16(SHN_ABS) }
func (s *Sym) Type() uint8    { return s.Info & 0xf }
func (s *Sym) Bind() uint8    { return s.Info >> 4 }
func (s *Sym) IsWeak() bool   { return s.Bind() == STB_WEAK }
func (s *Sym) IsLocal() bool  { return s.Bind() == STB_LOCAL }

// Rela mirrors Elf64_Rela's on-disk layout: r_info packs the symbol index
// into its high 32 bits and the relocation type into its low 32 bits.
type Rela struct {
	Offset uint64
	Info   uint64
	Addend int64
}

func (r *Rela) SymIdx() uint32 { return uint32(r.Info >> 32) }
func (r *Rela) Type() uint32   { return uint32(r.Info) }

func getName(strTab []byte, offset uint32) string {
	if int(offset) >= len(strTab) {
		return ""
	}
	length := bytes.IndexByte(strTab[offset:], 0)
	if length < 0 {
		return string(strTab[offset:])
	}
	return string(strTab[offset : offset+uint32(length)])
}

func writeString(buf []byte, str string) int {
	copy(buf, str)
	buf[len(str)] = 0
	return len(str) + 1
}

// Section/segment flag and type constants, named the way the System V
// gABI and x86_64 psABI name them. Kept local rather than pulled from
// debug/elf so the numeric values driving §4 of the pipeline are visible
// at the call site without a second lookup.
const (
	SHT_NULL     uint32 = 0
	SHT_PROGBITS uint32 = 1
	SHT_SYMTAB   uint32 = 2
	SHT_STRTAB   uint32 = 3
	SHT_RELA     uint32 = 4
	SHT_HASH     uint32 = 5
	SHT_DYNAMIC  uint32 = 6
	SHT_NOTE     uint32 = 7
	SHT_NOBITS   uint32 = 8
	SHT_REL      uint32 = 9
	SHT_GROUP    uint32 = 17
	SHT_INIT_ARRAY uint32 = 14
	SHT_FINI_ARRAY uint32 = 15
)

const (
	SHF_WRITE     uint64 = 0x1
	SHF_ALLOC     uint64 = 0x2
	SHF_EXECINSTR uint64 = 0x4
	SHF_MERGE     uint64 = 0x10
	SHF_STRINGS   uint64 = 0x20
	SHF_TLS       uint64 = 0x400
)

const (
	SHN_UNDEF     uint16 = 0
	SHN_ABS       uint16 = 0xfff1
	SHN_COMMON    uint16 = 0xfff2
	SHN_XINDEX    uint16 = 0xffff
	SHN_LORESERVE uint16 = 0xff00
)

const (
	STB_LOCAL  uint8 = 0
	STB_GLOBAL uint8 = 1
	STB_WEAK   uint8 = 2
)

const (
	ET_REL  uint16 = 1
	ET_EXEC uint16 = 2
)

const (
	EM_X86_64 uint16 = 62
)

const (
	ELFCLASS64    uint8 = 2
	ELFDATA2LSB   uint8 = 1
	EV_CURRENT    uint8 = 1
	ELFOSABI_GNU  uint8 = 3
)

const (
	PT_NULL      uint32 = 0
	PT_LOAD      uint32 = 1
	PT_TLS       uint32 = 7
	PT_GNU_STACK uint32 = 0x6474e551
)

const (
	PF_X uint32 = 0x1
	PF_W uint32 = 0x2
	PF_R uint32 = 0x4
)

// x86_64 relocation types needed by this linker (§4.11's formula table).
// Unsupported psABI types (TLS variants, IRELATIVE, ...) are deliberately
// absent; encountering one fails the link as "unknown type".
const (
	R_X86_64_NONE           uint32 = 0
	R_X86_64_64             uint32 = 1
	R_X86_64_PC32           uint32 = 2
	R_X86_64_GOT32          uint32 = 3
	R_X86_64_PLT32          uint32 = 4
	R_X86_64_GLOB_DAT       uint32 = 6
	R_X86_64_JUMP_SLOT      uint32 = 7
	R_X86_64_32             uint32 = 10
	R_X86_64_32S            uint32 = 11
	R_X86_64_16             uint32 = 12
	R_X86_64_PC16           uint32 = 13
	R_X86_64_8              uint32 = 14
	R_X86_64_PC8            uint32 = 15
	R_X86_64_PC64           uint32 = 24
	R_X86_64_GOTOFF64       uint32 = 25
	R_X86_64_GOTPC32        uint32 = 26
	R_X86_64_GOT64          uint32 = 27
	R_X86_64_GOTPCREL64     uint32 = 28
	R_X86_64_GOTPC64        uint32 = 29
	R_X86_64_SIZE32         uint32 = 32
	R_X86_64_SIZE64         uint32 = 33
	R_X86_64_GOTPCRELX      uint32 = 41
	R_X86_64_REX_GOTPCRELX  uint32 = 42
	R_X86_64_GOTPCREL       uint32 = 9
)

// needsGotEntry is the set from §4.7: relocations whose value formula
// reads G (the symbol's byte offset within .got) require a GOT entry to
// be allocated for their symbol.
func needsGotEntry(typ uint32) bool {
	switch typ {
	case R_X86_64_GOT32, R_X86_64_GOT64, R_X86_64_GOTPCREL, R_X86_64_GOTPCREL64,
		R_X86_64_GOTPCRELX, R_X86_64_REX_GOTPCRELX:
		return true
	default:
		return false
	}
}

const numReservedGotEntries = 3
