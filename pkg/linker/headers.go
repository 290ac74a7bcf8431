package linker

import "github.com/rvld/ld64/pkg/report"

// BuildHeaders implements §4.10: resolve the entry point through the
// now-final layout, assemble the ELF header, and build the section
// header array in the order §4.6 settled on, with a leading null header.
func BuildHeaders(b *Build) error {
	def := b.EntrySymbol
	outSec := b.InToOut[def.ElfIndex][def.Sym.Shndx]
	if outSec == notAnOutputSection {
		return b.R.Report(report.NotOK, "entry symbol does not resolve to a loaded section")
	}
	mv, ok := mapInputOffset(b.Copies[def.ElfIndex][def.Sym.Shndx], def.Sym.Val)
	if !ok {
		return b.R.Report(report.NotOK, "entry symbol value does not map to the output")
	}
	entryAddr := b.Sections[outSec].Addr + mv

	byID := make(map[OutSecID]*OutputSection, len(b.Sections))
	for _, sec := range b.Sections {
		byID[sec.ID] = sec
	}

	b.OutShdrs = append(b.OutShdrs, Shdr{}) // SHN_UNDEF
	for _, id := range b.Order {
		sec := byID[id]
		sh := Shdr{
			Name:      b.ShstrtabNameOffsets[sec.Name],
			Type:      sec.Type,
			Flags:     sec.Flags,
			Addr:      sec.Addr,
			Offset:    sec.FileOff,
			Size:      sec.Size,
			AddrAlign: sec.Align,
		}
		if id == b.SymtabID {
			sh.Link = uint32(shdrIndex(b.Order, b.StrtabID) + 1)
			sh.Info = b.NumLocalSyms
			sh.EntSize = sizeofSym
		}
		b.OutShdrs = append(b.OutShdrs, sh)
	}

	b.Ehdr = Ehdr{
		Type:      ET_EXEC,
		Machine:   EM_X86_64,
		Version:   uint32(EV_CURRENT),
		Entry:     entryAddr,
		PhOff:     sizeofEhdr,
		ShOff:     alignShOff(b),
		EhSize:    sizeofEhdr,
		PhEntSize: sizeofPhdr,
		PhNum:     uint16(len(b.ProgHeaders)),
		ShEntSize: sizeofShdr,
		ShNum:     uint16(len(b.OutShdrs)),
		ShStrndx:  uint16(shdrIndex(b.Order, b.ShstrtabID) + 1),
	}
	b.Ehdr.Ident[0], b.Ehdr.Ident[1], b.Ehdr.Ident[2], b.Ehdr.Ident[3] = 0x7F, 'E', 'L', 'F'
	b.Ehdr.Ident[4] = ELFCLASS64
	b.Ehdr.Ident[5] = ELFDATA2LSB
	b.Ehdr.Ident[6] = EV_CURRENT
	b.Ehdr.Ident[7] = ELFOSABI_GNU

	return nil
}

func shdrIndex(order []OutSecID, id OutSecID) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

// alignShOff places the section header table right after the last
// byte of file content, 8-byte aligned.
func alignShOff(b *Build) uint64 {
	var end uint64
	for _, sec := range b.Sections {
		if sec.isNobits() {
			continue
		}
		if off := sec.FileOff + sec.Size; off > end {
			end = off
		}
	}
	return (end + 7) &^ 7
}
