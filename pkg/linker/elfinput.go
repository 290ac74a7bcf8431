package linker

import (
	"github.com/rvld/ld64/pkg/report"
)

// ElfInput is the "ELF input" of §3: a base pointer (Data), a typed
// section-header sequence, and a section-name string-table pointer.
// Created once during parsing or archive extraction and never mutated
// afterward. Its position in LinkState.Inputs is its elfIndex.
type ElfInput struct {
	Name string // diagnostic name: file path, or "archive(member)"
	Data []byte

	SortKey SortKey

	Ehdr  Ehdr
	Shdrs []Shdr

	ShStrTab []byte

	// SymTabIdx is the section-header index of the first SYMTAB section,
	// or -1 if this input has none.
	SymTabIdx int
	Syms      []Sym
	StrTab    []byte
	// NumLocalSyms is sh_info of the SYMTAB section: one past the last
	// local symbol's index.
	NumLocalSyms uint32

	FromArchive bool
}

func (in *ElfInput) sectionName(sh *Shdr) string {
	return getName(in.ShStrTab, sh.Name)
}

// parseElfInput implements §4.2. It does not check the e_ident magic:
// eager inputs have it checked by GetFileType beforehand, archive members
// extracted in §4.12 are parsed without that check.
func parseElfInput(r *report.Reporter, name string, data []byte, sortKey SortKey, fromArchive bool) (*ElfInput, error) {
	if len(data) < sizeofEhdr {
		return nil, r.Report(report.BadInputFile, name, ": file too small for an ELF header")
	}

	var ehdr Ehdr
	readStruct(data, 0, &ehdr)

	if ehdr.Type != ET_REL {
		return nil, r.Report(report.BadInputFile, name, ": not a relocatable object (e_type != ET_REL)")
	}
	if ehdr.Machine != EM_X86_64 {
		return nil, r.Report(report.BadInputFile, name, ": not an x86_64 object")
	}
	if ehdr.ShEntSize != sizeofShdr {
		return nil, r.Report(report.BadInputFile, name, ": unexpected e_shentsize")
	}
	if ehdr.ShNum < 1 || ehdr.ShNum >= SHN_LORESERVE {
		return nil, r.Report(report.BadInputFile, name, ": invalid e_shnum")
	}
	if ehdr.ShStrndx == SHN_XINDEX {
		return nil, r.Report(report.BadInputFile, name, ": SHN_XINDEX section name string table is unsupported")
	}

	shoff := ehdr.ShOff
	shnum := int(ehdr.ShNum)
	tableEnd := shoff + uint64(shnum)*sizeofShdr
	if tableEnd > uint64(len(data)) {
		return nil, r.Report(report.BadInputFile, name, ": section header table out of bounds")
	}

	shdrs := make([]Shdr, shnum)
	for i := 0; i < shnum; i++ {
		readStruct(data, shoff+uint64(i)*sizeofShdr, &shdrs[i])
	}

	for i := range shdrs {
		sh := &shdrs[i]
		if sh.Type == SHT_GROUP {
			return nil, r.Report(report.BadInputFile, name, ": SHT_GROUP sections are unsupported")
		}
		if sh.Type != SHT_NOBITS && sh.Offset+sh.Size > uint64(len(data)) {
			return nil, r.Report(report.BadInputFile, name, ": section content out of bounds")
		}
	}

	if int(ehdr.ShStrndx) >= shnum {
		return nil, r.Report(report.BadInputFile, name, ": e_shstrndx out of range")
	}
	shstrSh := shdrs[ehdr.ShStrndx]
	if shstrSh.Offset+shstrSh.Size > uint64(len(data)) {
		return nil, r.Report(report.BadInputFile, name, ": section name string table out of bounds")
	}
	shstrtab := data[shstrSh.Offset : shstrSh.Offset+shstrSh.Size]

	in := &ElfInput{
		Name:        name,
		Data:        data,
		SortKey:     sortKey,
		Ehdr:        ehdr,
		Shdrs:       shdrs,
		ShStrTab:    shstrtab,
		SymTabIdx:   -1,
		FromArchive: fromArchive,
	}

	for i := range shdrs {
		if shdrs[i].Type == SHT_SYMTAB {
			in.SymTabIdx = i
			break
		}
	}
	if in.SymTabIdx >= 0 {
		symSh := shdrs[in.SymTabIdx]
		if symSh.EntSize != 0 && symSh.EntSize != sizeofSym {
			return nil, r.Report(report.BadInputFile, name, ": unexpected symtab entry size")
		}
		numSyms := int(symSh.Size / sizeofSym)
		syms := make([]Sym, numSyms)
		for i := 0; i < numSyms; i++ {
			readStruct(data, symSh.Offset+uint64(i)*sizeofSym, &syms[i])
		}
		in.Syms = syms
		in.NumLocalSyms = symSh.Info

		if int(symSh.Link) < len(shdrs) {
			strSh := shdrs[symSh.Link]
			in.StrTab = data[strSh.Offset : strSh.Offset+strSh.Size]
		}
	}

	return in, nil
}

func (in *ElfInput) symbolName(sym *Sym) string {
	return getName(in.StrTab, sym.Name)
}
