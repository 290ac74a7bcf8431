package linker

import "sort"

// symtabEntry is one row destined for .symtab. Its address-dependent
// field (Value) is left unresolved until FinalizeSyntheticSections runs,
// after layout has assigned every output section a virtual address.
type symtabEntry struct {
	Name      string
	StrOffset uint32
	Info      uint8
	Other     uint8
	OutSec    OutSecID // notAnOutputSection for absolute symbols
	IsAbs     bool
	AbsValue  uint64
	Offset    uint64 // output-section-relative offset, valid when !IsAbs
}

func appendStrtab(buf []byte, name string) ([]byte, uint32) {
	off := uint32(len(buf))
	buf = append(buf, name...)
	buf = append(buf, 0)
	return buf, off
}

func gatherLocalSymtabEntries(b *Build) []symtabEntry {
	var entries []symtabEntry
	for elfIdx, in := range b.LS.Inputs {
		for i := uint32(1); i < in.NumLocalSyms && int(i) < len(in.Syms); i++ {
			sym := &in.Syms[i]
			if sym.Shndx == SHN_UNDEF || sym.Shndx == SHN_COMMON {
				continue
			}
			name := in.symbolName(sym)
			if sym.IsAbs() {
				entries = append(entries, symtabEntry{Name: name, Info: sym.Info, Other: sym.Other, OutSec: notAnOutputSection, IsAbs: true, AbsValue: sym.Val})
				continue
			}
			if int(sym.Shndx) >= len(b.InToOut[elfIdx]) {
				continue
			}
			outSec := b.InToOut[elfIdx][sym.Shndx]
			if outSec == notAnOutputSection {
				continue
			}
			if b.Sections[outSec].Flags&SHF_ALLOC == 0 {
				continue
			}
			mv, ok := mapInputOffset(b.Copies[elfIdx][sym.Shndx], sym.Val)
			if !ok {
				continue
			}
			entries = append(entries, symtabEntry{Name: name, Info: sym.Info, Other: sym.Other, OutSec: outSec, Offset: mv})
		}
	}
	return entries
}

func gatherGlobalSymtabEntries(b *Build) []symtabEntry {
	names := make([]string, 0, len(b.LS.Symbols))
	for name, entry := range b.LS.Symbols {
		if entry.FirstLoad != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var entries []symtabEntry
	for _, name := range names {
		def := b.LS.Symbols[name].FirstLoad
		sym := def.Sym
		if sym.IsAbs() {
			entries = append(entries, symtabEntry{Name: name, Info: sym.Info, Other: sym.Other, OutSec: notAnOutputSection, IsAbs: true, AbsValue: sym.Val})
			continue
		}
		if int(sym.Shndx) >= len(b.InToOut[def.ElfIndex]) {
			continue
		}
		outSec := b.InToOut[def.ElfIndex][sym.Shndx]
		if outSec == notAnOutputSection {
			continue
		}
		if b.Sections[outSec].Flags&SHF_ALLOC == 0 {
			continue
		}
		mv, ok := mapInputOffset(b.Copies[def.ElfIndex][sym.Shndx], sym.Val)
		if !ok {
			continue
		}
		entries = append(entries, symtabEntry{Name: name, Info: sym.Info, Other: sym.Other, OutSec: outSec, Offset: mv})
	}
	return entries
}

// RegisterSyntheticSections implements the first half of §4.9: size and
// register .got, .symtab, .strtab and .shstrtab as real output sections
// so §4.6's segment sorter and §4.8's layout builder place them like any
// other section. Their byte content that depends on final virtual
// addresses (.got's entries, .symtab's st_value) is filled in later by
// FinalizeSyntheticSections, once layout has run.
func RegisterSyntheticSections(b *Build) {
	locals := gatherLocalSymtabEntries(b)
	globals := gatherGlobalSymtabEntries(b)

	var strtab []byte
	strtab = append(strtab, 0)
	for i := range locals {
		strtab, locals[i].StrOffset = appendStrtab(strtab, locals[i].Name)
	}
	for i := range globals {
		strtab, globals[i].StrOffset = appendStrtab(strtab, globals[i].Name)
	}

	b.SymtabEntries = append(locals, globals...)
	b.NumLocalSyms = uint32(1 + len(locals))

	gotID := b.registerSynthetic(".got", SHT_PROGBITS, SHF_ALLOC|SHF_WRITE, 8, uint64(b.Got.numEntries())*8)
	symtabID := b.registerSynthetic(".symtab", SHT_SYMTAB, 0, 8, uint64(1+len(b.SymtabEntries))*sizeofSym)
	strtabID := b.registerSynthetic(".strtab", SHT_STRTAB, 0, 1, uint64(len(strtab)))
	b.Sections[strtabID].Materialized = strtab

	var shstrtab []byte
	shstrtab = append(shstrtab, 0)
	nameOff := make(map[string]uint32)
	for _, sec := range b.Sections {
		if _, ok := nameOff[sec.Name]; ok {
			continue
		}
		var off uint32
		shstrtab, off = appendStrtab(shstrtab, sec.Name)
		nameOff[sec.Name] = off
	}
	shstrtab, nameOff[".shstrtab"] = appendStrtab(shstrtab, ".shstrtab")
	shstrtabID := b.registerSynthetic(".shstrtab", SHT_STRTAB, 0, 1, uint64(len(shstrtab)))
	b.Sections[shstrtabID].Materialized = shstrtab
	b.ShstrtabNameOffsets = nameOff

	b.GotSectionID, b.SymtabID, b.StrtabID, b.ShstrtabID = gotID, symtabID, strtabID, shstrtabID
}

func (b *Build) registerSynthetic(name string, typ uint32, flags, align, size uint64) OutSecID {
	id := OutSecID(len(b.Sections))
	sec := &OutputSection{ID: id, Name: name, Type: typ, Flags: flags, Align: align, Size: size}
	b.Sections = append(b.Sections, sec)
	b.nameIndex[name] = int(id)
	return id
}

// FinalizeSyntheticSections implements the second half of §4.9, run
// after §4.8's layout has assigned every output section its final
// virtual address: materialize .got's entries (the 3 reserved psABI
// slots followed by one per allocated symbol) and .symtab's rows.
func FinalizeSyntheticSections(b *Build) {
	got := b.Sections[b.GotSectionID]
	gotBuf := make([]byte, got.Size)
	for idx, patch := range b.Got.patches {
		outSec := b.InToOut[patch.Ref.ElfIndex][patch.Ref.HeaderIndex]
		mv, ok := mapInputOffset(b.Copies[patch.Ref.ElfIndex][patch.Ref.HeaderIndex], patch.OffsetInSection)
		if !ok {
			continue
		}
		addr := b.Sections[outSec].Addr + mv
		writeLE64(gotBuf[idx*8:], addr)
	}
	got.Materialized = gotBuf

	symtab := b.Sections[b.SymtabID]
	buf := make([]byte, symtab.Size)
	writeSymEntry(buf[0:sizeofSym], 0, 0, 0, 0, 0)
	for i, e := range b.SymtabEntries {
		var shndx uint16
		var value uint64
		if e.IsAbs {
			shndx = SHN_ABS
			value = e.AbsValue
		} else {
			shndx = uint16(e.OutSec) + 1 // +1: header index 0 is the null section header
			value = b.Sections[e.OutSec].Addr + e.Offset
		}
		writeSymEntry(buf[(i+1)*sizeofSym:], e.StrOffset, e.Info, e.Other, shndx, value)
	}
	symtab.Materialized = buf
}

func writeLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func writeSymEntry(b []byte, nameOff uint32, info, other uint8, shndx uint16, value uint64) {
	for i := 0; i < 4; i++ {
		b[i] = byte(nameOff >> (8 * i))
	}
	b[4] = info
	b[5] = other
	b[6] = byte(shndx)
	b[7] = byte(shndx >> 8)
	writeLE64(b[8:16], value)
	// st_size is left zero; synthesized symbols carry no size information
}
