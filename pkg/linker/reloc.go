package linker

import (
	"fmt"

	"github.com/rvld/ld64/pkg/report"
)

// RelaNote distinguishes the two special S-value cases from §3: an
// undefined weak reference (S=0) and an absolute symbol (S=the raw
// value, not section-relative).
type RelaNote int8

const (
	NoteNone RelaNote = iota
	NoteUndefinedWeak
	NoteAbsoluteValue
)

// ProcessedRela captures everything needed to apply one relocation
// without revisiting the original relocation table (§3).
type ProcessedRela struct {
	Addend              int64
	OutputSectionOffset uint64
	SymbolValue         uint64
	Type                uint32
	SymbolSectionID     OutSecID
	Note                RelaNote
	GotIndex            int // -1 unless the relocation type needs a GOT entry
}

type gotPatch struct {
	Ref             SectionRef
	OffsetInSection uint64
}

// gotBuilder is the name-keyed dedup map from §4.7: each symbol that
// needs a GOT entry gets exactly one, starting at index
// numReservedGotEntries.
type gotBuilder struct {
	index   map[string]int
	next    int
	patches map[int]gotPatch
}

func newGotBuilder() *gotBuilder {
	return &gotBuilder{index: map[string]int{}, next: numReservedGotEntries, patches: map[int]gotPatch{}}
}

func (g *gotBuilder) allocate(name string, defined bool, ref SectionRef, offset uint64) int {
	idx, ok := g.index[name]
	if !ok {
		idx = g.next
		g.next++
		g.index[name] = idx
	}
	if defined {
		g.patches[idx] = gotPatch{Ref: ref, OffsetInSection: offset}
	}
	return idx
}

func (g *gotBuilder) numEntries() int { return g.next }

func isKnownRelocType(typ uint32) bool {
	switch typ {
	case R_X86_64_NONE, R_X86_64_64, R_X86_64_PC32, R_X86_64_GOT32, R_X86_64_PLT32,
		R_X86_64_GLOB_DAT, R_X86_64_JUMP_SLOT, R_X86_64_GOTPCREL, R_X86_64_32, R_X86_64_32S,
		R_X86_64_16, R_X86_64_PC16, R_X86_64_8, R_X86_64_PC8, R_X86_64_PC64, R_X86_64_GOTOFF64,
		R_X86_64_GOTPC32, R_X86_64_GOT64, R_X86_64_GOTPCREL64, R_X86_64_GOTPC64,
		R_X86_64_SIZE32, R_X86_64_SIZE64, R_X86_64_GOTPCRELX, R_X86_64_REX_GOTPCRELX:
		return true
	default:
		return false
	}
}

// PreprocessRelocations implements §4.7: for every RELA section whose
// target maps to an output section, resolve each relocation to an
// output-section-relative offset and a symbol value, classifying local,
// global, weak, absolute and undefined-weak references as described
// there, and recording any implied GOT entries.
func PreprocessRelocations(b *Build) error {
	for elfIdx, in := range b.LS.Inputs {
		for hdrIdx := range in.Shdrs {
			sh := &in.Shdrs[hdrIdx]
			if sh.Type != SHT_RELA || sh.EntSize != sizeofRela {
				continue
			}
			targetHdrIdx := int(sh.Info)
			if targetHdrIdx < 0 || targetHdrIdx >= len(in.Shdrs) {
				continue
			}
			outSecID := b.InToOut[elfIdx][targetHdrIdx]
			if outSecID == notAnOutputSection {
				continue
			}
			targetCopy := b.Copies[elfIdx][targetHdrIdx]

			numRelas := int(sh.Size / sizeofRela)
			for i := 0; i < numRelas; i++ {
				var rela Rela
				readStruct(in.Data, sh.Offset+uint64(i)*sizeofRela, &rela)

				symIdx := rela.SymIdx()
				typ := rela.Type()
				if int(symIdx) >= len(in.Syms) {
					return b.R.Report(report.BadInputFile, in.Name, ": relocation symbol index out of range")
				}
				sym := &in.Syms[symIdx]
				if sym.Shndx == SHN_XINDEX {
					return b.R.Report(report.BadInputFile, in.Name, ": SHN_XINDEX relocation symbols are unsupported")
				}
				if !isKnownRelocType(typ) {
					return b.R.Report(report.NotOK, in.Name, ": unsupported relocation type ", typ)
				}

				outOffset, ok := mapInputOffset(targetCopy, rela.Offset)
				if !ok {
					return b.R.Report(report.BadInputFile, in.Name, ": relocation offset maps to no output range")
				}

				pr := ProcessedRela{Addend: rela.Addend, OutputSectionOffset: outOffset, Type: typ, GotIndex: -1}

				switch {
				case sym.Shndx == SHN_ABS:
					pr.Note = NoteAbsoluteValue
					pr.SymbolValue = sym.Val

				case sym.IsLocal():
					if sym.Shndx == SHN_UNDEF {
						return b.R.Report(report.BadInputFile, in.Name, ": local relocation refers to an undefined symbol")
					}
					mv, ok := mapInputOffset(b.Copies[elfIdx][sym.Shndx], sym.Val)
					if !ok {
						return b.R.Report(report.BadInputFile, in.Name, ": local symbol value maps to no output range")
					}
					pr.SymbolValue = mv
					pr.SymbolSectionID = b.InToOut[elfIdx][sym.Shndx]
					if needsGotEntry(typ) {
						key := fmt.Sprintf("\x00local:%d:%d", elfIdx, symIdx)
						pr.GotIndex = b.Got.allocate(key, true, SectionRef{ElfIndex: elfIdx, HeaderIndex: int(sym.Shndx)}, sym.Val)
					}

				default:
					name := in.symbolName(sym)
					entry := b.LS.Symbols[name]
					if entry == nil {
						return b.R.Report(report.SymbolUndefined, name)
					}

					if entry.FirstLoad == nil {
						if !sym.IsWeak() {
							return b.R.Report(report.SymbolUndefined, name)
						}
						pr.Note = NoteUndefinedWeak
						pr.SymbolValue = 0
						if needsGotEntry(typ) {
							pr.GotIndex = b.Got.allocate(name, false, SectionRef{}, 0)
						}
					} else {
						def := entry.FirstLoad
						defIn := b.LS.Inputs[def.ElfIndex]
						_ = defIn
						defShndx := def.Sym.Shndx
						mv, ok := mapInputOffset(b.Copies[def.ElfIndex][defShndx], def.Sym.Val)
						if !ok {
							return b.R.Report(report.BadInputFile, in.Name, ": defining symbol value maps to no output range")
						}
						pr.SymbolValue = mv
						pr.SymbolSectionID = b.InToOut[def.ElfIndex][defShndx]

						if needsGotEntry(typ) {
							pr.GotIndex = b.Got.allocate(name, true, SectionRef{ElfIndex: def.ElfIndex, HeaderIndex: int(defShndx)}, def.Sym.Val)
						}
						if typ == R_X86_64_SIZE32 || typ == R_X86_64_SIZE64 {
							pr.SymbolValue = def.Sym.Size
						}
					}
				}

				b.ProcessedRelas[outSecID] = append(b.ProcessedRelas[outSecID], pr)
			}
		}
	}

	return nil
}
