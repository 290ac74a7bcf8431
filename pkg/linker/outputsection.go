package linker

import (
	"sort"
	"strings"

	"github.com/rvld/ld64/pkg/report"
)

// OutSecID identifies an output section. -1 is the "not an output
// section" sentinel from §3's invariant.
type OutSecID = int16

const notAnOutputSection OutSecID = -1

// SegmentClass is the six-bucket classification from §4.6.
type SegmentClass int8

const (
	SegReadOnly SegmentClass = iota
	SegReadWrite
	SegReadExecute
	SegReadWriteExecute
	SegTLSTemplate
	SegNotLoaded
)

// OutputSection is the unit the linker emits: a canonical name, a type
// and flag set adopted from its first contributing input, an alignment,
// a size, and the sorted list of input sections that feed it.
type OutputSection struct {
	ID    OutSecID
	Name  string
	Type  uint32
	Flags uint64
	Align uint64
	Size  uint64

	Refs []SectionRef

	// Materialized holds the output bytes when they were built ahead of
	// time (merged sections materialize a scratch buffer; synthetic
	// sections materialize directly). nil means "reconstruct from Refs
	// and their copy commands at write time."
	Materialized []byte

	Segment SegmentClass
	Addr    uint64
	FileOff uint64
}

func (s *OutputSection) isNobits() bool { return s.Type == SHT_NOBITS }

// Build threads the growing linking state through stages 6-12: the
// output-section table, the per-input-section maps that name where each
// byte landed, the GOT builder, program headers, and the final header
// arrays handed to the writer.
type Build struct {
	LS   *LinkState
	Opts LinkerOptions
	R    *report.Reporter

	Sections  []*OutputSection
	nameIndex map[string]int

	InToOut [][]OutSecID
	Copies  [][]*CopyCommand

	Got *gotBuilder

	ProcessedRelas map[OutSecID][]ProcessedRela

	ProgHeaders     []Phdr
	FileHeadersSize uint64

	EntrySymbol *SymbolRef

	GotSectionID, SymtabID, StrtabID, ShstrtabID OutSecID
	NumLocalSyms                                 uint32
	SymtabEntries                                []symtabEntry
	ShstrtabNameOffsets                          map[string]uint32

	Ehdr     Ehdr
	OutShdrs []Shdr

	Order []OutSecID
}

func NewBuild(ls *LinkState, opts LinkerOptions) *Build {
	return &Build{
		LS:             ls,
		Opts:           opts,
		R:              ls.R,
		nameIndex:      make(map[string]int),
		ProcessedRelas: make(map[OutSecID][]ProcessedRela),
		Got:            newGotBuilder(),
	}
}

// canonicalOutputNamePrefixes is §4.4's exact truncation table.
var canonicalOutputNamePrefixes = []string{
	".text", ".data.rel.ro", ".data", ".ldata", ".rodata", ".lrodata",
	".bss.rel.ro", ".bss", ".lbss", ".init_array", ".fini_array", ".tbss", ".tdata",
}

func canonicalOutputName(name string) string {
	for _, prefix := range canonicalOutputNamePrefixes {
		if strings.HasPrefix(name, prefix) {
			return prefix
		}
	}
	return name
}

func canonicalizeType(name string, typ uint32) uint32 {
	if typ == SHT_PROGBITS {
		switch name {
		case ".init_array":
			return SHT_INIT_ARRAY
		case ".fini_array":
			return SHT_FINI_ARRAY
		}
	}
	return typ
}

func neverOutputSection(typ uint32) bool {
	switch typ {
	case SHT_NULL, SHT_STRTAB, SHT_SYMTAB, SHT_GROUP, SHT_REL, SHT_RELA:
		return true
	default:
		return false
	}
}

// PlanOutputSections implements §4.4: canonicalize names, group input
// sections, validate type/flag compatibility, compute per-output
// alignment.
func PlanOutputSections(b *Build) error {
	b.InToOut = make([][]OutSecID, len(b.LS.Inputs))
	b.Copies = make([][]*CopyCommand, len(b.LS.Inputs))

	for elfIdx, in := range b.LS.Inputs {
		b.InToOut[elfIdx] = make([]OutSecID, len(in.Shdrs))
		b.Copies[elfIdx] = make([]*CopyCommand, len(in.Shdrs))
		for i := range b.InToOut[elfIdx] {
			b.InToOut[elfIdx][i] = notAnOutputSection
		}

		for hdrIdx := range in.Shdrs {
			sh := &in.Shdrs[hdrIdx]
			if neverOutputSection(sh.Type) {
				continue
			}

			name := canonicalOutputName(in.sectionName(sh))
			typ := canonicalizeType(name, sh.Type)

			id, err := b.getOrCreateOutputSection(in.Name, name, typ, sh.Flags, sh.AddrAlign)
			if err != nil {
				return err
			}

			b.InToOut[elfIdx][hdrIdx] = id
			sec := b.Sections[id]
			sec.Refs = append(sec.Refs, SectionRef{ElfIndex: elfIdx, HeaderIndex: hdrIdx})
		}
	}

	if len(b.Sections) > int(SHN_LORESERVE)-4 {
		return b.R.Report(report.NotOK, "too many output sections: ", len(b.Sections))
	}

	for _, sec := range b.Sections {
		refs := sec.Refs
		sort.Slice(refs, func(i, j int) bool {
			ki := b.LS.Inputs[refs[i].ElfIndex].SortKey
			kj := b.LS.Inputs[refs[j].ElfIndex].SortKey
			if ki != kj {
				return ki < kj
			}
			return refs[i].HeaderIndex < refs[j].HeaderIndex
		})
	}

	return nil
}

func (b *Build) getOrCreateOutputSection(inputName, name string, typ uint32, flags, align uint64) (OutSecID, error) {
	if id, ok := b.nameIndex[name]; ok {
		sec := b.Sections[id]
		if sec.Type != typ {
			return 0, b.R.Report(report.NotOK, inputName, ": section type clash for output section ", name)
		}
		const mergeBits = SHF_MERGE | SHF_STRINGS
		if (sec.Flags &^ mergeBits) != (flags &^ mergeBits) {
			return 0, b.R.Report(report.NotOK, inputName, ": section flag clash for output section ", name)
		}
		if align > sec.Align {
			sec.Align = align
		}
		return sec.ID, nil
	}

	id := OutSecID(len(b.Sections))
	align1 := align
	if align1 == 0 {
		align1 = 1
	}
	sec := &OutputSection{ID: id, Name: name, Type: typ, Flags: flags, Align: align1}
	b.Sections = append(b.Sections, sec)
	b.nameIndex[name] = int(id)
	return id, nil
}
