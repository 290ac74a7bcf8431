package linker

import "github.com/rvld/ld64/pkg/utils"

func segmentFlags(class SegmentClass) uint32 {
	switch class {
	case SegReadOnly:
		return PF_R
	case SegReadWrite:
		return PF_R | PF_W
	case SegReadExecute:
		return PF_R | PF_X
	case SegReadWriteExecute:
		return PF_R | PF_W | PF_X
	case SegTLSTemplate:
		return PF_R
	default:
		return PF_R
	}
}

func segmentPhdrType(class SegmentClass) uint32 {
	if class == SegTLSTemplate {
		return PT_TLS
	}
	return PT_LOAD
}

// BuildLayout implements §4.8: walk the segment-sorted sections, laying
// each one out at an alignment-respecting file offset and virtual
// address, emit one program header per non-empty loaded segment, extend
// the very first one backward to cover the ELF and program headers, and
// place the non-loaded sections after the last loaded segment.
func BuildLayout(b *Build) {
	b.FileHeadersSize = sizeofEhdr + sizeofPhdr*uint64(countLoadedSegments(b)+1)

	byID := make(map[OutSecID]*OutputSection, len(b.Sections))
	for _, sec := range b.Sections {
		byID[sec.ID] = sec
	}

	fileOff := b.FileHeadersSize
	vaddr := ImageBase + b.FileHeadersSize
	extendedFirst := false

	groups := make(map[SegmentClass][]OutSecID)
	order := make([]OutSecID, 0, len(b.Order))
	for _, id := range b.Order {
		sec := byID[id]
		groups[sec.Segment] = append(groups[sec.Segment], id)
		order = append(order, id)
	}

	for _, class := range segmentLoadOrder {
		ids := groups[class]
		if len(ids) == 0 {
			continue
		}

		segFileStart := fileOff
		segVAddrStart := vaddr

		for _, id := range ids {
			sec := byID[id]
			align := sec.Align
			if align == 0 {
				align = 1
			}
			fileOff = utils.AlignTo(fileOff, align)
			vaddr = utils.AlignTo(vaddr, align)
			sec.Addr = vaddr
			sec.FileOff = fileOff
			vaddr += sec.Size
			if !sec.isNobits() {
				fileOff += sec.Size
			}
		}

		phdr := Phdr{
			Type:     segmentPhdrType(class),
			Flags:    segmentFlags(class),
			Offset:   segFileStart,
			VAddr:    segVAddrStart,
			PAddr:    segVAddrStart,
			FileSize: fileOff - segFileStart,
			MemSize:  vaddr - segVAddrStart,
			Align:    PageSize,
		}
		if class == SegTLSTemplate {
			phdr.Align = byID[ids[0]].Align
		}

		if !extendedFirst {
			extendedFirst = true
			phdr.Offset -= b.FileHeadersSize
			phdr.VAddr -= b.FileHeadersSize
			phdr.PAddr -= b.FileHeadersSize
			phdr.FileSize += b.FileHeadersSize
			phdr.MemSize += b.FileHeadersSize
		}

		b.ProgHeaders = append(b.ProgHeaders, phdr)

		fileOff = utils.AlignTo(fileOff, PageSize)
		vaddr = utils.AlignTo(vaddr, PageSize)
	}

	b.ProgHeaders = append(b.ProgHeaders, Phdr{Type: PT_GNU_STACK, Flags: PF_R | PF_W, Align: 16})

	for _, id := range groups[SegNotLoaded] {
		sec := byID[id]
		align := sec.Align
		if align == 0 {
			align = 1
		}
		fileOff = utils.AlignTo(fileOff, align)
		sec.Addr = 0
		sec.FileOff = fileOff
		if !sec.isNobits() {
			fileOff += sec.Size
		}
	}
}

func countLoadedSegments(b *Build) int {
	byID := make(map[OutSecID]SegmentClass, len(b.Sections))
	for _, sec := range b.Sections {
		byID[sec.ID] = sec.Segment
	}
	present := make(map[SegmentClass]bool)
	for _, class := range byID {
		if class != SegNotLoaded {
			present[class] = true
		}
	}
	return len(present)
}
