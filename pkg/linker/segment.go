package linker

import "sort"

// segmentLoadOrder is the fixed sequence §4.8 lays segments out in.
var segmentLoadOrder = []SegmentClass{
	SegReadOnly, SegReadWrite, SegReadExecute, SegReadWriteExecute, SegTLSTemplate,
}

func classifySegment(flags uint64) SegmentClass {
	if flags&SHF_ALLOC == 0 {
		return SegNotLoaded
	}
	if flags&SHF_TLS != 0 {
		return SegTLSTemplate
	}
	w := flags&SHF_WRITE != 0
	x := flags&SHF_EXECINSTR != 0
	switch {
	case w && x:
		return SegReadWriteExecute
	case w:
		return SegReadWrite
	case x:
		return SegReadExecute
	default:
		return SegReadOnly
	}
}

// ClassifySegments implements §4.6: assign every output section its
// segment bucket, then within each loaded bucket stable-sort NOBITS
// sections to the end so a segment's file-backed bytes stay contiguous
// and its zero-fill tail comes last.
func ClassifySegments(b *Build) {
	groups := make(map[SegmentClass][]*OutputSection)
	for _, sec := range b.Sections {
		sec.Segment = classifySegment(sec.Flags)
		groups[sec.Segment] = append(groups[sec.Segment], sec)
	}

	for _, segs := range groups {
		sort.SliceStable(segs, func(i, j int) bool {
			return !segs[i].isNobits() && segs[j].isNobits()
		})
	}

	b.Order = nil
	for _, class := range segmentLoadOrder {
		for _, sec := range groups[class] {
			b.Order = append(b.Order, sec.ID)
		}
	}
	for _, sec := range groups[SegNotLoaded] {
		b.Order = append(b.Order, sec.ID)
	}
}
