package linker

// SortKey is the 64-bit total order from §3: "which input came first."
// Ordinary files carry subIndex=0; archive members carry the byte offset
// of the member within their archive. Every symbol-precedence and
// section-concatenation decision in this package reduces to comparing
// two SortKeys.
type SortKey uint64

func makeSortKey(fileIndex, subIndex uint32) SortKey {
	return SortKey(uint64(fileIndex)<<32 | uint64(subIndex))
}

func (k SortKey) split() (fileIndex, subIndex uint32) {
	return uint32(k >> 32), uint32(k)
}

func (k SortKey) fileIndex() uint32 { fi, _ := k.split(); return fi }

// SectionRef names one input section: which ELF input, and which header
// index within that input's section-header table.
type SectionRef struct {
	ElfIndex   int
	HeaderIndex int
}
