package linker

import "testing"

func TestClassifySegment(t *testing.T) {
	cases := []struct {
		name  string
		flags uint64
		want  SegmentClass
	}{
		{"not allocated", 0, SegNotLoaded},
		{"tls", SHF_ALLOC | SHF_TLS | SHF_WRITE, SegTLSTemplate},
		{"read-only", SHF_ALLOC, SegReadOnly},
		{"read-write", SHF_ALLOC | SHF_WRITE, SegReadWrite},
		{"read-execute", SHF_ALLOC | SHF_EXECINSTR, SegReadExecute},
		{"read-write-execute", SHF_ALLOC | SHF_WRITE | SHF_EXECINSTR, SegReadWriteExecute},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := classifySegment(c.flags); got != c.want {
				t.Errorf("classifySegment(%#x) = %d, want %d", c.flags, got, c.want)
			}
		})
	}
}

func TestClassifySegmentsOrdersNobitsLast(t *testing.T) {
	b := &Build{
		Sections: []*OutputSection{
			{ID: 0, Flags: SHF_ALLOC | SHF_WRITE, Type: SHT_NOBITS},
			{ID: 1, Flags: SHF_ALLOC | SHF_WRITE, Type: SHT_PROGBITS},
			{ID: 2, Flags: SHF_ALLOC, Type: SHT_PROGBITS},
		},
	}
	ClassifySegments(b)

	if len(b.Order) != 3 {
		t.Fatalf("expected 3 ordered sections, got %d", len(b.Order))
	}
	// SegReadOnly (id 2) is emitted before SegReadWrite (ids 0, 1); within
	// SegReadWrite, the PROGBITS section (1) must precede the NOBITS one (0).
	if b.Order[0] != 2 {
		t.Errorf("expected read-only section first, got id %d", b.Order[0])
	}
	if b.Order[1] != 1 || b.Order[2] != 0 {
		t.Errorf("expected NOBITS section last within read-write, got order %v", b.Order)
	}
}
