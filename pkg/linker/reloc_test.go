package linker

import "testing"

func TestGotBuilderDedupesByName(t *testing.T) {
	g := newGotBuilder()

	first := g.allocate("foo", true, SectionRef{ElfIndex: 0, HeaderIndex: 1}, 8)
	second := g.allocate("foo", true, SectionRef{ElfIndex: 0, HeaderIndex: 1}, 8)
	if first != second {
		t.Fatalf("expected repeated allocation of the same name to return the same index, got %d and %d", first, second)
	}

	other := g.allocate("bar", false, SectionRef{}, 0)
	if other == first {
		t.Fatal("expected distinct names to get distinct GOT indices")
	}

	if g.numEntries() != numReservedGotEntries+2 {
		t.Fatalf("numEntries() = %d, want %d", g.numEntries(), numReservedGotEntries+2)
	}

	if _, ok := g.patches[first]; !ok {
		t.Error("expected a patch to be recorded for the defined symbol")
	}
	if _, ok := g.patches[other]; ok {
		t.Error("did not expect a patch for the undefined-weak symbol")
	}
}

func TestIsKnownRelocType(t *testing.T) {
	if !isKnownRelocType(R_X86_64_PC32) {
		t.Error("expected R_X86_64_PC32 to be known")
	}
	if isKnownRelocType(9999) {
		t.Error("expected an unassigned relocation type number to be unknown")
	}
}

func TestNeedsGotEntry(t *testing.T) {
	for _, typ := range []uint32{R_X86_64_GOT32, R_X86_64_GOT64, R_X86_64_GOTPCREL, R_X86_64_GOTPCREL64, R_X86_64_GOTPCRELX, R_X86_64_REX_GOTPCRELX} {
		if !needsGotEntry(typ) {
			t.Errorf("expected relocation type %d to need a GOT entry", typ)
		}
	}
	if needsGotEntry(R_X86_64_PC32) {
		t.Error("PC32 should not need a GOT entry")
	}
}
