package linker

import "testing"

func TestMapInputOffsetSingle(t *testing.T) {
	cmd := &CopyCommand{Kind: CopySingle, Single: PartCopy{Size: 16, DstOffset: 100}}

	got, ok := mapInputOffset(cmd, 4)
	if !ok || got != 104 {
		t.Fatalf("mapInputOffset = (%d, %v), want (104, true)", got, ok)
	}
}

func TestMapInputOffsetMany(t *testing.T) {
	cmd := &CopyCommand{Kind: CopyMany, Many: []PartCopy{
		{Size: 4, DstOffset: 0},
		{Size: 8, DstOffset: 4},
	}}

	if got, ok := mapInputOffset(cmd, 0); !ok || got != 0 {
		t.Fatalf("offset 0: got (%d, %v)", got, ok)
	}
	if got, ok := mapInputOffset(cmd, 4); !ok || got != 4 {
		t.Fatalf("offset 4 (start of second part): got (%d, %v)", got, ok)
	}
	if got, ok := mapInputOffset(cmd, 6); !ok || got != 6 {
		t.Fatalf("offset 6 (inside second part): got (%d, %v)", got, ok)
	}
	if _, ok := mapInputOffset(cmd, 12); ok {
		t.Fatal("offset past every part should not map")
	}
}

func TestMapInputOffsetNilCommand(t *testing.T) {
	if _, ok := mapInputOffset(nil, 0); ok {
		t.Fatal("nil copy command must never map")
	}
}
