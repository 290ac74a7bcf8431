package linker

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/rvld/ld64/pkg/report"
)

func buildTestArchive(offsets []uint32, names []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("!<arch>\n")

	hdr := make([]byte, arHdrSize)
	copy(hdr, "/               ")
	for i := 16; i < len(hdr); i++ {
		hdr[i] = ' '
	}
	buf.Write(hdr)

	binary.Write(&buf, binary.BigEndian, uint32(len(offsets)))
	for _, off := range offsets {
		binary.Write(&buf, binary.BigEndian, off)
	}
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

func TestParseArchiveSymbolIndex(t *testing.T) {
	data := buildTestArchive([]uint32{100, 100, 200}, []string{"foo", "bar", "baz"})
	r := report.New()

	af, err := parseArchiveSymbolIndex(r, "test.a", data, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(af.Members) != 2 {
		t.Fatalf("expected 2 coalesced members, got %d", len(af.Members))
	}
	if af.Members[0].Offset != 100 || af.Members[1].Offset != 200 {
		t.Fatalf("unexpected member offsets: %+v, %+v", af.Members[0], af.Members[1])
	}

	for _, name := range []string{"foo", "bar"} {
		idxs := af.SymIndex[name]
		if len(idxs) != 1 || af.Members[idxs[0]].Offset != 100 {
			t.Errorf("symbol %q: expected to resolve to offset 100, got indices %v", name, idxs)
		}
	}
	idxs := af.SymIndex["baz"]
	if len(idxs) != 1 || af.Members[idxs[0]].Offset != 200 {
		t.Errorf("symbol baz: expected to resolve to offset 200, got indices %v", idxs)
	}
}

func TestParseDecimalField(t *testing.T) {
	cases := map[string]uint64{
		"1234      ": 1234,
		"0         ": 0,
		"42":         42,
	}
	for in, want := range cases {
		if got := parseDecimalField([]byte(in)); got != want {
			t.Errorf("parseDecimalField(%q) = %d, want %d", in, got, want)
		}
	}
}
