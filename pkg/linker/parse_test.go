package linker

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/rvld/ld64/pkg/report"
)

// buildElfObject synthesizes a minimal valid ET_REL x86_64 object with one
// SHT_SYMTAB/.strtab/.shstrtab triple and one absolute (SHN_ABS) global
// symbol per entry in defs, plus one SHN_UNDEF global symbol per name in
// undefs. Good enough to drive symbol resolution and archive extraction
// without needing real section content.
func buildElfObject(defs []string, undefs []string) []byte {
	var strtab []byte
	strtab = append(strtab, 0)
	nameOff := map[string]uint32{}
	for _, n := range append(append([]string{}, undefs...), defs...) {
		nameOff[n] = uint32(len(strtab))
		strtab = append(strtab, n...)
		strtab = append(strtab, 0)
	}

	var symtab bytes.Buffer
	writeSym := func(name uint32, info, other uint8, shndx uint16, val, size uint64) {
		binary.Write(&symtab, binary.LittleEndian, name)
		symtab.WriteByte(info)
		symtab.WriteByte(other)
		binary.Write(&symtab, binary.LittleEndian, shndx)
		binary.Write(&symtab, binary.LittleEndian, val)
		binary.Write(&symtab, binary.LittleEndian, size)
	}
	writeSym(0, 0, 0, 0, 0, 0) // null entry
	for _, n := range undefs {
		writeSym(nameOff[n], STB_GLOBAL<<4, 0, SHN_UNDEF, 0, 0)
	}
	for _, n := range defs {
		writeSym(nameOff[n], STB_GLOBAL<<4, 0, SHN_ABS, 0x1000, 0)
	}

	var shstrtab []byte
	shstrtab = append(shstrtab, 0)
	shstrOff := map[string]uint32{}
	for _, n := range []string{".symtab", ".strtab", ".shstrtab"} {
		shstrOff[n] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, n...)
		shstrtab = append(shstrtab, 0)
	}

	const ehdrSize = 64
	symtabOff := uint64(ehdrSize)
	strtabOff := symtabOff + uint64(symtab.Len())
	shstrtabOff := strtabOff + uint64(len(strtab))
	shOff := shstrtabOff + uint64(len(shstrtab))

	var buf bytes.Buffer
	buf.Write(make([]byte, 16)) // e_ident, unchecked by parseElfInput
	binary.Write(&buf, binary.LittleEndian, ET_REL)
	binary.Write(&buf, binary.LittleEndian, EM_X86_64)
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // e_version
	binary.Write(&buf, binary.LittleEndian, uint64(0)) // e_entry
	binary.Write(&buf, binary.LittleEndian, uint64(0)) // e_phoff
	binary.Write(&buf, binary.LittleEndian, shOff)
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // e_flags
	binary.Write(&buf, binary.LittleEndian, uint16(ehdrSize))
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_phentsize
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // e_phnum
	binary.Write(&buf, binary.LittleEndian, uint16(sizeofShdr))
	binary.Write(&buf, binary.LittleEndian, uint16(4)) // e_shnum: null, symtab, strtab, shstrtab
	binary.Write(&buf, binary.LittleEndian, uint16(3)) // e_shstrndx

	buf.Write(symtab.Bytes())
	buf.Write(strtab)
	buf.Write(shstrtab)

	writeShdr := func(name, typ uint32, flags, addr, offset, size uint64, link, info uint32, align, entsize uint64) {
		binary.Write(&buf, binary.LittleEndian, name)
		binary.Write(&buf, binary.LittleEndian, typ)
		binary.Write(&buf, binary.LittleEndian, flags)
		binary.Write(&buf, binary.LittleEndian, addr)
		binary.Write(&buf, binary.LittleEndian, offset)
		binary.Write(&buf, binary.LittleEndian, size)
		binary.Write(&buf, binary.LittleEndian, link)
		binary.Write(&buf, binary.LittleEndian, info)
		binary.Write(&buf, binary.LittleEndian, align)
		binary.Write(&buf, binary.LittleEndian, entsize)
	}
	writeShdr(0, SHT_NULL, 0, 0, 0, 0, 0, 0, 0, 0)
	writeShdr(shstrOff[".symtab"], SHT_SYMTAB, 0, 0, symtabOff, uint64(symtab.Len()), 2, 1, 8, sizeofSym)
	writeShdr(shstrOff[".strtab"], SHT_STRTAB, 0, 0, strtabOff, uint64(len(strtab)), 0, 0, 1, 0)
	writeShdr(shstrOff[".shstrtab"], SHT_STRTAB, 0, 0, shstrtabOff, uint64(len(shstrtab)), 0, 0, 1, 0)

	return buf.Bytes()
}

// buildArMember returns one GNU ar member record: a 60-byte header
// followed by body, padded to an even length with a trailing newline.
func buildArMember(name string, body []byte) []byte {
	hdr := make([]byte, arHdrSize)
	for i := range hdr {
		hdr[i] = ' '
	}
	copy(hdr, name)
	copy(hdr[48:], []byte(padDecimal(len(body))))
	hdr[58], hdr[59] = '`', '\n'

	rec := append(append([]byte{}, hdr...), body...)
	if len(rec)%2 != 0 {
		rec = append(rec, '\n')
	}
	return rec
}

func padDecimal(n int) string {
	s := []byte{}
	if n == 0 {
		s = []byte{'0'}
	}
	for n > 0 {
		s = append([]byte{byte('0' + n%10)}, s...)
		n /= 10
	}
	for len(s) < 10 {
		s = append(s, ' ')
	}
	return string(s)
}

// buildArchiveWithMember wraps a single ELF object as the sole real member
// of an ar archive, behind the mandatory GNU global symbol index, and
// returns the archive bytes plus the absolute offset of the member's own
// ar header (what belongs in the symbol index's offset table).
func buildArchiveWithMember(symName string, body []byte) (archive []byte, memberHeaderOffset uint32) {
	var buf bytes.Buffer
	buf.WriteString("!<arch>\n")

	idxHdrPlaceholder := make([]byte, arHdrSize)
	for i := range idxHdrPlaceholder {
		idxHdrPlaceholder[i] = ' '
	}
	copy(idxHdrPlaceholder, "/               ")

	var payload bytes.Buffer
	binary.Write(&payload, binary.BigEndian, uint32(1))
	binary.Write(&payload, binary.BigEndian, uint32(0)) // patched below
	payload.WriteString(symName)
	payload.WriteByte(0)
	payloadBytes := payload.Bytes()
	if len(payloadBytes)%2 != 0 {
		payloadBytes = append(payloadBytes, '\n')
	}

	copy(idxHdrPlaceholder[48:], []byte(padDecimal(len(payloadBytes))))
	idxHdrPlaceholder[58], idxHdrPlaceholder[59] = '`', '\n'

	buf.Write(idxHdrPlaceholder)
	idxPayloadStart := buf.Len()
	buf.Write(payloadBytes)

	memberHeaderOffset = uint32(buf.Len())
	buf.Write(buildArMember("m/", body))

	out := buf.Bytes()
	binary.BigEndian.PutUint32(out[idxPayloadStart+4:idxPayloadStart+8], memberHeaderOffset)

	return out, memberHeaderOffset
}

func TestExtractArchivesResolvesLazyMember(t *testing.T) {
	r := report.New()
	ls := &LinkState{R: r, Symbols: make(SymbolTable)}

	a := mustParse(t, r, "a.o", buildElfObject(nil, []string{"bar"}), makeSortKey(0, 0))
	ls.Inputs = append(ls.Inputs, a)

	memberBody := buildElfObject([]string{"bar"}, nil)
	archiveData, hdrOff := buildArchiveWithMember("bar", memberBody)
	af, err := parseArchiveSymbolIndex(r, "b.a", archiveData, 1)
	if err != nil {
		t.Fatalf("parseArchiveSymbolIndex: %v", err)
	}
	if len(af.Members) != 1 || af.Members[0].Offset != uint64(hdrOff) {
		t.Fatalf("unexpected archive member layout: %+v (want offset %d)", af.Members, hdrOff)
	}
	ls.Archives = append(ls.Archives, af)

	var discard []string
	if err := insertSymbolsForInput(r, ls.Symbols, a, 0, &discard); err != nil {
		t.Fatalf("insertSymbolsForInput: %v", err)
	}

	if err := ls.extractArchives(); err != nil {
		t.Fatalf("extractArchives: %v", err)
	}

	entry := ls.Symbols["bar"]
	if entry == nil || entry.FirstLoad == nil {
		t.Fatal("expected \"bar\" to be resolved by the archive member")
	}
	if len(ls.Inputs) != 2 {
		t.Fatalf("expected the archive member to be appended as a new input, got %d inputs", len(ls.Inputs))
	}
	if af.Members[0].State != MemberLoaded {
		t.Error("expected the member to transition to MemberLoaded")
	}
}

func TestExtractArchivesReportsAmbiguousPrecedence(t *testing.T) {
	r := report.New()
	ls := &LinkState{R: r, Symbols: make(SymbolTable)}

	// File order: a.o (index 0, searches "foo"), b.a (index 1, a lazy
	// member defining "foo"), c.o (index 2, defines "foo" directly).
	// b.a's member sorts strictly between the search and the load, so
	// which definition should have won is ambiguous and must fail.
	a := mustParse(t, r, "a.o", buildElfObject(nil, []string{"foo"}), makeSortKey(0, 0))
	c := mustParse(t, r, "c.o", buildElfObject([]string{"foo"}, nil), makeSortKey(2, 0))
	ls.Inputs = append(ls.Inputs, a, c)

	memberBody := buildElfObject([]string{"foo"}, nil)
	archiveData, _ := buildArchiveWithMember("foo", memberBody)
	af, err := parseArchiveSymbolIndex(r, "b.a", archiveData, 1)
	if err != nil {
		t.Fatalf("parseArchiveSymbolIndex: %v", err)
	}
	ls.Archives = append(ls.Archives, af)

	var discard []string
	if err := insertSymbolsForInput(r, ls.Symbols, a, 0, &discard); err != nil {
		t.Fatalf("insertSymbolsForInput(a): %v", err)
	}
	if err := insertSymbolsForInput(r, ls.Symbols, c, 1, &discard); err != nil {
		t.Fatalf("insertSymbolsForInput(c): %v", err)
	}

	err = ls.extractArchives()
	if err == nil {
		t.Fatal("expected extractArchives to report symbol_redefined for ambiguous archive precedence")
	}
	if code := report.CodeOf(err); code != report.SymbolRedefined {
		t.Fatalf("expected report.SymbolRedefined, got %v (%v)", code, err)
	}
}

func mustParse(t *testing.T, r *report.Reporter, name string, data []byte, key SortKey) *ElfInput {
	t.Helper()
	in, err := parseElfInput(r, name, data, key, false)
	if err != nil {
		t.Fatalf("parseElfInput(%s): %v", name, err)
	}
	return in
}
