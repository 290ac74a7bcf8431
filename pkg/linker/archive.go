package linker

import (
	"encoding/binary"

	"github.com/rvld/ld64/pkg/report"
)

const arHdrSize = 60

// ArchiveMemberState is the {lazy, loaded} pair from §3. The transition
// is one-directional.
type ArchiveMemberState int8

const (
	MemberLazy ArchiveMemberState = iota
	MemberLoaded
)

// ArchiveMember is one coalesced entry of the global symbol index: a
// byte offset into the archive plus the lazy/loaded state machine that
// drives §4.12's extraction loop.
type ArchiveMember struct {
	Offset   uint64
	SortKey  SortKey
	State    ArchiveMemberState
	ElfIndex int // valid once State == MemberLoaded; index into LinkState.Inputs
}

// ArchiveFile is one top-level archive input: its own sort-key file
// index (shared by every member extracted from it) plus the symbol name
// -> member-entry index map built by §4.3.
type ArchiveFile struct {
	Name      string
	Data      []byte
	FileIndex uint32
	Members   []*ArchiveMember
	SymIndex  map[string][]int // symbol name -> indices into Members
}

func arMemberHeaderName(hdr []byte) string {
	return string(hdr[0:16])
}

// parseArchiveSymbolIndex implements §4.3: locate the "/ " member right
// after the "!<arch>\n" magic and decode its big-endian symbol index.
func parseArchiveSymbolIndex(r *report.Reporter, name string, data []byte, fileIndex uint32) (*ArchiveFile, error) {
	if len(data) < SARMAG+arHdrSize {
		return nil, r.Report(report.BadInputFile, name, ": archive too small to hold a global symbol index")
	}

	hdr := data[SARMAG : SARMAG+arHdrSize]
	memberName := arMemberHeaderName(hdr)
	if memberName[0] != '/' {
		return nil, r.Report(report.BadInputFile, name, ": archive is missing the GNU global symbol index as its first member")
	}

	payload := data[SARMAG+arHdrSize:]
	if len(payload) < 4 {
		return nil, r.Report(report.BadInputFile, name, ": truncated global symbol index")
	}

	n := binary.BigEndian.Uint32(payload[0:4])
	offsetsEnd := 4 + uint64(n)*4
	if offsetsEnd > uint64(len(payload)) {
		return nil, r.Report(report.BadInputFile, name, ": truncated global symbol index offsets")
	}

	offsets := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		offsets[i] = binary.BigEndian.Uint32(payload[4+uint64(i)*4:])
	}

	names := payload[offsetsEnd:]

	af := &ArchiveFile{Name: name, Data: data, FileIndex: fileIndex, SymIndex: make(map[string][]int)}

	var curOffset uint32
	if n > 0 {
		curOffset = offsets[0] - 1
	}
	pos := 0
	for i := uint32(0); i < n; i++ {
		off := offsets[i]
		if off != curOffset {
			curOffset = off
			af.Members = append(af.Members, &ArchiveMember{
				Offset:  uint64(off),
				SortKey: makeSortKey(fileIndex, off),
				State:   MemberLazy,
			})
		}
		entryIdx := len(af.Members) - 1

		end := indexByte(names[pos:], 0)
		if end < 0 {
			return nil, r.Report(report.BadInputFile, name, ": unterminated symbol name in global symbol index")
		}
		symName := string(names[pos : pos+end])
		pos += end + 1

		af.SymIndex[symName] = append(af.SymIndex[symName], entryIdx)
	}

	return af, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// extractMember implements the body-location rule in §4.12: locate the
// member's ar header at Offset, compute the body start (header size,
// bumped to even alignment), and return a slice guaranteed to be 8-byte
// aligned in memory (copying into a fresh allocation when the original
// mapping isn't), ready to hand to parseElfInput.
func extractMember(af *ArchiveFile, m *ArchiveMember) []byte {
	hdrStart := m.Offset
	hdr := af.Data[hdrStart : hdrStart+arHdrSize]
	size := parseDecimalField(hdr[48:58])

	bodyStart := hdrStart + arHdrSize
	if bodyStart%2 != 0 {
		bodyStart++
	}
	body := af.Data[bodyStart : bodyStart+size]

	if bodyStart%8 != 0 {
		fresh := make([]byte, len(body))
		copy(fresh, body)
		return fresh
	}
	return body
}

func parseDecimalField(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		v = v*10 + uint64(c-'0')
	}
	return v
}
