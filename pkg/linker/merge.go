package linker

import (
	"github.com/rvld/ld64/pkg/report"
	"github.com/rvld/ld64/pkg/utils"
)

// PartCopy is one byte range copied from an input section into its
// output section: size plus destination offset.
type PartCopy struct {
	Size      uint64
	DstOffset uint64
}

// CopyCommandKind is the tag of §3's "zero / one / many" union.
type CopyCommandKind int8

const (
	CopyNone CopyCommandKind = iota
	CopySingle
	CopyMany
)

// CopyCommand is the tagged union describing where one input section's
// bytes land in its output section. Concatenation always produces
// CopySingle; merging always produces CopyMany, one PartCopy per
// deduplicated element.
type CopyCommand struct {
	Kind   CopyCommandKind
	Single PartCopy
	Many   []PartCopy
}

// mapInputOffset implements §4.7.1: translate an offset within an input
// section into its output-section-relative offset, through that input's
// copy commands.
func mapInputOffset(cmd *CopyCommand, offset uint64) (uint64, bool) {
	if cmd == nil {
		return 0, false
	}
	switch cmd.Kind {
	case CopySingle:
		return offset + cmd.Single.DstOffset, true
	case CopyMany:
		var start uint64
		for _, p := range cmd.Many {
			end := start + p.Size
			if offset >= start && offset < end {
				return offset - start + p.DstOffset, true
			}
			start = end
		}
		return 0, false
	default:
		return 0, false
	}
}

// MergeAndConcatenate implements §4.5 for every output section: either
// concatenate input sections in sorted order (rounding up to each
// input's alignment), or deduplicate fixed-length/string elements into a
// materialized scratch buffer.
func MergeAndConcatenate(b *Build) error {
	for _, sec := range b.Sections {
		if sec.isNobits() {
			concatenateNobits(b, sec)
			continue
		}
		if sec.Flags&SHF_MERGE != 0 {
			if err := mergeSection(b, sec); err != nil {
				return err
			}
			continue
		}
		concatenateSection(b, sec)
	}
	return nil
}

func concatenateNobits(b *Build, sec *OutputSection) {
	var running uint64
	for _, ref := range sec.Refs {
		in := b.LS.Inputs[ref.ElfIndex]
		sh := &in.Shdrs[ref.HeaderIndex]
		align := sh.AddrAlign
		if align == 0 {
			align = 1
		}
		running = utils.AlignTo(running, align)
		b.Copies[ref.ElfIndex][ref.HeaderIndex] = &CopyCommand{Kind: CopySingle, Single: PartCopy{Size: sh.Size, DstOffset: running}}
		running += sh.Size
	}
	sec.Size = running
}

func concatenateSection(b *Build, sec *OutputSection) {
	var running uint64
	for _, ref := range sec.Refs {
		in := b.LS.Inputs[ref.ElfIndex]
		sh := &in.Shdrs[ref.HeaderIndex]
		align := sh.AddrAlign
		if align == 0 {
			align = 1
		}
		running = utils.AlignTo(running, align)
		b.Copies[ref.ElfIndex][ref.HeaderIndex] = &CopyCommand{Kind: CopySingle, Single: PartCopy{Size: sh.Size, DstOffset: running}}
		running += sh.Size
	}
	sec.Size = running
}

func mergeSection(b *Build, sec *OutputSection) error {
	isStrings := sec.Flags&SHF_STRINGS != 0

	dedup := make(map[string]uint64)
	order := make([]string, 0)
	var cursor uint64

	for _, ref := range sec.Refs {
		in := b.LS.Inputs[ref.ElfIndex]
		sh := &in.Shdrs[ref.HeaderIndex]
		data := in.Data[sh.Offset : sh.Offset+sh.Size]

		var parts []PartCopy
		var pos uint64
		for pos < uint64(len(data)) {
			var elem []byte
			if isStrings {
				end := indexByte(data[pos:], 0)
				if end < 0 {
					return b.R.Report(report.BadInputFile, in.Name, ": unterminated string in merge-strings section ", sec.Name)
				}
				elem = data[pos : pos+uint64(end)+1]
			} else {
				entSize := sh.EntSize
				if entSize == 0 {
					entSize = uint64(len(data))
				}
				if pos+entSize > uint64(len(data)) {
					return b.R.Report(report.BadInputFile, in.Name, ": truncated merge element in section ", sec.Name)
				}
				elem = data[pos : pos+entSize]
			}

			key := string(elem)
			off, ok := dedup[key]
			if !ok {
				off = cursor
				dedup[key] = off
				order = append(order, key)
				cursor += uint64(len(elem))
			}
			parts = append(parts, PartCopy{Size: uint64(len(elem)), DstOffset: off})
			pos += uint64(len(elem))
		}

		b.Copies[ref.ElfIndex][ref.HeaderIndex] = &CopyCommand{Kind: CopyMany, Many: parts}
	}

	sec.Size = cursor
	buf := make([]byte, cursor)
	for _, key := range order {
		off := dedup[key]
		copy(buf[off:], key)
	}
	sec.Materialized = buf
	return nil
}
