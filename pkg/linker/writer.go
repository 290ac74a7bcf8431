package linker

import (
	"os"

	"github.com/rvld/ld64/pkg/report"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func fileSize(b *Build) uint64 {
	end := b.Ehdr.ShOff + uint64(len(b.OutShdrs))*sizeofShdr
	for _, sec := range b.Sections {
		if sec.isNobits() {
			continue
		}
		if off := sec.FileOff + sec.Size; off > end {
			end = off
		}
	}
	return end
}

// WriteOutput implements §4.11: mmap the output file at its final size,
// lay down the ELF header, program headers and section header table,
// reconstruct every section's bytes (from its materialized buffer or by
// replaying copy commands against its inputs), apply every processed
// relocation, then sync and mark the file executable.
func WriteOutput(b *Build, path string) error {
	size := fileSize(b)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return b.R.Report(report.SystemFailure, "opening ", path, ": ", err)
	}
	if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
		f.Close()
		return b.R.Report(report.SystemFailure, "truncating ", path, ": ", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return b.R.Report(report.SystemFailure, "mmap ", path, ": ", err)
	}

	writeEhdr(data, &b.Ehdr)
	writePhdrs(data, b.ProgHeaders, b.Ehdr.PhOff)
	writeShdrs(data, b.OutShdrs, b.Ehdr.ShOff)

	var g errgroup.Group
	for _, sec := range b.Sections {
		sec := sec
		if sec.isNobits() {
			continue
		}
		g.Go(func() error { return writeSectionBody(b, data, sec) })
	}

	err = g.Wait()

	if syncErr := unix.Msync(data, unix.MS_SYNC); err == nil {
		err = syncErr
	}
	if unmapErr := unix.Munmap(data); err == nil {
		err = unmapErr
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return b.R.Report(report.SystemFailure, "writing ", path, ": ", err)
	}
	return nil
}

func writeSectionBody(b *Build, data []byte, sec *OutputSection) error {
	dst := data[sec.FileOff : sec.FileOff+sec.Size]

	if sec.Materialized != nil {
		copy(dst, sec.Materialized)
	} else {
		for _, ref := range sec.Refs {
			in := b.LS.Inputs[ref.ElfIndex]
			sh := &in.Shdrs[ref.HeaderIndex]
			cmd := b.Copies[ref.ElfIndex][ref.HeaderIndex]
			if cmd == nil || cmd.Kind != CopySingle {
				continue
			}
			src := in.Data[sh.Offset : sh.Offset+sh.Size]
			copy(dst[cmd.Single.DstOffset:], src)
		}
	}

	for _, pr := range b.ProcessedRelas[sec.ID] {
		if err := applyRelocation(b, dst, sec, pr); err != nil {
			return err
		}
	}
	return nil
}

func resolveS(b *Build, pr ProcessedRela) int64 {
	switch pr.Note {
	case NoteAbsoluteValue:
		return int64(pr.SymbolValue)
	case NoteUndefinedWeak:
		return 0
	default:
		return int64(b.Sections[pr.SymbolSectionID].Addr + pr.SymbolValue)
	}
}

func gotBase(b *Build) int64   { return int64(b.Sections[b.GotSectionID].Addr) }
func gotEntry(b *Build, pr ProcessedRela) int64 {
	return gotBase(b) + int64(pr.GotIndex)*8
}
func gotOffset(pr ProcessedRela) int64 { return int64(pr.GotIndex) * 8 }

// applyRelocation implements §4.11's value-formula table: S is the
// symbol's final address (or 0/absolute per note), A the addend, P the
// relocation's own address, G the symbol's byte offset into .got, and GOT
// the start address of .got.
func applyRelocation(b *Build, dst []byte, sec *OutputSection, pr ProcessedRela) error {
	if pr.Type == R_X86_64_NONE {
		return nil
	}

	P := int64(sec.Addr + pr.OutputSectionOffset)
	A := pr.Addend
	var value int64
	var width int

	if pr.Type == R_X86_64_SIZE32 {
		value, width = int64(pr.SymbolValue)+A, 4
	} else if pr.Type == R_X86_64_SIZE64 {
		value, width = int64(pr.SymbolValue)+A, 8
	} else {
		S := resolveS(b, pr)
		switch pr.Type {
		case R_X86_64_64:
			value, width = S+A, 8
		case R_X86_64_PC32, R_X86_64_PLT32:
			value, width = S+A-P, 4
		case R_X86_64_GOT32:
			value, width = gotOffset(pr)+A, 4
		case R_X86_64_GLOB_DAT, R_X86_64_JUMP_SLOT:
			value, width = S, 8
		case R_X86_64_GOTPCREL, R_X86_64_GOTPCRELX, R_X86_64_REX_GOTPCRELX:
			value, width = gotEntry(b, pr)+A-P, 4
		case R_X86_64_32, R_X86_64_32S:
			value, width = S+A, 4
		case R_X86_64_16:
			value, width = S+A, 2
		case R_X86_64_PC16:
			value, width = S+A-P, 2
		case R_X86_64_8:
			value, width = S+A, 1
		case R_X86_64_PC8:
			value, width = S+A-P, 1
		case R_X86_64_PC64:
			value, width = S+A-P, 8
		case R_X86_64_GOTOFF64:
			value, width = S+A-gotBase(b), 8
		case R_X86_64_GOTPC32:
			value, width = gotBase(b)+A-P, 4
		case R_X86_64_GOT64:
			value, width = gotOffset(pr)+A, 8
		case R_X86_64_GOTPCREL64:
			value, width = gotEntry(b, pr)+A-P, 8
		case R_X86_64_GOTPC64:
			value, width = gotBase(b)+A-P, 8
		default:
			return b.R.Report(report.NotOK, "unsupported relocation type ", pr.Type)
		}
	}

	off := pr.OutputSectionOffset
	for i := 0; i < width; i++ {
		dst[off+uint64(i)] = byte(value >> (8 * i))
	}
	return nil
}

func writeEhdr(data []byte, e *Ehdr) {
	copy(data[0:16], e.Ident[:])
	putLE(data[16:18], uint64(e.Type), 2)
	putLE(data[18:20], uint64(e.Machine), 2)
	putLE(data[20:24], uint64(e.Version), 4)
	putLE(data[24:32], e.Entry, 8)
	putLE(data[32:40], e.PhOff, 8)
	putLE(data[40:48], e.ShOff, 8)
	putLE(data[48:52], uint64(e.Flags), 4)
	putLE(data[52:54], uint64(e.EhSize), 2)
	putLE(data[54:56], uint64(e.PhEntSize), 2)
	putLE(data[56:58], uint64(e.PhNum), 2)
	putLE(data[58:60], uint64(e.ShEntSize), 2)
	putLE(data[60:62], uint64(e.ShNum), 2)
	putLE(data[62:64], uint64(e.ShStrndx), 2)
}

func writePhdrs(data []byte, phdrs []Phdr, off uint64) {
	for i, p := range phdrs {
		base := off + uint64(i)*sizeofPhdr
		putLE(data[base:base+4], uint64(p.Type), 4)
		putLE(data[base+4:base+8], uint64(p.Flags), 4)
		putLE(data[base+8:base+16], p.Offset, 8)
		putLE(data[base+16:base+24], p.VAddr, 8)
		putLE(data[base+24:base+32], p.PAddr, 8)
		putLE(data[base+32:base+40], p.FileSize, 8)
		putLE(data[base+40:base+48], p.MemSize, 8)
		putLE(data[base+48:base+56], p.Align, 8)
	}
}

func writeShdrs(data []byte, shdrs []Shdr, off uint64) {
	for i, s := range shdrs {
		base := off + uint64(i)*sizeofShdr
		putLE(data[base:base+4], uint64(s.Name), 4)
		putLE(data[base+4:base+8], uint64(s.Type), 4)
		putLE(data[base+8:base+16], s.Flags, 8)
		putLE(data[base+16:base+24], s.Addr, 8)
		putLE(data[base+24:base+32], s.Offset, 8)
		putLE(data[base+32:base+40], s.Size, 8)
		putLE(data[base+40:base+44], uint64(s.Link), 4)
		putLE(data[base+44:base+48], uint64(s.Info), 4)
		putLE(data[base+48:base+56], s.AddrAlign, 8)
		putLE(data[base+56:base+64], s.EntSize, 8)
	}
}

func putLE(b []byte, v uint64, width int) {
	for i := 0; i < width; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
