package linker

import (
	"fmt"
	"sort"

	"github.com/rvld/ld64/pkg/report"
	"golang.org/x/sync/errgroup"
)

// LinkState accumulates everything built while stages 1-5 run: the flat,
// append-only list of ELF inputs (eager files first, then archive
// extractions in the order they're scheduled) and the process-wide
// global symbol table.
type LinkState struct {
	R       *report.Reporter
	Inputs  []*ElfInput
	Archives []*ArchiveFile
	Symbols SymbolTable
}

type parseResult struct {
	kind FileType
	elf  *ElfInput
	ar   *ArchiveFile
}

// ParseAndBuildSymbolTable runs stages 1 through 5: classify, parse ELF
// inputs and archive indices concurrently (§5), seed the symbol table
// from the eager inputs, then run the archive extraction loop (§4.12) to
// a fixed point.
func ParseAndBuildSymbolTable(r *report.Reporter, files []*File) (*LinkState, error) {
	ls := &LinkState{R: r, Symbols: make(SymbolTable)}

	results := make([]parseResult, len(files))
	var g errgroup.Group
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			switch GetFileType(f.Contents) {
			case FileTypeObject:
				in, err := parseElfInput(r, f.Name, f.Contents, makeSortKey(uint32(i), 0), false)
				if err != nil {
					return err
				}
				results[i] = parseResult{kind: FileTypeObject, elf: in}
			case FileTypeArchive:
				af, err := parseArchiveSymbolIndex(r, f.Name, f.Contents, uint32(i))
				if err != nil {
					return err
				}
				results[i] = parseResult{kind: FileTypeArchive, ar: af}
			default:
				return r.Report(report.BadInputFile, f.Name, ": not an ELF relocatable object or an ar archive")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, res := range results {
		switch res.kind {
		case FileTypeObject:
			ls.Inputs = append(ls.Inputs, res.elf)
		case FileTypeArchive:
			ls.Archives = append(ls.Archives, res.ar)
		}
	}

	for idx, in := range ls.Inputs {
		var discard []string
		if err := insertSymbolsForInput(r, ls.Symbols, in, idx, &discard); err != nil {
			return nil, err
		}
	}

	if err := ls.extractArchives(); err != nil {
		return nil, err
	}

	return ls, nil
}

func initialSearchedNames(t SymbolTable) []string {
	var names []string
	for name, entry := range t {
		if entry.FirstSearch != nil {
			names = append(names, name)
		}
	}
	return names
}

type scheduledMember struct {
	af *ArchiveFile
	m  *ArchiveMember
}

// extractArchives implements §4.12's fixed-point loop.
func (ls *LinkState) extractArchives() error {
	searched := initialSearchedNames(ls.Symbols)

	for len(searched) > 0 {
		var toExtract []scheduledMember
		scheduledSet := map[*ArchiveMember]bool{}

		for _, name := range searched {
			entry := ls.Symbols[name]
			if entry == nil || entry.FirstSearch == nil {
				continue
			}
			searchKey := entry.FirstSearch.SortKey

			for _, af := range ls.Archives {
				idxs, ok := af.SymIndex[name]
				if !ok {
					continue
				}
				sorted := append([]int(nil), idxs...)
				sort.Slice(sorted, func(a, b int) bool {
					return af.Members[sorted[a]].SortKey < af.Members[sorted[b]].SortKey
				})

				var chosen *ArchiveMember
				for _, idx := range sorted {
					m := af.Members[idx]
					if m.SortKey > searchKey {
						chosen = m
						break
					}
				}
				if chosen == nil && len(sorted) > 0 {
					chosen = af.Members[sorted[0]]
				}
				if chosen == nil {
					continue
				}

				if entry.FirstLoad == nil {
					if chosen.State == MemberLazy && !scheduledSet[chosen] {
						scheduledSet[chosen] = true
						toExtract = append(toExtract, scheduledMember{af: af, m: chosen})
					}
					continue
				}

				if entry.FirstLoad.SortKey > chosen.SortKey && chosen.SortKey > searchKey {
					return ls.R.Report(report.SymbolRedefined, name)
				}
			}
		}

		if len(toExtract) == 0 {
			break
		}

		var newSearched []string
		for _, sc := range toExtract {
			sc.m.State = MemberLoaded
			body := extractMember(sc.af, sc.m)
			name := fmt.Sprintf("%s(offset %d)", sc.af.Name, sc.m.Offset)
			in, err := parseElfInput(ls.R, name, body, sc.m.SortKey, true)
			if err != nil {
				return err
			}
			elfIndex := len(ls.Inputs)
			ls.Inputs = append(ls.Inputs, in)
			sc.m.ElfIndex = elfIndex

			if err := insertSymbolsForInput(ls.R, ls.Symbols, in, elfIndex, &newSearched); err != nil {
				return err
			}
		}
		searched = newSearched
	}

	return nil
}
