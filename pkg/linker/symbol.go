package linker

import "github.com/rvld/ld64/pkg/report"

// SymbolRef is a non-owning reference to one symbol table entry: which
// ELF input it came from and that input's sort key, so precedence between
// two refs is a plain SortKey comparison.
type SymbolRef struct {
	Sym      *Sym
	ElfIndex int
	SortKey  SortKey
}

func (ref *SymbolRef) isWeak() bool { return ref.Sym.IsWeak() }

// GlobalSymbolTableEntry is keyed by symbol name and tracks the earliest
// reference to that name as a search (undefined reference) and as a load
// (definition), per §3/§4.13.
type GlobalSymbolTableEntry struct {
	FirstSearch *SymbolRef
	FirstLoad   *SymbolRef
}

type SymbolTable map[string]*GlobalSymbolTableEntry

func (t SymbolTable) entry(name string) *GlobalSymbolTableEntry {
	e, ok := t[name]
	if !ok {
		e = &GlobalSymbolTableEntry{}
		t[name] = e
	}
	return e
}

// replaceIfAppropriate implements §4.13's precedence rule: empty slot
// always loses, weak loses to strong, and among equal-strength
// candidates the earlier sort key wins. The net effect: first non-weak
// wins outright; among weak-only candidates, the earliest wins.
func replaceIfAppropriate(slot **SymbolRef, candidate *SymbolRef) {
	if *slot == nil {
		*slot = candidate
		return
	}
	slotWeak := (*slot).isWeak()
	candWeak := candidate.isWeak()
	if slotWeak && !candWeak {
		*slot = candidate
		return
	}
	if slotWeak == candWeak && candidate.SortKey < (*slot).SortKey {
		*slot = candidate
	}
}

// insertSymbolsForInput implements §4.13: walk one new ELF input's symbol
// table (skipping the null entry and all locals), updating firstSearch for
// undefined references and firstLoad for definitions, and appending every
// searched name to searched so the archive extraction loop (§4.12) knows
// what to look for next.
func insertSymbolsForInput(r *report.Reporter, table SymbolTable, in *ElfInput, elfIndex int, searched *[]string) error {
	for i := 1; i < len(in.Syms); i++ {
		sym := &in.Syms[i]
		if sym.IsLocal() {
			continue
		}
		name := in.symbolName(sym)
		if name == "" {
			continue
		}

		entry := table.entry(name)
		ref := &SymbolRef{Sym: sym, ElfIndex: elfIndex, SortKey: in.SortKey}

		if sym.IsUndef() {
			replaceIfAppropriate(&entry.FirstSearch, ref)
			*searched = append(*searched, name)
			continue
		}

		if entry.FirstLoad != nil && !entry.FirstLoad.isWeak() && !sym.IsWeak() {
			return r.Report(report.SymbolRedefined, name)
		}
		replaceIfAppropriate(&entry.FirstLoad, ref)
	}
	return nil
}
