package linker

import "testing"

func ref(sortKey SortKey, weak bool) *SymbolRef {
	info := STB_GLOBAL
	if weak {
		info = STB_WEAK
	}
	return &SymbolRef{Sym: &Sym{Info: info << 4}, SortKey: sortKey}
}

func TestReplaceIfAppropriate(t *testing.T) {
	t.Run("empty slot always fills", func(t *testing.T) {
		var slot *SymbolRef
		cand := ref(makeSortKey(0, 0), false)
		replaceIfAppropriate(&slot, cand)
		if slot != cand {
			t.Fatal("expected empty slot to be filled")
		}
	})

	t.Run("strong beats weak regardless of order", func(t *testing.T) {
		weak := ref(makeSortKey(0, 0), true)
		strong := ref(makeSortKey(1, 0), false)
		slot := weak
		replaceIfAppropriate(&slot, strong)
		if slot != strong {
			t.Fatal("expected strong definition to replace weak one")
		}
	})

	t.Run("weak does not replace strong", func(t *testing.T) {
		strong := ref(makeSortKey(0, 0), false)
		weak := ref(makeSortKey(1, 0), true)
		slot := strong
		replaceIfAppropriate(&slot, weak)
		if slot != strong {
			t.Fatal("expected weak candidate to lose to existing strong definition")
		}
	})

	t.Run("equal strength, earlier sort key wins", func(t *testing.T) {
		earlier := ref(makeSortKey(0, 0), false)
		later := ref(makeSortKey(1, 0), false)
		slot := later
		replaceIfAppropriate(&slot, earlier)
		if slot != earlier {
			t.Fatal("expected earlier sort key to win among equal-strength candidates")
		}

		slot = earlier
		replaceIfAppropriate(&slot, later)
		if slot != earlier {
			t.Fatal("expected later candidate to not displace the earlier one")
		}
	})
}
