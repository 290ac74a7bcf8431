package linker

import "github.com/rvld/ld64/pkg/report"

// Link runs the full pipeline end to end, mirroring the stage order laid
// out across §4: parse inputs and resolve symbols, resolve the entry
// point, plan and merge output sections, preprocess relocations and
// register the synthetic sections they imply, classify segments, lay
// out addresses, finalize the synthetic sections against those
// addresses, build the ELF/section headers, and write the file.
func Link(r *report.Reporter, opts LinkerOptions, files []*File) error {
	if opts.CreateEhFrameHeader {
		return r.Report(report.NotOK, "", ": --eh-frame-hdr is not supported")
	}

	ls, err := ParseAndBuildSymbolTable(r, files)
	if err != nil {
		return err
	}

	entry := ls.Symbols[opts.EntrySymbolName]
	if entry == nil || entry.FirstLoad == nil {
		return r.Report(report.SymbolUndefined, opts.EntrySymbolName, ": undefined entry symbol")
	}

	b := NewBuild(ls, opts)
	b.EntrySymbol = entry.FirstLoad

	if err := PlanOutputSections(b); err != nil {
		return err
	}
	if err := MergeAndConcatenate(b); err != nil {
		return err
	}
	if err := PreprocessRelocations(b); err != nil {
		return err
	}

	RegisterSyntheticSections(b)
	ClassifySegments(b)
	BuildLayout(b)
	FinalizeSyntheticSections(b)

	if err := BuildHeaders(b); err != nil {
		return err
	}

	return WriteOutput(b, opts.OutputFileName)
}
