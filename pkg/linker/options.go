package linker

// LinkerOptions is the complete configuration surface the argument parser
// hands to the core (§6). Defaults match ld's own: output to "a.out",
// entry at "_start", no eh_frame header (unsupported, see §1 non-goals).
type LinkerOptions struct {
	OutputFileName    string
	EntrySymbolName   string
	CreateEhFrameHeader bool
}

func DefaultLinkerOptions() LinkerOptions {
	return LinkerOptions{
		OutputFileName:    "a.out",
		EntrySymbolName:   "_start",
		CreateEhFrameHeader: false,
	}
}
