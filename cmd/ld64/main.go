package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rvld/ld64/pkg/linker"
	"github.com/rvld/ld64/pkg/report"
	"github.com/rvld/ld64/pkg/utils"
)

var version = "dev"

// buildIDStyles and zKeywords are the closed vocabularies these flags
// accept; anything else is a usage error rather than a silently ignored
// no-op.
var buildIDStyles = newStringSet("md5", "sha1", "uuid", "none")
var zKeywords = newStringSet("now", "lazy", "relro", "norelro", "noexecstack", "nodlopen")

func newStringSet(vals ...string) utils.MapSet[string] {
	s := utils.NewMapSet[string]()
	for _, v := range vals {
		s.Add(v)
	}
	return s
}

type linkPlan struct {
	opts         linker.LinkerOptions
	libraryPaths []string
	static       bool // starts true: this linker only ever produces static output
	pushedStatic []bool
	files        []*linker.File
}

func main() {
	plan := &linkPlan{opts: linker.DefaultLinkerOptions(), static: true}
	parseArgs(plan)

	r := report.New()
	if err := linker.Link(r, plan.opts, plan.files); err != nil {
		os.Exit(1)
	}
}

func parseArgs(plan *linkPlan) {
	dashes := func(name string) []string {
		if len(name) == 1 {
			return []string{"-" + name}
		}
		return []string{"-" + name, "--" + name}
	}

	args := os.Args[1:]
	var arg string

	readArg := func(name string) bool {
		if len(args) == 0 {
			return false
		}
		for _, opt := range dashes(name) {
			if args[0] == opt {
				if len(args) == 1 {
					utils.Fatal(fmt.Sprintf("option %s: argument missing", opt))
				}
				arg = args[1]
				args = args[2:]
				return true
			}
			prefix := opt + "="
			if strings.HasPrefix(args[0], prefix) {
				arg = args[0][len(prefix):]
				args = args[1:]
				return true
			}
			if len(name) == 1 && strings.HasPrefix(args[0], opt) && len(args[0]) > len(opt) {
				arg = args[0][len(opt):]
				args = args[1:]
				return true
			}
		}
		return false
	}

	readFlag := func(name string) bool {
		if len(args) == 0 {
			return false
		}
		for _, opt := range dashes(name) {
			if args[0] == opt {
				args = args[1:]
				return true
			}
		}
		return false
	}

	for len(args) > 0 {
		switch {
		case readFlag("help"):
			fmt.Printf("Usage: %s [options] file...\n", os.Args[0])
			os.Exit(0)

		case readFlag("v") || readFlag("version"):
			fmt.Printf("ld64 %s\n", version)
			os.Exit(0)

		case readArg("o") || readArg("output"):
			plan.opts.OutputFileName = arg

		case readArg("e") || readArg("entry"):
			plan.opts.EntrySymbolName = arg

		case readArg("L") || readArg("library-path"):
			plan.libraryPaths = append(plan.libraryPaths, filepath.Clean(arg))

		case readArg("l"):
			lib, err := linker.FindLibrary(plan.libraryPaths, arg, plan.static)
			if err != nil {
				utils.Fatal(err.Error())
			}
			plan.files = append(plan.files, lib)

		case readFlag("Bstatic") || readFlag("non_shared") || readFlag("dn") || readFlag("static"):
			plan.static = true

		case readFlag("Bdynamic") || readFlag("dy") || readFlag("call_shared"):
			plan.static = false

		case readFlag("push-state"):
			plan.pushedStatic = append(plan.pushedStatic, plan.static)

		case readFlag("pop-state"):
			if len(plan.pushedStatic) == 0 {
				utils.Fatal("--pop-state without a matching --push-state")
			}
			n := len(plan.pushedStatic) - 1
			plan.static = plan.pushedStatic[n]
			plan.pushedStatic = plan.pushedStatic[:n]

		case readFlag("eh-frame-hdr"):
			plan.opts.CreateEhFrameHeader = true

		case readFlag("no-eh-frame-hdr"):
			plan.opts.CreateEhFrameHeader = false

		case strings.HasPrefix(args[0], "--build-id="):
			style := args[0][len("--build-id="):]
			if !buildIDStyles.Contains(style) {
				utils.Fatal(fmt.Sprintf("unknown --build-id style: %s", style))
			}
			args = args[1:]

		case args[0] == "--build-id":
			// bare --build-id defaults to sha1, nothing further to record
			args = args[1:]

		case readArg("z"):
			if !zKeywords.Contains(arg) {
				utils.Fatal(fmt.Sprintf("unknown -z keyword: %s", arg))
			}

		case readFlag("start-group") || readFlag("end-group"):
			// archive member resolution here already runs to a fixed point
			// regardless of grouping, so these are accepted and ignored

		case readArg("plugin") || readArg("plugin-opt"):
			// LTO plugins are out of scope; accepted for command-line
			// compatibility with build systems that always pass one

		case readArg("dynamic-linker"):
			// takes a path even here; meaningful only for dynamically linked
			// output, so accepted and discarded

		case readFlag("add-needed") || readFlag("no-add-needed") ||
			readFlag("as-needed") || readFlag("no-as-needed") ||
			readFlag("no-dynamic-linker") || readFlag("nostdlib") || readFlag("s"):
			// accepted and ignored; the needed/dynamic-linker flags matter only
			// for dynamically linked output, and --nostdlib and -s have no
			// effect here

		case readArg("hash-style") || readArg("sysroot") || readArg("m"):
			// accepted and ignored; this linker emits one fixed ELF64/x86_64
			// statically linked layout regardless

		default:
			if strings.HasPrefix(args[0], "-") && args[0] != "-" {
				utils.Fatal(fmt.Sprintf("unknown command line option: %s", args[0]))
			}
			f, err := linker.ReadFile(args[0])
			if err != nil {
				utils.Fatal(err.Error())
			}
			plan.files = append(plan.files, f)
			args = args[1:]
		}
	}

	if len(plan.files) == 0 {
		utils.Fatal("no input files")
	}
}
