package linker

import "os"

// File is the in-memory handle for one path the CLI handed the linker:
// a name for diagnostics and the raw bytes. The core never writes through
// Contents; the file-to-memory mapper (the CLI layer) owns its lifetime.
type File struct {
	Name     string
	Contents []byte
}

func ReadFile(path string) (*File, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &File{Name: path, Contents: contents}, nil
}

// FindLibrary resolves "-lname" against the configured -L search paths,
// per the "lib<name>.a"/"lib<name>.so" probing rule in SPEC_FULL's
// supplemented library-resolution feature. static selects whether a
// dynamic library found along the way is an error (true) or acceptable
// (false, --Bdynamic).
func FindLibrary(searchPaths []string, name string, static bool) (*File, error) {
	for _, dir := range searchPaths {
		stem := dir + "/lib" + name
		if static {
			if fileExists(stem + ".so") {
				return nil, &libraryIsSharedError{name: name}
			}
		}
		if fileExists(stem + ".a") {
			return ReadFile(stem + ".a")
		}
		if !static {
			if fileExists(stem + ".so") {
				return ReadFile(stem + ".so")
			}
		}
	}
	return nil, &libraryNotFoundError{name: name}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type libraryNotFoundError struct{ name string }

func (e *libraryNotFoundError) Error() string {
	return "could not find: lib" + e.name + ".a"
}

type libraryIsSharedError struct{ name string }

func (e *libraryIsSharedError) Error() string {
	return "refusing to link shared library in static mode: lib" + e.name + ".so"
}
