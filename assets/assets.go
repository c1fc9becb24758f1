package assets

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"go.creack.net/threebit/config"
	"go.creack.net/threebit/program"
)

// Example programs, one toml description per file.
//
//go:embed examples/*.toml
var examples embed.FS

const examplesDir = "examples"

// Examples returns the sorted names of the embedded examples.
func Examples() []string {
	entries, err := fs.ReadDir(examples, examplesDir)
	if err != nil {
		// Should not happen, the directory is embedded.
		panic(fmt.Errorf("failed to read embedded examples: %w", err))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	slices.Sort(names)
	return names
}

// Example loads the embedded example with the given name.
func Example(name string) (*config.File, error) {
	p := path.Join(examplesDir, name+".toml")
	data, err := examples.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("unknown example %q: %w", name, err)
	}
	f, err := config.Parse(p, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse example %q: %w", name, err)
	}
	return f, nil
}

// Lookup returns the name of the example whose code matches the digest.
func Lookup(digest string) (string, bool) {
	for _, name := range Examples() {
		f, err := Example(name)
		if err != nil {
			continue
		}
		code, err := f.Code()
		if err != nil {
			continue
		}
		if program.Digest(code) == digest {
			return name, true
		}
	}
	return "", false
}
