package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	"github.com/hashicorp/hcl"
)

// ErrUnsupportedFormat is returned for declaration files with an unknown extension
var ErrUnsupportedFormat = errors.New("unsupported declaration file format")

// document is the top level of a declaration file.
// YAML and JSON list definitions under "policies"; HCL uses repeated policy blocks.
type document struct {
	Policies []Definition `json:"policies" yaml:"policies" hcl:"policy"`
}

// ReadDefinitions reads the definitions in a .yaml, .yml, .json or .hcl file
func ReadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read declaration file: %w", err)
	}

	var doc document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".json":
		err = json.Unmarshal(data, &doc)
	case ".hcl":
		err = hcl.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse declaration file %s: %w", path, err)
	}

	return doc.Policies, nil
}

// LoadDeclarationsFromFile reads a declaration file and builds its declarations.
// Lua script files are resolved relative to the declaration file.
func LoadDeclarationsFromFile(path string, f *Factory) ([]*Declaration, error) {
	defs, err := ReadDefinitions(path)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(path)
	out := make([]*Declaration, 0, len(defs))
	for _, def := range defs {
		d, err := f.Declaration(def, baseDir)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// LoadDeclarationsFromDir loads every declaration file in dir, in lexical order.
// Files with other extensions are ignored; subdirectories are not read.
func LoadDeclarationsFromDir(dir string, f *Factory) ([]*Declaration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read declaration directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json", ".hcl":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var out []*Declaration
	for _, path := range files {
		decls, err := LoadDeclarationsFromFile(path, f)
		if err != nil {
			return nil, err
		}
		out = append(out, decls...)
	}
	return out, nil
}
