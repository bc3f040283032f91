package signature

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Format names the encoding of a source.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Source is one raw signature definition together with where it came from.
type Source struct {
	Origin string
	Format Format
	Data   []byte
}

// FormatFromPath returns the format implied by a file extension.
func FormatFromPath(p string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	default:
		return "", false
	}
}

// Decode parses the source into a Definition. Unknown fields are rejected so
// typos in rule keys surface as load errors instead of silently inert rules.
func (s Source) Decode() (Definition, error) {
	var def Definition

	switch s.Format {
	case FormatYAML, "":
		dec := yaml.NewDecoder(bytes.NewReader(s.Data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return Definition{}, fmt.Errorf("parse YAML: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(s.Data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return Definition{}, fmt.Errorf("parse JSON: %w", err)
		}
	default:
		return Definition{}, fmt.Errorf("unsupported format %q", s.Format)
	}

	return def, nil
}

// SplitBundle expands a document holding a top-level "signatures" list into
// one Source per element. Any other document, including one that does not
// parse, is returned as a single Source so that problems are reported as load
// errors for that origin.
func SplitBundle(origin string, format Format, data []byte) []Source {
	single := []Source{{Origin: origin, Format: format, Data: data}}

	switch format {
	case FormatJSON:
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			return single
		}
		raw, ok := doc["signatures"]
		if !ok {
			return single
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return single
		}
		out := make([]Source, 0, len(items))
		for i, item := range items {
			out = append(out, Source{Origin: bundleOrigin(origin, i), Format: FormatJSON, Data: item})
		}
		return out

	default:
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return single
		}
		if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
			return single
		}
		root := doc.Content[0]
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value != "signatures" || root.Content[i+1].Kind != yaml.SequenceNode {
				continue
			}
			items := root.Content[i+1].Content
			out := make([]Source, 0, len(items))
			for j, item := range items {
				encoded, err := yaml.Marshal(item)
				if err != nil {
					encoded = nil
				}
				out = append(out, Source{Origin: bundleOrigin(origin, j), Format: FormatYAML, Data: encoded})
			}
			return out
		}
		return single
	}
}

func bundleOrigin(origin string, i int) string {
	return fmt.Sprintf("%s#%d", origin, i)
}

// ReadFile reads a single definition or a bundle from disk.
func ReadFile(p string) ([]Source, error) {
	format, ok := FormatFromPath(p)
	if !ok {
		return nil, fmt.Errorf("unsupported file extension: %s (must be .yaml, .yml, or .json)", filepath.Ext(p))
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature file: %w", err)
	}
	return SplitBundle(p, format, data), nil
}

// ReadDir walks dir recursively in lexical order and reads every YAML or JSON
// file. Unreadable files abort the walk; unparsable ones are returned as
// sources and fail later during Load.
func ReadDir(dir string) ([]Source, error) {
	var sources []Source

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := FormatFromPath(p); !ok {
			return nil
		}
		found, err := ReadFile(p)
		if err != nil {
			return err
		}
		sources = append(sources, found...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk signature directory: %w", err)
	}

	return sources, nil
}

// Builtin returns the signatures embedded in the binary.
func Builtin() ([]Source, error) {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, fmt.Errorf("read builtin signatures: %w", err)
	}

	var sources []Source
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := path.Join("builtin", entry.Name())
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read builtin signature %s: %w", name, err)
		}
		sources = append(sources, SplitBundle("builtin:"+entry.Name(), FormatYAML, data)...)
	}
	return sources, nil
}
