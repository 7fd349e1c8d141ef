package execute

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// itemDoc is the on-disk item shape. Input accepts any YAML/JSON value
// and is normalized to canonical JSON for processors.
type itemDoc struct {
	ID    string `json:"id" yaml:"id"`
	Input any    `json:"input" yaml:"input"`
}

// LoadItems reads a list of work items from a YAML or JSON file.
//
// The format is determined by extension: .yaml/.yml for YAML, .json for
// JSON. An unrecognized extension tries YAML first, then JSON. Items
// without an explicit id are assigned their position ("item-3").
func LoadItems(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("items file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read items file: %w", err)
	}
	return parseItems(data, path)
}

// LoadItemsFromReader reads items from r. The path parameter drives
// format detection and error messages; empty falls back to YAML-first.
func LoadItemsFromReader(r io.Reader, path string) ([]Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}
	return parseItems(data, path)
}

func parseItems(data []byte, path string) ([]Item, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("items file is empty")
	}

	var docs []itemDoc
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("invalid JSON in items file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("invalid YAML in items file: %w", err)
		}
	default:
		yamlErr := yaml.Unmarshal(data, &docs)
		if yamlErr == nil {
			break
		}
		if jsonErr := json.Unmarshal(data, &docs); jsonErr == nil {
			break
		}
		return nil, fmt.Errorf("failed to parse items file (tried YAML and JSON): %w", yamlErr)
	}

	items := make([]Item, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = fmt.Sprintf("item-%d", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate item id %q", id)
		}
		seen[id] = struct{}{}

		input, err := json.Marshal(normalizeYAML(doc.Input))
		if err != nil {
			return nil, fmt.Errorf("item %q: failed to encode input: %w", id, err)
		}
		items = append(items, Item{ID: id, Input: input})
	}
	return items, nil
}

// normalizeYAML rewrites map[any]any trees from the YAML decoder into
// map[string]any so they marshal to JSON.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
