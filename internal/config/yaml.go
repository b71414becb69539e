package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Config file formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// DetectFormat picks the format from the extension of name. Files without
// a known extension (WD_CONFIG may name anything) are JSON when their first
// non-blank byte opens an object, YAML otherwise.
func DetectFormat(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

// toJSON converts a config file to JSON so both formats share one strict
// decoder. YAML must hold a single document; an empty one is an empty
// object.
func toJSON(name string, data []byte) ([]byte, string, error) {
	format := DetectFormat(name, data)
	if format == FormatJSON {
		return data, format, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return []byte("{}"), format, nil
		}
		return nil, format, fmt.Errorf("yaml: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, format, errors.New("yaml: more than one document")
		}
		return nil, format, fmt.Errorf("yaml: %w", err)
	}
	if v == nil {
		return []byte("{}"), format, nil
	}

	j, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, format, fmt.Errorf("yaml: %w", err)
	}
	return j, format, nil
}

// stringKeys rewrites maps with non-string keys (YAML allows `1: x`) so
// the value can be encoded as JSON.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}
