package dict

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EncodeJSON renders definitions as an indented JSON array.
func EncodeJSON(defs []Definition) ([]byte, error) {
	data, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("dict: encode json: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeJSON parses a JSON definition array and validates every entry.
func DecodeJSON(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("dict: decode json: %w", err)
	}
	for i, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("dict: definition[%d]: %w", i, err)
		}
	}
	return defs, nil
}

// EncodeYAML renders definitions as a YAML list.
func EncodeYAML(defs []Definition) ([]byte, error) {
	data, err := yaml.Marshal(defs)
	if err != nil {
		return nil, fmt.Errorf("dict: encode yaml: %w", err)
	}
	return data, nil
}

// DecodeYAML parses a YAML definition list and validates every entry.
func DecodeYAML(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("dict: decode yaml: %w", err)
	}
	for i, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("dict: definition[%d]: %w", i, err)
		}
	}
	return defs, nil
}

// LoadFile reads a definitions file, picking the codec from the extension.
func LoadFile(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dict: read %s: %w", path, err)
	}
	var defs []Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defs, err = DecodeYAML(data)
	default:
		defs, err = DecodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("dict: %s: %w", path, err)
	}
	return New(defs)
}
