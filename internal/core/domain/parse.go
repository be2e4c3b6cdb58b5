package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format is a stack file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML, nil
	case ".json", ".jsonc":
		return FormatJSON, nil
	default:
		return "", NewConfigError("", fmt.Sprintf("cannot infer format of %q", path), ErrUnknownFormat)
	}
}

// Parse decodes and validates a stack declaration. Unknown keys are
// rejected in both formats. JSON input may contain comments and trailing
// commas.
func Parse(data []byte, format Format) (*StackConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, NewConfigError("", "stack file is empty", nil)
	}

	var cfg StackConfig
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, NewConfigError("", fmt.Sprintf("invalid YAML: %v", err), err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, NewConfigError("", fmt.Sprintf("invalid JSON: %v", err), err)
		}
	default:
		return nil, NewConfigError("", fmt.Sprintf("unknown format %q", format), ErrUnknownFormat)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal encodes a config in the registry format.
func Marshal(cfg *StackConfig) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

// Unmarshal decodes a registry entry. Entries were validated when they were
// written, so only legacy fixes are applied.
func Unmarshal(data []byte) (*StackConfig, error) {
	var cfg StackConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode stack config: %w", err)
	}
	cfg.ApplyLegacyFixes()
	return &cfg, nil
}
