package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	yaml "go.yaml.in/yaml/v3"
)

// Load reads, decodes, applies env overrides and defaults, and validates a
// config file. YAML files are coerced to JSON so DisallowUnknownFields
// protects both formats.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := parse(path, b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Environment wins over the file for secrets.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parse(path string, data []byte) (*Config, error) {
	jb, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// Reject trailing tokens (e.g. concatenated JSON documents).
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("trailing data after config")
		}
		return nil, err
	}
	return &cfg, nil
}

// coerceToJSONBytes converts YAML config files to JSON bytes so both formats
// share the strict JSON decoder.
func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML ensures all map keys are strings so the tree JSON-marshals.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
