package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/derickschaefer/gridfetch/internal/model"
)

// RequestsFile is the on-disk list of request definitions. JSON files with
// the same shape are accepted too, since JSON is valid YAML.
type RequestsFile struct {
	Requests []model.RequestDef `yaml:"requests"`
}

// LoadRequests reads request definitions from path.
func LoadRequests(path string) ([]model.RequestDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading requests file: %w", err)
	}
	defs, err := ParseRequests(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// ParseRequests decodes request definitions from YAML or JSON. Both the
// {requests: [...]} form and a bare list are accepted. Every definition
// needs a unique name and at least one parameter.
func ParseRequests(data []byte) ([]model.RequestDef, error) {
	var defs []model.RequestDef
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '-') {
		if err := yaml.Unmarshal(data, &defs); err != nil {
			return nil, fmt.Errorf("decoding request list: %w", err)
		}
	} else {
		var f RequestsFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding requests: %w", err)
		}
		defs = f.Requests
	}

	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("request #%d has no name", i+1)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate request name %q", d.Name)
		}
		seen[d.Name] = true
		if len(d.Params) == 0 {
			return nil, fmt.Errorf("request %q has no params", d.Name)
		}
	}
	return defs, nil
}

// Enabled filters defs down to those taking part in batch and poll runs.
func Enabled(defs []model.RequestDef) []model.RequestDef {
	var out []model.RequestDef
	for _, d := range defs {
		if d.Enabled() {
			out = append(out, d)
		}
	}
	return out
}

// WriteRequests serialises defs as YAML to path.
func WriteRequests(path string, defs []model.RequestDef) error {
	data, err := yaml.Marshal(RequestsFile{Requests: defs})
	if err != nil {
		return fmt.Errorf("encoding requests: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
