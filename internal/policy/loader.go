package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk rule table format
type File struct {
	Rules []Rule `yaml:"rules"`
}

// LoadFile reads a YAML rule table from path
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML rule table. Unknown fields are rejected.
func Parse(data []byte) ([]Rule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("policy file is empty")
		}
		return nil, fmt.Errorf("failed to decode policy file: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, errors.New("policy file has no rules")
	}
	return file.Rules, nil
}

// Load returns an engine for the rule file at path, or the default rules when path is empty
func Load(path string) (*Engine, error) {
	if path == "" {
		return NewEngine(DefaultRules())
	}
	rules, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewEngine(rules)
}
