package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed collections.yaml
var defaultCollectionsYAML []byte

type collectionsFile struct {
	Collections []string `yaml:"collections"`
}

// DefaultCollections returns the collection slugs shipped with the binary.
func DefaultCollections() []string {
	slugs, err := ParseCollectionsYAML(defaultCollectionsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded collections.yaml: %v", err))
	}
	return slugs
}

// LoadCollections reads a known-collections file.
func LoadCollections(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read collections file %s: %w", path, err)
	}
	slugs, err := ParseCollectionsYAML(data)
	if err != nil {
		return nil, fmt.Errorf("parse collections file %s: %w", path, err)
	}
	return slugs, nil
}

// ParseCollectionsYAML decodes a document of the form `collections: [a, b]`.
func ParseCollectionsYAML(data []byte) ([]string, error) {
	var file collectionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	slugs := normalizeSlugs(file.Collections)
	if len(slugs) == 0 {
		return nil, fmt.Errorf("no collections listed")
	}
	return slugs, nil
}
