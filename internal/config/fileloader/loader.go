// Package fileloader reads seed data from a YAML file.
package fileloader

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/equinor/flotilla-sub005/internal/config"
)

var _ config.SeedLoader = (*FileLoader)(nil)

// FileLoader loads seed data from a file on disk.
type FileLoader struct {
	path string
}

// NewFileLoader creates a FileLoader for path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads and parses the seed file. Unknown keys are rejected so a typo
// does not silently drop a robot or a schedule.
func (l *FileLoader) Load(ctx context.Context) (*config.Seed, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var seed config.Seed
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", l.path, err)
	}
	return &seed, nil
}
