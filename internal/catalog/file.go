package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/claude/freeflow/internal/models"
)

// File is the on-disk catalog layout.
type File struct {
	Movements []models.Movement `yaml:"movements"`
}

// Decode parses a YAML catalog document. Unknown fields are rejected so typos
// in hand-edited catalogs surface early.
func Decode(r io.Reader) ([]models.Movement, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return f.Movements, nil
}

// LoadFile reads and parses a YAML catalog file.
func LoadFile(path string) ([]models.Movement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	movements, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return movements, nil
}

// FileSource loads movements from a YAML file.
type FileSource struct {
	Path string
}

var _ Source = FileSource{}

// LoadMovements implements Source.
func (f FileSource) LoadMovements(_ context.Context) ([]models.Movement, error) {
	return LoadFile(f.Path)
}

// Encode writes movements as a YAML catalog document.
func Encode(w io.Writer, movements []models.Movement) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Movements: movements}); err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	return enc.Close()
}
