package inventory

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Decode reads a YAML (or JSON) snapshot document and builds a snapshot.
func Decode(r io.Reader) (*Snapshot, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return New(nil, nil, nil, nil)
		}
		return nil, fmt.Errorf("inventory: decode: %w", err)
	}
	return FromDocument(doc)
}

// LoadFile reads a snapshot document from path.
func LoadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("inventory: open: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
