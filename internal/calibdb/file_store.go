// Package calibdb provides calibration stores backed by a YAML file or a MySQL database.
package calibdb

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/usnistgov/evsel"
	"gopkg.in/yaml.v3"
)

// Document is the layout of a calibration file. Each list holds the versions of
// one calibration kind.
type Document struct {
	Parameters []*evsel.CalibrationParameters `yaml:"parameters"`
	Aliases    []*evsel.TriggerAliasTable     `yaml:"aliases"`
	Filling    []*evsel.BunchFilling          `yaml:"filling"`
}

// Decode reads a calibration document into an in-memory store. Later versions
// take precedence where validity ranges overlap.
func Decode(r io.Reader) (*evsel.StaticStore, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("could not parse calibration document: %w", err)
	}
	store, err := evsel.NewStaticStore()
	if err != nil {
		return nil, err
	}
	for _, p := range doc.Parameters {
		if err := store.Add(p); err != nil {
			return nil, err
		}
	}
	for _, a := range doc.Aliases {
		if err := store.Add(a); err != nil {
			return nil, err
		}
	}
	for _, f := range doc.Filling {
		if err := store.Add(evsel.NewBunchFilling(f.Valid, f.Colliding)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// LoadFile reads the calibration document at path.
func LoadFile(path string) (*evsel.StaticStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	store, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return store, nil
}

// Encode writes doc in the format read by Decode.
func Encode(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
