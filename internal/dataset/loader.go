package dataset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultOrderBy orders table-backed collections unless order_by is given.
const DefaultOrderBy = "id"

// LoadFile loads and parses a YAML dataset file from the given path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses YAML data into a File and validates it.
func Parse(data []byte) (*File, error) {
	var f File

	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse dataset YAML: %w", err)
	}

	applyDefaults(&f)

	if err := Validate(&f); err != nil {
		return nil, err
	}

	return &f, nil
}

// applyDefaults fills in default values for optional fields.
func applyDefaults(f *File) {
	if f.Version == "" {
		f.Version = "1"
	}

	for i := range f.Collections {
		c := &f.Collections[i]
		if c.Table != "" && c.OrderBy == "" {
			c.OrderBy = DefaultOrderBy
		}
	}
}

// Validate checks names and references without compiling expressions.
func Validate(f *File) error {
	names := make(map[string]bool, len(f.Collections))
	for _, c := range f.Collections {
		if c.Name == "" {
			return fmt.Errorf("collection name is required")
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate collection %q", c.Name)
		}
		names[c.Name] = true
	}

	for _, c := range f.Collections {
		if c.Table != "" && len(c.Records) > 0 {
			return fmt.Errorf("collection %q: records and table are mutually exclusive", c.Name)
		}

		for key, hm := range c.HasMany {
			if hm.Collection == "" {
				return fmt.Errorf("collection %q: has_many %q: collection is required", c.Name, key)
			}
			if !names[hm.Collection] {
				return fmt.Errorf("collection %q: has_many %q: unknown collection %q", c.Name, key, hm.Collection)
			}
			if hm.ForeignKey == "" && hm.Filter == "" {
				return fmt.Errorf("collection %q: has_many %q: foreign_key or filter is required", c.Name, key)
			}
		}

		if err := validateBelongsTo(c.Name, "belongs_to", c.BelongsTo, names); err != nil {
			return err
		}
		if err := validateBelongsTo(c.Name, "set_belongs_to", c.SetBelongsTo, names); err != nil {
			return err
		}
	}

	return nil
}

func validateBelongsTo(coll, section string, decls map[string]BelongsToSpec, names map[string]bool) error {
	for key, bt := range decls {
		switch {
		case bt.Collection != "" && bt.Path != "":
			return fmt.Errorf("collection %q: %s %q: collection and path are mutually exclusive", coll, section, key)
		case bt.Collection == "" && bt.Path == "":
			return fmt.Errorf("collection %q: %s %q: collection or path is required", coll, section, key)
		case bt.Collection != "" && !names[bt.Collection]:
			return fmt.Errorf("collection %q: %s %q: unknown collection %q", coll, section, key, bt.Collection)
		}
	}
	return nil
}

// Marshal serializes a File to YAML.
func Marshal(f *File) ([]byte, error) {
	return yaml.Marshal(f)
}
