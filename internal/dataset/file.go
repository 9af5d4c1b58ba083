// Package dataset builds a relation registry and its collections from a
// YAML description. Records come inline or from PostgreSQL tables; relation
// filters and computed values are CEL expressions.
package dataset

// File is the root of a dataset YAML document.
type File struct {
	Version     string           `yaml:"version"`
	Collections []CollectionSpec `yaml:"collections"`
}

// CollectionSpec describes one collection and the relations of its records.
type CollectionSpec struct {
	Name string `yaml:"name"`

	// Exactly one source: inline records or a table.
	Records []map[string]any `yaml:"records,omitempty"`
	Table   string           `yaml:"table,omitempty"`
	OrderBy string           `yaml:"order_by,omitempty"`

	Properties map[string]any `yaml:"properties,omitempty"`

	HasMany      map[string]HasManySpec   `yaml:"has_many,omitempty"`
	BelongsTo    map[string]BelongsToSpec `yaml:"belongs_to,omitempty"`
	SetBelongsTo map[string]BelongsToSpec `yaml:"set_belongs_to,omitempty"`
	Computed     map[string]string        `yaml:"computed,omitempty"`
}

// HasManySpec declares a to-many relation. Filter is a CEL expression over
// subject and candidate; when set it replaces the foreign key comparison.
type HasManySpec struct {
	Collection string `yaml:"collection"`
	ForeignKey string `yaml:"foreign_key,omitempty"`
	Filter     string `yaml:"filter,omitempty"`
}

// BelongsToSpec declares a to-one relation, either looked up in Collection
// or resolved by following Path from the subject.
type BelongsToSpec struct {
	Collection string `yaml:"collection,omitempty"`
	Path       string `yaml:"path,omitempty"`
}

// Spec returns the collection spec named name.
func (f *File) Spec(name string) (CollectionSpec, bool) {
	for _, c := range f.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return CollectionSpec{}, false
}
