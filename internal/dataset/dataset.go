package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/asakaida/relata/pkg/memstore"
	"github.com/asakaida/relata/pkg/rel"
)

var (
	// ErrUnknownCollection is returned for a collection name not in the dataset.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrRecordNotFound is returned when no record has the requested id.
	ErrRecordNotFound = errors.New("record not found")
	// ErrNoTableLoader is returned when a table-backed collection has no loader.
	ErrNoTableLoader = errors.New("no table loader configured")
)

// TableLoader reads the rows of a table as attribute maps.
type TableLoader interface {
	LoadTable(ctx context.Context, table, orderBy string) ([]map[string]any, error)
}

// Dataset is a set of named collections sharing one relation registry.
// Like the registry, it is not safe for concurrent use.
type Dataset struct {
	file        *File
	registry    *rel.Registry
	collections map[string]*memstore.Collection
	loader      TableLoader
	logger      *zap.Logger
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithTableLoader sets the source for table-backed collections.
func WithTableLoader(l TableLoader) Option {
	return func(d *Dataset) {
		d.loader = l
	}
}

// WithLogger sets the dataset logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dataset) {
		if l != nil {
			d.logger = l
		}
	}
}

// Build creates the collections of f, declares their relations against reg
// and loads their records.
func Build(ctx context.Context, f *File, reg *rel.Registry, opts ...Option) (*Dataset, error) {
	d := &Dataset{
		file:        f,
		registry:    reg,
		collections: make(map[string]*memstore.Collection, len(f.Collections)),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := Validate(f); err != nil {
		return nil, err
	}

	for _, spec := range f.Collections {
		c := memstore.New(spec.Name)
		for name, value := range spec.Properties {
			c.SetProperty(name, value)
		}
		d.collections[spec.Name] = c
	}

	engine, err := NewCELEngine(d.logger)
	if err != nil {
		return nil, err
	}

	for _, spec := range f.Collections {
		if err := d.declare(engine, spec); err != nil {
			return nil, fmt.Errorf("collection %q: %w", spec.Name, err)
		}
	}

	for _, spec := range f.Collections {
		if err := d.load(ctx, spec, memstore.Silent()); err != nil {
			return nil, err
		}
	}

	d.logger.Info("dataset built", zap.Int("collections", len(d.collections)))
	return d, nil
}

func (d *Dataset) declare(engine *CELEngine, spec CollectionSpec) error {
	models := rel.Declare()

	for key, hm := range spec.HasMany {
		m := rel.ToMany{Target: d.collections[hm.Collection], ForeignKey: hm.ForeignKey}
		if hm.Filter != "" {
			filter, err := engine.Filter(hm.Filter)
			if err != nil {
				return fmt.Errorf("has_many %q: %w", key, err)
			}
			m.Filter = filter
		}
		models.HasMany(key, m)
	}

	for key, bt := range spec.BelongsTo {
		models.BelongsTo(key, d.toOne(bt))
	}

	for name, expression := range spec.Computed {
		fn, err := engine.Computed(expression)
		if err != nil {
			return fmt.Errorf("computed %q: %w", name, err)
		}
		models.Computed(name, fn)
	}

	c := d.collections[spec.Name]
	c.SetModelRelations(models)

	if len(spec.SetBelongsTo) > 0 {
		set := rel.Declare()
		for key, bt := range spec.SetBelongsTo {
			set.BelongsTo(key, d.toOne(bt))
		}
		c.SetRelations(set)
	}

	return nil
}

// toOne builds a lookup declaration, or a resolver function that follows
// a path from the subject and keeps only a single-record result.
func (d *Dataset) toOne(bt BelongsToSpec) rel.ToOne {
	if bt.Path == "" {
		return rel.ToOne{Target: d.collections[bt.Collection]}
	}

	path := bt.Path
	return rel.ToOne{Resolve: func(subject rel.Subject) rel.Record {
		var (
			res rel.Result
			err error
		)
		switch s := subject.(type) {
		case rel.Record:
			res, err = d.registry.Rel(s, path)
		case rel.RecordSet:
			res, err = d.registry.RelSet(s, path)
		default:
			return nil
		}
		if err != nil {
			d.logger.Warn("path relation failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		if res.IsNull() || res.IsList() {
			return nil
		}
		return res.Record()
	}}
}

func (d *Dataset) load(ctx context.Context, spec CollectionSpec, opts ...memstore.MutationOption) error {
	c := d.collections[spec.Name]

	if spec.Table == "" {
		c.Reset(spec.Records, opts...)
		return nil
	}

	if d.loader == nil {
		return fmt.Errorf("collection %q uses table %q: %w", spec.Name, spec.Table, ErrNoTableLoader)
	}

	records, err := d.loader.LoadTable(ctx, spec.Table, spec.OrderBy)
	if err != nil {
		return fmt.Errorf("failed to load collection %q: %w", spec.Name, err)
	}
	c.Reset(records, opts...)

	d.logger.Debug("collection loaded",
		zap.String("collection", spec.Name),
		zap.String("table", spec.Table),
		zap.Int("records", len(records)))
	return nil
}

// Reload reloads every collection backed by table, or all table-backed
// collections when table is empty. The reset is observable, so cached
// relations over the reloaded collections are invalidated.
func (d *Dataset) Reload(ctx context.Context, table string) (int, error) {
	reloaded := 0
	for _, spec := range d.file.Collections {
		if spec.Table == "" || (table != "" && spec.Table != table) {
			continue
		}
		if err := d.load(ctx, spec); err != nil {
			return reloaded, err
		}
		reloaded++
	}
	return reloaded, nil
}

// Registry returns the registry the dataset declares its relations against.
func (d *Dataset) Registry() *rel.Registry {
	return d.registry
}

// Names returns the collection names in sorted order.
func (d *Dataset) Names() []string {
	names := make([]string, 0, len(d.collections))
	for name := range d.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collection returns the collection named name.
func (d *Dataset) Collection(name string) (*memstore.Collection, error) {
	c, ok := d.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return c, nil
}

// Record returns the record with id in the named collection.
func (d *Dataset) Record(collection string, id any) (*memstore.Model, error) {
	c, err := d.Collection(collection)
	if err != nil {
		return nil, err
	}
	m, ok := c.Model(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%v", ErrRecordNotFound, collection, id)
	}
	return m, nil
}
