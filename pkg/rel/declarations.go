package rel

// Kind is the set of relation kinds a type declares.
type Kind uint8

const (
	NoRelations Kind = 0
	HasMany     Kind = 1 << 0
	BelongsTo   Kind = 1 << 1
	Both             = HasMany | BelongsTo
)

func (k Kind) String() string {
	switch k {
	case NoRelations:
		return "none"
	case HasMany:
		return "has_many"
	case BelongsTo:
		return "belongs_to"
	case Both:
		return "both"
	default:
		return "invalid"
	}
}

// ToMany declares a one-to-many relation computed by filtering Target.
//
// Membership is tested with Filter when set, otherwise by comparing the
// candidate's ForeignKey attribute with the subject id.
type ToMany struct {
	Target     RecordSet
	ForeignKey string
	Filter     func(subject, candidate Record) bool
}

// ToOne declares a many-to-one relation. Resolve, when set, computes the
// related record directly; otherwise the record is looked up in Target by
// the singularized relation key plus "_id".
type ToOne struct {
	Target  RecordSet
	Resolve func(subject Subject) Record
}

// Accessor says how a named value is read from a record.
type Accessor int

const (
	AccessorAttribute Accessor = iota
	AccessorComputed
)

// Declarations holds the relations and computed values of one record or set type.
// Build it once per type with Declare and return the same value from Relations.
type Declarations struct {
	kind      Kind
	hasMany   map[string]ToMany
	belongsTo map[string]ToOne
	computed  map[string]func(Record) any
}

// Declare starts an empty declaration set.
func Declare() *Declarations {
	return &Declarations{
		hasMany:   make(map[string]ToMany),
		belongsTo: make(map[string]ToOne),
		computed:  make(map[string]func(Record) any),
	}
}

// HasMany declares a to-many relation under key.
func (d *Declarations) HasMany(key string, m ToMany) *Declarations {
	d.hasMany[key] = m
	d.kind |= HasMany
	return d
}

// BelongsTo declares a to-one relation under key.
func (d *Declarations) BelongsTo(key string, o ToOne) *Declarations {
	d.belongsTo[key] = o
	d.kind |= BelongsTo
	return d
}

// Computed declares a zero-argument computed value readable through RelResult.
func (d *Declarations) Computed(name string, fn func(Record) any) *Declarations {
	d.computed[name] = fn
	return d
}

// Kind returns the relation kinds declared so far. A nil receiver has none.
func (d *Declarations) Kind() Kind {
	if d == nil {
		return NoRelations
	}
	return d.kind
}

// Many returns the to-many declaration for key.
func (d *Declarations) Many(key string) (ToMany, bool) {
	if d == nil {
		return ToMany{}, false
	}
	m, ok := d.hasMany[key]
	return m, ok
}

// One returns the to-one declaration for key.
func (d *Declarations) One(key string) (ToOne, bool) {
	if d == nil {
		return ToOne{}, false
	}
	o, ok := d.belongsTo[key]
	return o, ok
}

// Accessor reports whether name is a computed value or a plain attribute.
func (d *Declarations) Accessor(name string) Accessor {
	if d == nil {
		return AccessorAttribute
	}
	if _, ok := d.computed[name]; ok {
		return AccessorComputed
	}
	return AccessorAttribute
}

// Value reads name from r through its accessor.
func (d *Declarations) Value(r Record, name string) any {
	if d.Accessor(name) == AccessorComputed {
		return d.computed[name](r)
	}
	return r.Get(name)
}

// Validate reports the first declaration that can never resolve.
func (d *Declarations) Validate() error {
	if d == nil {
		return nil
	}
	for key, m := range d.hasMany {
		if m.Target == nil {
			return &ConfigurationError{Relation: key, Kind: HasMany}
		}
		if m.ForeignKey == "" && m.Filter == nil {
			return &ConfigurationError{Relation: key, Kind: HasMany, Err: ErrNoMembership}
		}
	}
	for key, o := range d.belongsTo {
		if o.Target == nil && o.Resolve == nil {
			return &ConfigurationError{Relation: key, Kind: BelongsTo}
		}
	}
	return nil
}

func declarationsOf(s Subject) *Declarations {
	if r, ok := s.(Relatable); ok {
		return r.Relations()
	}
	return nil
}
