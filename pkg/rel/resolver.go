package rel

import (
	"github.com/asakaida/relata/pkg/inflect"
)

// resolver resolves one relation key on one subject.
type resolver struct {
	reg     *Registry
	subject Subject
	record  Record    // set when kind == KindRecord
	set     RecordSet // set when kind == KindRecordSet
	key     string
	kind    SubjectKind
	decl    *Declarations
}

func newRecordResolver(reg *Registry, subject Record, key string) *resolver {
	return &resolver{
		reg:     reg,
		subject: subject,
		record:  subject,
		key:     key,
		kind:    KindRecord,
		decl:    declarationsOf(subject),
	}
}

func newSetResolver(reg *Registry, subject RecordSet, key string) *resolver {
	return &resolver{
		reg:     reg,
		subject: subject,
		set:     subject,
		key:     key,
		kind:    KindRecordSet,
		decl:    declarationsOf(subject),
	}
}

// searchRelations dispatches on the declared relation kinds. Record sets
// only resolve to-one relations; a to-many relation has no per-member
// subject at that level.
func (r *resolver) searchRelations() (Result, error) {
	kind := r.decl.Kind()
	if r.kind == KindRecordSet {
		kind &^= HasMany
	}

	switch kind {
	case NoRelations:
		return Null, nil
	case HasMany:
		return r.handleHasMany()
	case BelongsTo:
		return r.handleBelongsTo()
	default:
		res, err := r.handleHasMany()
		if err != nil || !res.IsNull() {
			return res, err
		}
		return r.handleBelongsTo()
	}
}

func (r *resolver) handleHasMany() (Result, error) {
	decl, ok := r.decl.Many(r.key)
	if !ok {
		return Null, nil
	}
	if decl.Target == nil {
		return Null, &ConfigurationError{Relation: r.key, Kind: HasMany, Subject: r.subject.Identity()}
	}
	if decl.ForeignKey == "" && decl.Filter == nil {
		return Null, &ConfigurationError{Relation: r.key, Kind: HasMany, Subject: r.subject.Identity(), Err: ErrNoMembership}
	}

	identity := r.record.Identity()
	if list, ok := r.reg.lookup(identity, r.key, decl.Target); ok {
		return Many(list), nil
	}

	list := decl.Target.Filter(r.membership(decl))
	r.reg.store(r.record, r.key, decl.Target, list)
	return Many(list), nil
}

// membership returns the predicate a candidate must satisfy. A custom filter
// takes precedence over the foreign key.
func (r *resolver) membership(decl ToMany) func(Record) bool {
	subject := r.record
	if decl.Filter != nil {
		return func(candidate Record) bool {
			return decl.Filter(subject, candidate)
		}
	}
	id := subject.ID()
	return func(candidate Record) bool {
		return SameID(candidate.Get(decl.ForeignKey), id)
	}
}

func (r *resolver) handleBelongsTo() (Result, error) {
	decl, ok := r.decl.One(r.key)
	if !ok {
		return Null, nil
	}
	if decl.Resolve != nil {
		return One(decl.Resolve(r.subject)), nil
	}
	if decl.Target == nil {
		return Null, &ConfigurationError{Relation: r.key, Kind: BelongsTo, Subject: r.subject.Identity()}
	}

	fk := inflect.ForeignKey(r.reg.singular, r.key)
	var id any
	if r.kind == KindRecordSet {
		id = r.set.Property(fk)
	} else {
		id = r.record.Get(fk)
	}
	if _, ok := IDKey(id); !ok {
		return Null, nil
	}

	target, found := decl.Target.Get(id)
	if !found {
		return Null, nil
	}
	return One(target), nil
}
