// Package rel resolves derived relations between in-memory records.
//
// A record or record set opts in by implementing Relatable and returning
// Declarations built with Declare. A Registry evaluates dotted relation
// paths ("tasks.comments") against those declarations and memoizes to-many
// results until the contributing RecordSet reports an observable mutation.
package rel

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// Subject is anything a relation can be resolved on: a Record or a RecordSet.
type Subject interface {
	// Identity is stable for the lifetime of the subject and unique across
	// all subjects sharing a Registry.
	Identity() string
}

// Record is a single entity with an identity and named attributes.
type Record interface {
	Subject

	// ID returns the record id, or nil when none is assigned yet.
	ID() any

	// Get returns the attribute value, or nil when unset.
	Get(attr string) any
}

// MutationKind describes what changed in a RecordSet.
type MutationKind int

const (
	MutationAdd MutationKind = iota + 1
	MutationRemove
	MutationChange
	MutationReset
)

func (k MutationKind) String() string {
	switch k {
	case MutationAdd:
		return "add"
	case MutationRemove:
		return "remove"
	case MutationChange:
		return "change"
	case MutationReset:
		return "reset"
	default:
		return fmt.Sprintf("mutation(%d)", int(k))
	}
}

// Mutation is delivered to subscribers for every observable change.
// Silent changes are never delivered.
type Mutation struct {
	Kind      MutationKind
	Record    Record // nil for MutationReset
	Attribute string // set for MutationChange
}

// RecordSet is an ordered, queryable collection of records.
type RecordSet interface {
	Subject

	// Get looks a record up by id.
	Get(id any) (Record, bool)

	// Filter returns the members matching pred in iteration order.
	// The returned slice is never nil.
	Filter(pred func(Record) bool) []Record

	// Subscribe registers fn for observable mutations and returns a function
	// that removes the registration.
	Subscribe(fn func(Mutation)) (unsubscribe func())

	// Property returns a set-level property such as the parent id of a scoped
	// collection, or nil.
	Property(name string) any
}

// Member is implemented by records that belong to a record set. When the
// set removes a member or is reset, the registry forgets the relations it
// cached for that member.
type Member interface {
	// Owner returns the owning set, or nil for a detached record.
	Owner() RecordSet
}

// Relatable is implemented by record and record set types that declare relations.
type Relatable interface {
	Relations() *Declarations
}

// SubjectKind selects which relation kinds a resolution may use.
type SubjectKind int

const (
	KindRecord SubjectKind = iota
	KindRecordSet
)

// IDKey normalizes an id value so that 1, int64(1), 1.0 and "1" compare equal.
// It reports false for missing ids (nil or empty string).
func IDKey(id any) (string, bool) {
	if id == nil {
		return "", false
	}
	s, err := cast.ToStringE(id)
	if err != nil {
		s = fmt.Sprintf("%v", id)
	}
	if s == "" {
		return "", false
	}
	return s, true
}

// SameID reports whether two id values refer to the same record.
// Missing ids never match, not even each other.
func SameID(a, b any) bool {
	ka, ok := IDKey(a)
	if !ok {
		return false
	}
	kb, ok := IDKey(b)
	return ok && ka == kb
}

// isNil catches typed nil pointers hidden inside an interface value.
func isNil(r any) bool {
	if r == nil {
		return true
	}
	v := reflect.ValueOf(r)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}
