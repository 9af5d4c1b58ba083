package rel

import (
	"fmt"
	"strings"
)

// PathSeparator separates the hops of a relation path.
const PathSeparator = "."

// Rel resolves a dotted relation path starting at a record.
//
// Each hop is resolved on the previous result: on a single record directly,
// on a list element by element with the results concatenated in order
// (duplicates kept), and a null result ends the path with null.
func (r *Registry) Rel(subject Record, path string) (Result, error) {
	return r.evaluate(path, func(key string) (Result, error) {
		return newRecordResolver(r, subject, key).searchRelations()
	})
}

// RelSet resolves a dotted relation path starting at a record set.
// The first hop is restricted to to-one relations.
func (r *Registry) RelSet(subject RecordSet, path string) (Result, error) {
	return r.evaluate(path, func(key string) (Result, error) {
		return newSetResolver(r, subject, key).searchRelations()
	})
}

func (r *Registry) evaluate(path string, first func(key string) (Result, error)) (Result, error) {
	keys := strings.Split(path, PathSeparator)

	current, err := first(keys[0])
	if err != nil {
		return Null, fmt.Errorf("failed to resolve %q: %w", path, err)
	}

	for _, key := range keys[1:] {
		switch {
		case current.IsNull():
			return Null, nil
		case current.IsList():
			current, err = r.hopEach(current.List(), key)
		default:
			current, err = newRecordResolver(r, current.Record(), key).searchRelations()
		}
		if err != nil {
			return Null, fmt.Errorf("failed to resolve %q: %w", path, err)
		}
	}

	return current, nil
}

// hopEach resolves key on every record and flattens the results one level.
func (r *Registry) hopEach(records []Record, key string) (Result, error) {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		res, err := newRecordResolver(r, rec, key).searchRelations()
		if err != nil {
			return Null, err
		}
		out = append(out, res.Records()...)
	}
	return Many(out), nil
}
