package rel

// RelGet resolves path on subject and reads attr from the result.
// A list result yields one value per element in order. When nothing is
// resolved the first default is returned, or nil.
func (r *Registry) RelGet(subject Record, path, attr string, def ...any) (any, error) {
	return r.project(subject, path, def, func(rec Record) any {
		return rec.Get(attr)
	})
}

// RelResult is RelGet for values that may be computed: a name declared with
// Declarations.Computed on the resolved record's type is evaluated, anything
// else is read as a plain attribute.
func (r *Registry) RelResult(subject Record, path, name string, def ...any) (any, error) {
	return r.project(subject, path, def, func(rec Record) any {
		return declarationsOf(rec).Value(rec, name)
	})
}

func (r *Registry) project(subject Record, path string, def []any, read func(Record) any) (any, error) {
	res, err := r.Rel(subject, path)
	if err != nil {
		return nil, err
	}

	switch {
	case res.IsNull():
		if len(def) > 0 {
			return def[0], nil
		}
		return nil, nil
	case res.IsList():
		values := make([]any, len(res.List()))
		for i, rec := range res.List() {
			values[i] = read(rec)
		}
		return values, nil
	default:
		return read(res.Record()), nil
	}
}
