package rel

// Result is the value of a relation path: null, one record, or a list of records.
type Result struct {
	record Record
	list   []Record
	many   bool
}

// Null is the empty result.
var Null = Result{}

// One wraps a single record. A nil record yields Null.
func One(r Record) Result {
	if isNil(r) {
		return Null
	}
	return Result{record: r}
}

// Many wraps a list of records. The list is kept by reference.
func Many(list []Record) Result {
	if list == nil {
		list = []Record{}
	}
	return Result{list: list, many: true}
}

// IsNull reports whether nothing was resolved. An empty list is not null.
func (r Result) IsNull() bool {
	return !r.many && r.record == nil
}

// IsList reports whether the result is a list.
func (r Result) IsList() bool {
	return r.many
}

// Record returns the single record, or nil for lists and null.
func (r Result) Record() Record {
	return r.record
}

// List returns the list, or nil for single and null results.
func (r Result) List() []Record {
	return r.list
}

// Records returns the result as a slice regardless of shape.
func (r Result) Records() []Record {
	switch {
	case r.many:
		return r.list
	case r.record != nil:
		return []Record{r.record}
	default:
		return nil
	}
}
