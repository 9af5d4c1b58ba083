package rel

// Model binds a record to a registry so relations can be read off the record itself.
type Model struct {
	Record
	reg *Registry
}

// Bind attaches the relation accessors of reg to rec.
func Bind(reg *Registry, rec Record) Model {
	return Model{Record: rec, reg: reg}
}

// Relations forwards the declarations of the wrapped record.
func (m Model) Relations() *Declarations {
	return declarationsOf(m.Record)
}

// Rel resolves path on the record.
func (m Model) Rel(path string) (Result, error) {
	return m.reg.Rel(m.Record, path)
}

// RelGet reads attr from whatever path resolves to.
func (m Model) RelGet(path, attr string, def ...any) (any, error) {
	return m.reg.RelGet(m.Record, path, attr, def...)
}

// RelResult reads a computed value or attribute from whatever path resolves to.
func (m Model) RelResult(path, name string, def ...any) (any, error) {
	return m.reg.RelResult(m.Record, path, name, def...)
}

// Collection binds a record set to a registry.
type Collection struct {
	RecordSet
	reg *Registry
}

// BindSet attaches the relation accessor of reg to set.
func BindSet(reg *Registry, set RecordSet) Collection {
	return Collection{RecordSet: set, reg: reg}
}

// Relations forwards the declarations of the wrapped set.
func (c Collection) Relations() *Declarations {
	return declarationsOf(c.RecordSet)
}

// Rel resolves path on the set. Only to-one relations apply to the first hop.
func (c Collection) Rel(path string) (Result, error) {
	return c.reg.RelSet(c.RecordSet, path)
}
