// Package memstore is an in-memory record store implementing the rel
// Record and RecordSet contracts. Collections are ordered, indexed by id,
// and notify subscribers synchronously for every change that is not silent.
package memstore

import (
	"fmt"
	"reflect"
	"sort"
	"sync/atomic"

	"github.com/asakaida/relata/pkg/rel"
)

// IDAttribute is the attribute holding a record id.
const IDAttribute = "id"

var cidCounter atomic.Uint64

func nextCID() string {
	return fmt.Sprintf("c%d", cidCounter.Add(1))
}

type options struct {
	silent bool
}

// MutationOption modifies a single mutation call.
type MutationOption func(*options)

// Silent applies a change without notifying subscribers.
func Silent() MutationOption {
	return func(o *options) {
		o.silent = true
	}
}

func buildOptions(opts []MutationOption) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type handler struct {
	id int
	fn func(rel.Mutation)
}

// Collection is an ordered set of models of one type.
// It is not safe for concurrent use.
type Collection struct {
	name   string
	models []*Model
	byID   map[string]*Model

	properties     map[string]any
	relations      *rel.Declarations
	modelRelations *rel.Declarations

	handlers    map[int]handler
	nextHandler int
}

// New creates an empty collection. The name prefixes model identities and
// must be unique among collections sharing a registry.
func New(name string) *Collection {
	return &Collection{
		name:       name,
		byID:       make(map[string]*Model),
		properties: make(map[string]any),
		handlers:   make(map[int]handler),
	}
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Identity implements rel.Subject.
func (c *Collection) Identity() string {
	return "collection:" + c.name
}

// Relations returns the set-level declarations.
func (c *Collection) Relations() *rel.Declarations {
	return c.relations
}

// SetRelations sets the set-level declarations (to-one only).
func (c *Collection) SetRelations(d *rel.Declarations) {
	c.relations = d
}

// SetModelRelations sets the declarations shared by every model of the collection.
func (c *Collection) SetModelRelations(d *rel.Declarations) {
	c.modelRelations = d
}

// SetProperty sets a set-level property, e.g. "project_id" on a collection
// holding the tasks of one project.
func (c *Collection) SetProperty(name string, value any) {
	c.properties[name] = value
}

// Property implements rel.RecordSet.
func (c *Collection) Property(name string) any {
	return c.properties[name]
}

// Len returns the number of models.
func (c *Collection) Len() int {
	return len(c.models)
}

// Models returns the models in order. The slice must not be modified.
func (c *Collection) Models() []*Model {
	return c.models
}

// Get implements rel.RecordSet.
func (c *Collection) Get(id any) (rel.Record, bool) {
	m, ok := c.Model(id)
	if !ok {
		return nil, false
	}
	return m, true
}

// Model looks a model up by id.
func (c *Collection) Model(id any) (*Model, bool) {
	key, ok := rel.IDKey(id)
	if !ok {
		return nil, false
	}
	m, ok := c.byID[key]
	return m, ok
}

// Filter implements rel.RecordSet.
func (c *Collection) Filter(pred func(rel.Record) bool) []rel.Record {
	out := make([]rel.Record, 0)
	for _, m := range c.models {
		if pred(m) {
			out = append(out, m)
		}
	}
	return out
}

// Subscribe implements rel.RecordSet.
func (c *Collection) Subscribe(fn func(rel.Mutation)) func() {
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = handler{id: id, fn: fn}
	return func() {
		delete(c.handlers, id)
	}
}

// Subscribers returns the number of registered handlers.
func (c *Collection) Subscribers() int {
	return len(c.handlers)
}

// Add appends a model built from attrs. If a model with the same id exists,
// its attributes are merged instead.
func (c *Collection) Add(attrs map[string]any, opts ...MutationOption) *Model {
	if key, ok := rel.IDKey(attrs[IDAttribute]); ok {
		if existing, found := c.byID[key]; found {
			for name, value := range attrs {
				existing.Set(name, value, opts...)
			}
			return existing
		}
	}

	m := &Model{cid: nextCID(), attrs: make(map[string]any, len(attrs)), coll: c}
	for name, value := range attrs {
		m.attrs[name] = value
	}
	c.models = append(c.models, m)
	c.index(m)

	c.emit(rel.Mutation{Kind: rel.MutationAdd, Record: m}, buildOptions(opts))
	return m
}

// AddAll adds every attribute map in order.
func (c *Collection) AddAll(records []map[string]any, opts ...MutationOption) {
	for _, attrs := range records {
		c.Add(attrs, opts...)
	}
}

// Remove deletes the model with the given id and reports whether it existed.
func (c *Collection) Remove(id any, opts ...MutationOption) bool {
	m, ok := c.Model(id)
	if !ok {
		return false
	}
	for i, candidate := range c.models {
		if candidate == m {
			c.models = append(c.models[:i], c.models[i+1:]...)
			break
		}
	}
	c.unindex(m)

	// Handlers still see the model under its collection identity
	c.emit(rel.Mutation{Kind: rel.MutationRemove, Record: m}, buildOptions(opts))
	m.coll = nil
	return true
}

// Reset replaces the contents with records.
func (c *Collection) Reset(records []map[string]any, opts ...MutationOption) {
	for _, m := range c.models {
		m.coll = nil
	}
	c.models = nil
	c.byID = make(map[string]*Model)

	for _, attrs := range records {
		m := &Model{cid: nextCID(), attrs: make(map[string]any, len(attrs)), coll: c}
		for name, value := range attrs {
			m.attrs[name] = value
		}
		c.models = append(c.models, m)
		c.index(m)
	}

	c.emit(rel.Mutation{Kind: rel.MutationReset}, buildOptions(opts))
}

func (c *Collection) index(m *Model) {
	if key, ok := rel.IDKey(m.attrs[IDAttribute]); ok {
		c.byID[key] = m
	}
}

func (c *Collection) unindex(m *Model) {
	if key, ok := rel.IDKey(m.attrs[IDAttribute]); ok && c.byID[key] == m {
		delete(c.byID, key)
	}
}

// emit calls handlers in registration order. Handlers may unsubscribe
// themselves or others while being called.
func (c *Collection) emit(m rel.Mutation, o options) {
	if o.silent {
		return
	}
	ids := make([]int, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if h, ok := c.handlers[id]; ok {
			h.fn(m)
		}
	}
}

// Model is a record owned by a Collection.
type Model struct {
	cid   string
	attrs map[string]any
	coll  *Collection
}

// NewModel creates a detached model that belongs to no collection.
func NewModel(attrs map[string]any) *Model {
	m := &Model{cid: nextCID(), attrs: make(map[string]any, len(attrs))}
	for name, value := range attrs {
		m.attrs[name] = value
	}
	return m
}

// CID returns the client-side identity assigned at creation.
func (m *Model) CID() string {
	return m.cid
}

// Identity implements rel.Subject. It is the collection name plus the id,
// or plus the client id while no id is assigned.
func (m *Model) Identity() string {
	prefix := ""
	if m.coll != nil {
		prefix = m.coll.name + ":"
	}
	if key, ok := rel.IDKey(m.attrs[IDAttribute]); ok {
		return prefix + key
	}
	return prefix + m.cid
}

// ID implements rel.Record.
func (m *Model) ID() any {
	return m.attrs[IDAttribute]
}

// Get implements rel.Record.
func (m *Model) Get(attr string) any {
	return m.attrs[attr]
}

// Attributes returns a copy of the attributes.
func (m *Model) Attributes() map[string]any {
	out := make(map[string]any, len(m.attrs))
	for name, value := range m.attrs {
		out[name] = value
	}
	return out
}

// Collection returns the owning collection, or nil once removed.
func (m *Model) Collection() *Collection {
	return m.coll
}

// Owner implements rel.Member.
func (m *Model) Owner() rel.RecordSet {
	if m.coll == nil {
		return nil
	}
	return m.coll
}

// Relations implements rel.Relatable with the declarations of the owning collection.
func (m *Model) Relations() *rel.Declarations {
	if m.coll == nil {
		return nil
	}
	return m.coll.modelRelations
}

// Set changes one attribute and notifies the owning collection.
// Setting an attribute to its current value is a no-op.
func (m *Model) Set(attr string, value any, opts ...MutationOption) {
	old, had := m.attrs[attr]
	if had && reflect.DeepEqual(old, value) {
		return
	}

	if attr == IDAttribute && m.coll != nil {
		m.coll.unindex(m)
	}
	m.attrs[attr] = value
	if attr == IDAttribute && m.coll != nil {
		m.coll.index(m)
	}

	if m.coll != nil {
		m.coll.emit(rel.Mutation{Kind: rel.MutationChange, Record: m, Attribute: attr}, buildOptions(opts))
	}
}

// Unset removes an attribute.
func (m *Model) Unset(attr string, opts ...MutationOption) {
	if _, had := m.attrs[attr]; !had {
		return
	}
	if attr == IDAttribute && m.coll != nil {
		m.coll.unindex(m)
	}
	delete(m.attrs, attr)
	if m.coll != nil {
		m.coll.emit(rel.Mutation{Kind: rel.MutationChange, Record: m, Attribute: attr}, buildOptions(opts))
	}
}
