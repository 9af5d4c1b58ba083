// Package inflect derives singular stems from plural relation keys.
package inflect

import (
	"strings"
	"sync"

	"github.com/jinzhu/inflection"
)

// IDSuffix is appended to a singularized relation key to form a foreign key attribute name.
const IDSuffix = "_id"

// Singularizer turns a plural word into its singular form.
type Singularizer interface {
	Singularize(word string) string
}

// Func adapts a plain function to the Singularizer interface.
type Func func(word string) string

// Singularize calls f(word).
func (f Func) Singularize(word string) string {
	return f(word)
}

// Simple returns the default policy: strip one trailing "s".
func Simple() Singularizer {
	return Func(func(word string) string {
		return strings.TrimSuffix(word, "s")
	})
}

// English returns an inflector that knows irregular English plurals
// ("people" -> "person", "categories" -> "category").
func English() Singularizer {
	return Func(inflection.Singular)
}

// Memo caches the output of another Singularizer.
// It is safe for concurrent use.
type Memo struct {
	next  Singularizer
	cache sync.Map // map[string]string
}

// Memoize wraps s so that every distinct input is computed once.
// Wrapping a *Memo returns it unchanged.
func Memoize(s Singularizer) *Memo {
	if m, ok := s.(*Memo); ok {
		return m
	}
	if s == nil {
		s = Simple()
	}
	return &Memo{next: s}
}

// Singularize returns the memoized singular form of word.
func (m *Memo) Singularize(word string) string {
	if v, ok := m.cache.Load(word); ok {
		return v.(string)
	}
	v, _ := m.cache.LoadOrStore(word, m.next.Singularize(word))
	return v.(string)
}

// ForeignKey returns the foreign key attribute name for a to-one relation key,
// e.g. "project" -> "project_id", "users" -> "user_id".
func ForeignKey(s Singularizer, key string) string {
	return s.Singularize(key) + IDSuffix
}

// ByName returns the singularizer registered under name ("simple" or "english").
func ByName(name string) (Singularizer, bool) {
	switch strings.ToLower(name) {
	case "", "simple":
		return Simple(), true
	case "english":
		return English(), true
	default:
		return nil, false
	}
}
