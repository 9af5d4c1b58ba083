package rel

import (
	"go.uber.org/zap"

	"github.com/asakaida/relata/pkg/cache"
	"github.com/asakaida/relata/pkg/cache/memorycache"
	"github.com/asakaida/relata/pkg/inflect"
)

// Observer receives cache events, e.g. to export metrics.
type Observer interface {
	RelationCacheHit(relation string)
	RelationCacheMiss(relation string)
	RelationInvalidated(relation string)
}

type nopObserver struct{}

func (nopObserver) RelationCacheHit(string)    {}
func (nopObserver) RelationCacheMiss(string)   {}
func (nopObserver) RelationInvalidated(string) {}

// subscription ties one cache key to the mutation signal of its target set.
// It lives until the entry is invalidated, the subject is forgotten or the
// relation is redeclared against another set.
type subscription struct {
	identity    string
	relation    string
	target      string // identity of the set feeding the entry
	owner       string // identity of the subject's own set, if any
	unsubscribe func()
}

// ownerWatch listens on a set whose members have cached relations, so that
// removed members are forgotten.
type ownerWatch struct {
	members     map[string]int // member identity -> live subscriptions
	unsubscribe func()
}

// Registry owns the relation cache and the subscriptions that invalidate it.
// Subjects are referenced only by identity; the registry never keeps records
// or record sets alive.
//
// A Registry is not safe for concurrent use. Callers that share one across
// goroutines must serialize access.
type Registry struct {
	cache    cache.Cache // nil when caching is disabled
	singular *inflect.Memo
	logger   *zap.Logger
	observer Observer

	subs   map[string]*subscription // cache key -> subscription
	owners map[string]*ownerWatch   // owner set identity -> watch
}

// Option configures a Registry.
type Option func(*Registry)

// WithCache replaces the default unbounded memory cache.
func WithCache(c cache.Cache) Option {
	return func(r *Registry) {
		r.cache = c
	}
}

// WithoutCache disables memoization; every to-many resolution recomputes.
func WithoutCache() Option {
	return func(r *Registry) {
		r.cache = nil
	}
}

// WithSingularizer substitutes the inflector used to derive foreign keys.
func WithSingularizer(s inflect.Singularizer) Option {
	return func(r *Registry) {
		r.singular = inflect.Memoize(s)
	}
}

// WithLogger sets the logger for subscription and invalidation events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver registers an observer for cache events.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// NewRegistry creates a Registry with an unbounded memory cache and the
// simple singularizer unless overridden.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		cache:    memorycache.New(nil),
		singular: inflect.Memoize(inflect.Simple()),
		logger:   zap.NewNop(),
		observer: nopObserver{},
		subs:     make(map[string]*subscription),
		owners:   make(map[string]*ownerWatch),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the underlying cache, or nil when disabled.
func (r *Registry) Cache() cache.Cache {
	return r.cache
}

// Subscriptions returns the number of live invalidation subscriptions.
func (r *Registry) Subscriptions() int {
	return len(r.subs)
}

// lookup returns the memoized list for (identity, relation) when it was
// computed from target. An entry computed from a set the relation no longer
// points at is discarded.
func (r *Registry) lookup(identity, relation string, target RecordSet) ([]Record, bool) {
	if r.cache == nil {
		return nil, false
	}
	key := cache.Key(identity, relation)
	if sub, ok := r.subs[key]; ok && sub.target != target.Identity() {
		r.drop(key, sub)
		r.cache.Delete(key)
	}

	v, ok := r.cache.Get(key)
	if !ok {
		r.observer.RelationCacheMiss(relation)
		return nil, false
	}
	r.observer.RelationCacheHit(relation)
	return v.([]Record), true
}

// store memoizes list and makes sure exactly one subscription on target
// clears it again. The subscription is dropped when it fires, so the next
// store after an invalidation subscribes anew.
func (r *Registry) store(subject Record, relation string, target RecordSet, list []Record) {
	if r.cache == nil {
		return
	}
	identity := subject.Identity()
	key := cache.Key(identity, relation)
	r.cache.Set(key, list)

	if sub, ok := r.subs[key]; ok {
		if sub.target == target.Identity() {
			return
		}
		// Redeclared against another set
		r.drop(key, sub)
	}

	sub := &subscription{identity: identity, relation: relation, target: target.Identity()}
	sub.unsubscribe = target.Subscribe(func(m Mutation) {
		if r.subs[key] != sub {
			return
		}
		r.drop(key, sub)
		if r.cache.Delete(key) {
			r.observer.RelationInvalidated(relation)
			r.logger.Debug("relation invalidated",
				zap.String("subject", identity),
				zap.String("relation", relation),
				zap.String("target", sub.target),
				zap.Stringer("mutation", m.Kind))
		}
	})
	sub.owner = r.watch(subject, identity)
	r.subs[key] = sub

	r.logger.Debug("relation subscribed",
		zap.String("subject", identity),
		zap.String("relation", relation),
		zap.String("target", sub.target))
}

// drop releases one subscription. The cache entry is left to the caller.
func (r *Registry) drop(key string, sub *subscription) {
	sub.unsubscribe()
	delete(r.subs, key)
	r.unwatch(sub.owner, sub.identity)
}

// watch registers identity as a member of its owning set and returns the
// owner identity, or "" when the subject has no owner.
func (r *Registry) watch(subject Record, identity string) string {
	m, ok := subject.(Member)
	if !ok {
		return ""
	}
	owner := m.Owner()
	if owner == nil || isNil(owner) {
		return ""
	}

	ownerID := owner.Identity()
	w, ok := r.owners[ownerID]
	if !ok {
		w = &ownerWatch{members: make(map[string]int)}
		w.unsubscribe = owner.Subscribe(func(m Mutation) {
			r.ownerChanged(ownerID, m)
		})
		r.owners[ownerID] = w
	}
	w.members[identity]++
	return ownerID
}

func (r *Registry) unwatch(ownerID, identity string) {
	if ownerID == "" {
		return
	}
	w, ok := r.owners[ownerID]
	if !ok {
		return
	}
	if w.members[identity]--; w.members[identity] <= 0 {
		delete(w.members, identity)
	}
	if len(w.members) == 0 {
		w.unsubscribe()
		delete(r.owners, ownerID)
	}
}

// ownerChanged forgets members removed from their set, or all of them when
// the set is reset.
func (r *Registry) ownerChanged(ownerID string, m Mutation) {
	switch m.Kind {
	case MutationRemove:
		if m.Record != nil {
			r.Forget(m.Record.Identity())
		}
	case MutationReset:
		w, ok := r.owners[ownerID]
		if !ok {
			return
		}
		members := make([]string, 0, len(w.members))
		for identity := range w.members {
			members = append(members, identity)
		}
		for _, identity := range members {
			r.Forget(identity)
		}
	}
}

// Forget drops every cached result and subscription of the subject with the
// given identity. Sets call it implicitly for removed members.
func (r *Registry) Forget(identity string) {
	for key, sub := range r.subs {
		if sub.identity != identity {
			continue
		}
		r.drop(key, sub)
		r.cache.Delete(key)
	}
}

// Close releases all subscriptions and clears the cache.
func (r *Registry) Close() error {
	for key, sub := range r.subs {
		sub.unsubscribe()
		delete(r.subs, key)
	}
	for ownerID, w := range r.owners {
		w.unsubscribe()
		delete(r.owners, ownerID)
	}
	if r.cache != nil {
		r.cache.Clear()
	}
	return nil
}
