package rel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asakaida/relata/pkg/memstore"
	"github.com/asakaida/relata/pkg/rel"
)

// world is the users/tasks/projects/comments data set used across tests.
type world struct {
	reg      *rel.Registry
	users    *memstore.Collection
	tasks    *memstore.Collection
	projects *memstore.Collection
	comments *memstore.Collection
}

func newWorld(t *testing.T, opts ...rel.Option) *world {
	t.Helper()

	w := &world{
		reg:      rel.NewRegistry(opts...),
		users:    memstore.New("users"),
		tasks:    memstore.New("tasks"),
		projects: memstore.New("projects"),
		comments: memstore.New("comments"),
	}
	t.Cleanup(func() { _ = w.reg.Close() })

	w.users.SetModelRelations(rel.Declare().
		HasMany("tasks", rel.ToMany{Target: w.tasks, ForeignKey: "user_id"}).
		HasMany("owned_projects", rel.ToMany{Target: w.projects, ForeignKey: "owner_id"}).
		BelongsTo("project", rel.ToOne{Target: w.projects}))

	w.tasks.SetModelRelations(rel.Declare().
		BelongsTo("user", rel.ToOne{Target: w.users}).
		BelongsTo("project", rel.ToOne{Resolve: func(s rel.Subject) rel.Record {
			res, err := w.reg.Rel(s.(rel.Record), "user.project")
			if err != nil {
				return nil
			}
			return res.Record()
		}}).
		HasMany("comments", rel.ToMany{Target: w.comments, ForeignKey: "task_id"}))

	w.projects.SetModelRelations(rel.Declare().
		HasMany("users", rel.ToMany{Target: w.users, ForeignKey: "project_id"}).
		HasMany("tasks", rel.ToMany{Target: w.tasks, Filter: func(subject, candidate rel.Record) bool {
			res, err := w.reg.Rel(candidate, "project")
			if err != nil || res.IsNull() {
				return false
			}
			return rel.SameID(res.Record().ID(), subject.ID())
		}}).
		BelongsTo("owner", rel.ToOne{Target: w.users}).
		Computed("fullName", func(r rel.Record) any {
			return "Project " + r.Get("name").(string)
		}))

	w.comments.SetModelRelations(rel.Declare().
		BelongsTo("task", rel.ToOne{Target: w.tasks}))

	for i := 0; i < 3; i++ {
		w.users.Add(map[string]any{"id": i, "project_id": i % 3, "name": "user" + string(rune('1'+i))})
	}
	for i := 0; i < 6; i++ {
		if i == 0 {
			w.tasks.Add(map[string]any{"id": i})
			continue
		}
		w.tasks.Add(map[string]any{"id": i, "user_id": i % 2})
	}
	for i := 0; i < 2; i++ {
		w.projects.Add(map[string]any{"id": i, "owner_id": 0, "name": "project" + string(rune('1'+i))})
	}
	for i, taskID := range []int{1, 1, 2, 2, 3, 4} {
		w.comments.Add(map[string]any{"id": i + 1, "task_id": taskID})
	}

	return w
}

func (w *world) user(t *testing.T, id int) *memstore.Model {
	t.Helper()
	m, ok := w.users.Model(id)
	require.True(t, ok, "user %d", id)
	return m
}

func (w *world) task(t *testing.T, id int) *memstore.Model {
	t.Helper()
	m, ok := w.tasks.Model(id)
	require.True(t, ok, "task %d", id)
	return m
}

func (w *world) project(t *testing.T, id int) *memstore.Model {
	t.Helper()
	m, ok := w.projects.Model(id)
	require.True(t, ok, "project %d", id)
	return m
}

func ids(t *testing.T, res rel.Result) []any {
	t.Helper()
	require.True(t, res.IsList(), "expected a list result")
	out := make([]any, 0, len(res.List()))
	for _, r := range res.List() {
		out = append(out, r.ID())
	}
	return out
}
