package dataset

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/relata/pkg/rel"
)

type fakeLoader struct {
	tables map[string][]map[string]any
	calls  []string
	err    error
}

func (l *fakeLoader) LoadTable(_ context.Context, table, orderBy string) ([]map[string]any, error) {
	l.calls = append(l.calls, table+"/"+orderBy)
	if l.err != nil {
		return nil, l.err
	}
	return l.tables[table], nil
}

func buildTasks(t *testing.T) *Dataset {
	t.Helper()

	f, err := LoadFile(filepath.Join("testdata", "tasks.yaml"))
	require.NoError(t, err)

	reg := rel.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })

	d, err := Build(context.Background(), f, reg)
	require.NoError(t, err)
	return d
}

func recordIDs(t *testing.T, res rel.Result) []any {
	t.Helper()
	require.True(t, res.IsList())
	out := make([]any, 0, len(res.List()))
	for _, r := range res.List() {
		out = append(out, r.ID())
	}
	return out
}

func TestBuild_Scenario(t *testing.T) {
	d := buildTasks(t)
	reg := d.Registry()

	assert.Equal(t, []string{"comments", "project_tasks", "projects", "tasks", "users"}, d.Names())

	user0, err := d.Record("users", 0)
	require.NoError(t, err)

	res, err := reg.Rel(user0, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []any{2, 4}, recordIDs(t, res))

	user2, err := d.Record("users", "2")
	require.NoError(t, err)
	res, err = reg.Rel(user2, "project")
	require.NoError(t, err)
	assert.True(t, res.IsNull())

	project0, err := d.Record("projects", 0)
	require.NoError(t, err)
	res, err = reg.Rel(project0, "owner")
	require.NoError(t, err)
	assert.Equal(t, user0, res.Record())

	tasks, err := d.Collection("tasks")
	require.NoError(t, err)
	tasks.Add(map[string]any{"id": 7, "user_id": 0})

	res, err = reg.Rel(user0, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []any{2, 4, 7}, recordIDs(t, res))
}

func TestBuild_PathRelation(t *testing.T) {
	d := buildTasks(t)

	task2, err := d.Record("tasks", 2)
	require.NoError(t, err)

	res, err := d.Registry().Rel(task2, "project")
	require.NoError(t, err)
	require.False(t, res.IsNull())
	assert.Equal(t, 0, res.Record().ID())

	// task 0 has no user, so the path ends in null
	task0, err := d.Record("tasks", 0)
	require.NoError(t, err)
	res, err = d.Registry().Rel(task0, "project")
	require.NoError(t, err)
	assert.True(t, res.IsNull())
}

func TestBuild_FilterAndComputed(t *testing.T) {
	d := buildTasks(t)
	reg := d.Registry()

	project0, err := d.Record("projects", 0)
	require.NoError(t, err)

	res, err := reg.Rel(project0, "peers")
	require.NoError(t, err)
	assert.Equal(t, []any{1}, recordIDs(t, res))

	task4, err := d.Record("tasks", 4)
	require.NoError(t, err)
	v, err := reg.RelResult(task4, "project", "fullName")
	require.NoError(t, err)
	assert.Equal(t, "Project project1", v)

	v, err = reg.RelResult(project0, "users", "label")
	require.NoError(t, err)
	assert.Equal(t, []any{"@user1"}, v)
}

func TestBuild_SetRelations(t *testing.T) {
	d := buildTasks(t)

	scoped, err := d.Collection("project_tasks")
	require.NoError(t, err)

	res, err := d.Registry().RelSet(scoped, "project")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Record().ID())

	res, err = d.Registry().RelSet(scoped, "owner")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Record().ID())
}

func TestDataset_LookupErrors(t *testing.T) {
	d := buildTasks(t)

	_, err := d.Collection("nope")
	assert.ErrorIs(t, err, ErrUnknownCollection)

	_, err = d.Record("nope", 1)
	assert.ErrorIs(t, err, ErrUnknownCollection)

	_, err = d.Record("users", 99)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestBuild_BadExpression(t *testing.T) {
	f, err := Parse([]byte(`
collections:
  - name: projects
    computed:
      broken: 'subject.name +'
`))
	require.NoError(t, err)

	_, err = Build(context.Background(), f, rel.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `computed "broken"`)
}

const tableDataset = `
collections:
  - name: users
    table: users
    has_many:
      tasks: {collection: tasks, foreign_key: user_id}
  - name: tasks
    table: tasks
`

func TestBuild_TableCollections(t *testing.T) {
	f, err := Parse([]byte(tableDataset))
	require.NoError(t, err)

	_, err = Build(context.Background(), f, rel.NewRegistry())
	assert.ErrorIs(t, err, ErrNoTableLoader)

	loader := &fakeLoader{err: errors.New("connection refused")}
	_, err = Build(context.Background(), f, rel.NewRegistry(), WithTableLoader(loader))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestReload_InvalidatesCachedRelations(t *testing.T) {
	f, err := Parse([]byte(tableDataset))
	require.NoError(t, err)

	loader := &fakeLoader{tables: map[string][]map[string]any{
		"users": {{"id": int64(1)}},
		"tasks": {{"id": int64(10), "user_id": int64(1)}},
	}}
	reg := rel.NewRegistry()
	defer reg.Close()

	d, err := Build(context.Background(), f, reg, WithTableLoader(loader))
	require.NoError(t, err)
	assert.Equal(t, []string{"users/id", "tasks/id"}, loader.calls)

	user, err := d.Record("users", 1)
	require.NoError(t, err)

	res, err := reg.Rel(user, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(10)}, recordIDs(t, res))
	assert.Equal(t, 1, reg.Subscriptions())

	loader.tables["tasks"] = []map[string]any{
		{"id": int64(10), "user_id": int64(1)},
		{"id": int64(11), "user_id": int64(1)},
	}
	n, err := d.Reload(context.Background(), "tasks")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, reg.Cache().Len())

	res, err = reg.Rel(user, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(10), int64(11)}, recordIDs(t, res))

	n, err = d.Reload(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = d.Reload(context.Background(), "unrelated")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
