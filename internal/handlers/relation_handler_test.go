package handlers

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/relata/internal/dataset"
	"github.com/asakaida/relata/pkg/rel"
)

func newTestHandler(t *testing.T) (*RelationHandler, *dataset.Dataset) {
	t.Helper()

	f, err := dataset.LoadFile(filepath.Join("..", "dataset", "testdata", "tasks.yaml"))
	require.NoError(t, err)

	reg := rel.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })

	ds, err := dataset.Build(context.Background(), f, reg)
	require.NoError(t, err)

	return NewRelationHandler(ds, nil), ds
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func listIDs(t *testing.T, resp *structpb.Struct) []any {
	t.Helper()
	out := resp.AsMap()
	require.Equal(t, "list", out["kind"])
	var ids []any
	for _, r := range out["records"].([]any) {
		ids = append(ids, r.(map[string]any)["id"])
	}
	return ids
}

func TestRelationHandler_Resolve(t *testing.T) {
	h, ds := newTestHandler(t)
	ctx := context.Background()

	resp, err := h.Resolve(ctx, mustStruct(t, map[string]any{"collection": "users", "id": 0, "path": "tasks"}))
	require.NoError(t, err)
	assert.Equal(t, []any{float64(2), float64(4)}, listIDs(t, resp))

	resp, err = h.Resolve(ctx, mustStruct(t, map[string]any{"collection": "users", "id": "2", "path": "project"}))
	require.NoError(t, err)
	assert.Equal(t, "null", resp.AsMap()["kind"])

	resp, err = h.Resolve(ctx, mustStruct(t, map[string]any{"collection": "projects", "id": 0, "path": "owner"}))
	require.NoError(t, err)
	out := resp.AsMap()
	assert.Equal(t, "record", out["kind"])
	assert.Equal(t, "user1", out["record"].(map[string]any)["name"])

	tasks, err := ds.Collection("tasks")
	require.NoError(t, err)
	tasks.Add(map[string]any{"id": 7, "user_id": 0})

	resp, err = h.Resolve(ctx, mustStruct(t, map[string]any{"collection": "users", "id": 0, "path": "tasks"}))
	require.NoError(t, err)
	assert.Equal(t, []any{float64(2), float64(4), float64(7)}, listIDs(t, resp))
}

func TestRelationHandler_ResolveSet(t *testing.T) {
	h, _ := newTestHandler(t)

	resp, err := h.ResolveSet(context.Background(), mustStruct(t, map[string]any{"collection": "project_tasks", "path": "owner"}))
	require.NoError(t, err)
	assert.Equal(t, "user1", resp.AsMap()["record"].(map[string]any)["name"])
}

func TestRelationHandler_GetAndResult(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	resp, err := h.Get(ctx, mustStruct(t, map[string]any{
		"collection": "users", "id": 0, "path": "tasks", "attr": "id",
	}))
	require.NoError(t, err)
	assert.Equal(t, []any{float64(2), float64(4)}, resp.AsMap()["value"])

	resp, err = h.Get(ctx, mustStruct(t, map[string]any{
		"collection": "users", "id": 2, "path": "project", "attr": "name", "default": "none",
	}))
	require.NoError(t, err)
	assert.Equal(t, "none", resp.AsMap()["value"])

	resp, err = h.Get(ctx, mustStruct(t, map[string]any{
		"collection": "users", "id": 2, "path": "project", "attr": "name",
	}))
	require.NoError(t, err)
	assert.Nil(t, resp.AsMap()["value"])

	// Get reads plain attributes only
	resp, err = h.Get(ctx, mustStruct(t, map[string]any{
		"collection": "tasks", "id": 2, "path": "project", "attr": "fullName",
	}))
	require.NoError(t, err)
	assert.Nil(t, resp.AsMap()["value"])

	resp, err = h.Result(ctx, mustStruct(t, map[string]any{
		"collection": "tasks", "id": 2, "path": "project", "attr": "fullName",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Project project1", resp.AsMap()["value"])
}

func TestRelationHandler_InvalidArguments(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func(context.Context, *structpb.Struct) (*structpb.Struct, error)
		req  map[string]any
		code codes.Code
	}{
		{"missing collection", h.Resolve, map[string]any{"id": 1, "path": "tasks"}, codes.InvalidArgument},
		{"missing path", h.Resolve, map[string]any{"collection": "users", "id": 1}, codes.InvalidArgument},
		{"missing id", h.Resolve, map[string]any{"collection": "users", "path": "tasks"}, codes.InvalidArgument},
		{"empty id", h.Resolve, map[string]any{"collection": "users", "id": "", "path": "tasks"}, codes.InvalidArgument},
		{"missing attr", h.Get, map[string]any{"collection": "users", "id": 1, "path": "tasks"}, codes.InvalidArgument},
		{"unknown collection", h.Resolve, map[string]any{"collection": "nope", "id": 1, "path": "tasks"}, codes.NotFound},
		{"unknown record", h.Result, map[string]any{"collection": "users", "id": 42, "path": "tasks", "attr": "id"}, codes.NotFound},
		{"unknown set", h.ResolveSet, map[string]any{"collection": "nope", "path": "owner"}, codes.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.call(ctx, mustStruct(t, tt.req))
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestRelationHandler_Close(t *testing.T) {
	h, ds := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Resolve(ctx, mustStruct(t, map[string]any{"collection": "users", "id": 1, "path": "tasks"}))
	require.NoError(t, err)
	require.Positive(t, ds.Registry().Subscriptions())

	require.NoError(t, h.Close())
	assert.Zero(t, ds.Registry().Subscriptions())
	assert.NoError(t, h.Close())

	_, err = h.Resolve(ctx, mustStruct(t, map[string]any{"collection": "users", "id": 1, "path": "tasks"}))
	assert.Equal(t, codes.Unavailable, status.Code(err))

	_, err = h.Reload(ctx, mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.Unavailable, status.Code(err))

	n, err := h.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, n)
	assert.Zero(t, ds.Registry().Subscriptions(), "a refresh after close does not resubscribe")
}

func TestRelationHandler_CloseWaitsForRefresh(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.Refresh(ctx, "")
		}()
	}
	require.NoError(t, h.Close())
	wg.Wait()

	_, err := h.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestToStatus(t *testing.T) {
	cfgErr := fmt.Errorf("failed to resolve %q: %w", "tasks", &rel.ConfigurationError{Relation: "tasks", Kind: rel.HasMany})
	assert.Equal(t, codes.FailedPrecondition, status.Code(toStatus(cfgErr)))
	assert.Equal(t, codes.NotFound, status.Code(toStatus(dataset.ErrRecordNotFound)))
	assert.Equal(t, codes.Internal, status.Code(toStatus(fmt.Errorf("boom"))))
}

func TestProtoSafe(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	got := protoSafe(map[string]any{
		"at":    ts,
		"raw":   []byte("abc"),
		"items": []any{1, ts},
	}).(map[string]any)

	assert.Equal(t, "2024-05-06T07:08:09Z", got["at"])
	assert.Equal(t, "abc", got["raw"])
	assert.Equal(t, []any{1, "2024-05-06T07:08:09Z"}, got["items"])
}

func TestRelationService_OverGRPC(t *testing.T) {
	h, _ := newTestHandler(t)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterRelationServiceServer(server, h)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := NewRelationServiceClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, "Resolve", mustStruct(t, map[string]any{"collection": "users", "id": 0, "path": "tasks"}))
	require.NoError(t, err)
	assert.Equal(t, []any{float64(2), float64(4)}, listIDs(t, resp))

	_, err = client.Call(ctx, "Resolve", mustStruct(t, map[string]any{"collection": "users", "path": "tasks"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	resp, err = client.Call(ctx, "Reload", mustStruct(t, map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, float64(0), resp.AsMap()["reloaded"])
}
