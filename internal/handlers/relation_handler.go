package handlers

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/relata/internal/dataset"
	"github.com/asakaida/relata/pkg/rel"
)

// RelationHandler serves RelationService over one dataset.
// The registry and collections are not safe for concurrent use, so every
// call holds the handler mutex.
type RelationHandler struct {
	mu      sync.Mutex
	dataset *dataset.Dataset
	logger  *zap.Logger
	closed  bool
}

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("relation handler is closed")

// NewRelationHandler creates a new RelationHandler
func NewRelationHandler(ds *dataset.Dataset, logger *zap.Logger) *RelationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationHandler{dataset: ds, logger: logger}
}

// Resolve handles the Resolve RPC: {collection, id, path} -> result
func (h *RelationHandler) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := parseQuery(req, true)
	if err != nil {
		return nil, err
	}

	if err := h.acquire(); err != nil {
		return nil, err
	}
	defer h.mu.Unlock()

	subject, err := h.dataset.Record(q.collection, q.id)
	if err != nil {
		return nil, toStatus(err)
	}

	res, err := h.dataset.Registry().Rel(subject, q.path)
	if err != nil {
		return nil, toStatus(err)
	}

	return resultToStruct(res)
}

// ResolveSet handles the ResolveSet RPC: {collection, path} -> result
func (h *RelationHandler) ResolveSet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := parseQuery(req, false)
	if err != nil {
		return nil, err
	}

	if err := h.acquire(); err != nil {
		return nil, err
	}
	defer h.mu.Unlock()

	set, err := h.dataset.Collection(q.collection)
	if err != nil {
		return nil, toStatus(err)
	}

	res, err := h.dataset.Registry().RelSet(set, q.path)
	if err != nil {
		return nil, toStatus(err)
	}

	return resultToStruct(res)
}

// Get handles the Get RPC: {collection, id, path, attr, default?} -> {value}
func (h *RelationHandler) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.project(req, (*rel.Registry).RelGet)
}

// Result handles the Result RPC. Unlike Get it reads computed values.
func (h *RelationHandler) Result(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.project(req, (*rel.Registry).RelResult)
}

type projection func(r *rel.Registry, subject rel.Record, path, attr string, def ...any) (any, error)

func (h *RelationHandler) project(req *structpb.Struct, read projection) (*structpb.Struct, error) {
	q, err := parseQuery(req, true)
	if err != nil {
		return nil, err
	}
	if q.attr == "" {
		return nil, status.Error(codes.InvalidArgument, "attr is required")
	}

	if err := h.acquire(); err != nil {
		return nil, err
	}
	defer h.mu.Unlock()

	subject, err := h.dataset.Record(q.collection, q.id)
	if err != nil {
		return nil, toStatus(err)
	}

	var def []any
	if q.hasDefault {
		def = append(def, q.def)
	}

	value, err := read(h.dataset.Registry(), subject, q.path, q.attr, def...)
	if err != nil {
		return nil, toStatus(err)
	}

	return valueToStruct(value)
}

// Reload handles the Reload RPC: {table?} -> {reloaded}
func (h *RelationHandler) Reload(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	table := ""
	if v, ok := req.GetFields()["table"]; ok {
		table = v.GetStringValue()
	}

	n, err := h.Refresh(ctx, table)
	if errors.Is(err, ErrClosed) {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "reload failed: %v", err)
	}

	return structpb.NewStruct(map[string]any{"reloaded": n})
}

// Refresh reloads the collections backed by table (all of them when table
// is empty) and drops the relations cached over them.
func (h *RelationHandler) Refresh(ctx context.Context, table string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrClosed
	}

	n, err := h.dataset.Reload(ctx, table)
	if err != nil {
		return n, err
	}

	h.logger.Info("dataset reloaded", zap.String("table", table), zap.Int("collections", n))
	return n, nil
}

// Close releases the registry subscriptions once in-flight calls finish.
// Later calls fail with codes.Unavailable and Refresh returns ErrClosed.
func (h *RelationHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.dataset.Registry().Close()
}

// acquire takes the handler mutex unless the handler is closed.
func (h *RelationHandler) acquire() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return status.Error(codes.Unavailable, ErrClosed.Error())
	}
	return nil
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(err error) error {
	var cfgErr *rel.ConfigurationError
	switch {
	case errors.Is(err, dataset.ErrUnknownCollection), errors.Is(err, dataset.ErrRecordNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &cfgErr):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Errorf(codes.Internal, "resolution failed: %v", err)
	}
}
