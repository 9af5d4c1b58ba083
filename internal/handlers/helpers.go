package handlers

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/relata/pkg/rel"
)

// query holds the fields shared by relation requests.
type query struct {
	collection string
	id         any
	path       string
	attr       string
	def        any
	hasDefault bool
}

func parseQuery(req *structpb.Struct, needID bool) (*query, error) {
	fields := req.GetFields()

	q := &query{
		collection: fields["collection"].GetStringValue(),
		path:       fields["path"].GetStringValue(),
		attr:       fields["attr"].GetStringValue(),
	}
	if q.collection == "" {
		return nil, status.Error(codes.InvalidArgument, "collection is required")
	}
	if q.path == "" {
		return nil, status.Error(codes.InvalidArgument, "path is required")
	}

	if needID {
		id, ok := fields["id"]
		if !ok {
			return nil, status.Error(codes.InvalidArgument, "id is required")
		}
		q.id = id.AsInterface()
		if _, ok := rel.IDKey(q.id); !ok {
			return nil, status.Error(codes.InvalidArgument, "id must be a non-empty string or number")
		}
	}

	if def, ok := fields["default"]; ok {
		q.def = def.AsInterface()
		q.hasDefault = true
	}

	return q, nil
}

type attributer interface {
	Attributes() map[string]any
}

func recordToMap(r rel.Record) map[string]any {
	if a, ok := r.(attributer); ok {
		return a.Attributes()
	}
	return map[string]any{"id": r.ID()}
}

// ResultMap encodes a relation result as
// {kind: "null"} | {kind: "record", record} | {kind: "list", records}.
func ResultMap(res rel.Result) map[string]any {
	out := map[string]any{}
	switch {
	case res.IsNull():
		out["kind"] = "null"
	case res.IsList():
		records := make([]any, 0, len(res.List()))
		for _, r := range res.List() {
			records = append(records, recordToMap(r))
		}
		out["kind"] = "list"
		out["records"] = records
	default:
		out["kind"] = "record"
		out["record"] = recordToMap(res.Record())
	}
	return out
}

func resultToStruct(res rel.Result) (*structpb.Struct, error) {
	return encode(ResultMap(res))
}

func valueToStruct(value any) (*structpb.Struct, error) {
	return encode(map[string]any{"value": value})
}

func encode(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(protoSafe(m).(map[string]any))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return s, nil
}

// protoSafe rewrites values structpb cannot represent.
func protoSafe(v any) any {
	switch val := v.(type) {
	case nil, bool, string, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = protoSafe(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = protoSafe(item)
		}
		return out
	default:
		if s, err := cast.ToStringE(val); err == nil {
			return s
		}
		return fmt.Sprintf("%v", val)
	}
}
