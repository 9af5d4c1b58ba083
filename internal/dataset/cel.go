package dataset

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"

	"github.com/asakaida/relata/pkg/rel"
)

// CELEngine compiles relation filters and computed values.
//
// Expressions see the records as maps: `subject` is the record the relation
// is resolved from, `candidate` is the record being tested by a filter.
type CELEngine struct {
	env    *cel.Env
	logger *zap.Logger
}

// NewCELEngine creates a new CEL engine with the subject and candidate variables declared
func NewCELEngine(logger *zap.Logger) (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("subject", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("candidate", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &CELEngine{env: env, logger: logger}, nil
}

func (e *CELEngine) compile(expression string) (*cel.Ast, cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return ast, program, nil
}

// Filter compiles a boolean membership test. Evaluation errors count as
// "not a member" and are logged.
func (e *CELEngine) Filter(expression string) (func(subject, candidate rel.Record) bool, error) {
	ast, program, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL filter must return boolean, got: %s", out)
	}

	return func(subject, candidate rel.Record) bool {
		result, _, err := program.Eval(map[string]any{
			"subject":   attributesOf(subject),
			"candidate": attributesOf(candidate),
		})
		if err != nil {
			e.logger.Debug("CEL filter evaluation failed",
				zap.String("expression", expression), zap.Error(err))
			return false
		}
		ok, isBool := result.Value().(bool)
		return isBool && ok
	}, nil
}

// Computed compiles a value derived from the subject. Evaluation errors
// yield nil and are logged.
func (e *CELEngine) Computed(expression string) (func(rel.Record) any, error) {
	_, program, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	return func(r rel.Record) any {
		result, _, err := program.Eval(map[string]any{
			"subject":   attributesOf(r),
			"candidate": map[string]any{},
		})
		if err != nil {
			e.logger.Debug("CEL computed value evaluation failed",
				zap.String("expression", expression), zap.Error(err))
			return nil
		}
		return result.Value()
	}, nil
}

type attributer interface {
	Attributes() map[string]any
}

// attributesOf exposes a record to CEL. Records that cannot list their
// attributes expose only their id.
func attributesOf(r rel.Record) map[string]any {
	if r == nil {
		return map[string]any{}
	}
	if a, ok := r.(attributer); ok {
		return a.Attributes()
	}
	attrs := map[string]any{}
	if id := r.ID(); id != nil {
		attrs["id"] = id
	}
	return attrs
}
