// Package cel compiles CEL expressions into rule conditions and effects
package cel

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/authz-engine/pdp-core/internal/engine"
)

// Engine provides CEL expression compilation and evaluation over request
// attributes. Expressions see the attributes as `request` and its alias `R`.
type Engine struct {
	env      *cel.Env
	programs sync.Map // map[string]cel.Program - compiled program cache
}

// NewEngine creates a new CEL engine with the decision-specific functions
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("R", cel.MapType(cel.StringType, cel.DynType)), // alias

		// inList(value, list) -> bool
		cel.Function("inList",
			cel.Overload("inList_dyn_list",
				[]*cel.Type{cel.DynType, cel.ListType(cel.DynType)},
				cel.BoolType,
				cel.BinaryBinding(inList),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// Compile compiles a boolean CEL expression and caches the result.
// Expressions typed dyn are accepted and checked when evaluated.
func (e *Engine) Compile(expr string) (cel.Program, error) {
	if prog, ok := e.programs.Load(expr); ok {
		return prog.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation failed: %w", issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL expression must return boolean, got %v", out)
	}

	prog, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation failed: %w", err)
	}

	e.programs.Store(expr, prog)
	return prog, nil
}

// Evaluate evaluates a compiled program against request attributes
func (e *Engine) Evaluate(prog cel.Program, attrs map[string]interface{}) (bool, error) {
	vars := map[string]interface{}{
		"request": attrs,
		"R":       attrs,
	}

	result, _, err := prog.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation failed: %w", err)
	}

	if boolVal, ok := result.Value().(bool); ok {
		return boolVal, nil
	}

	return false, fmt.Errorf("CEL expression did not return boolean, got %v", result.Type())
}

// EvaluateExpression compiles and evaluates an expression in one call
func (e *Engine) EvaluateExpression(expr string, attrs map[string]interface{}) (bool, error) {
	prog, err := e.Compile(expr)
	if err != nil {
		return false, err
	}
	return e.Evaluate(prog, attrs)
}

// Condition compiles expr into a rule condition. Evaluation errors, such
// as a missing attribute, make the rule indeterminate.
func (e *Engine) Condition(expr string) (engine.Condition, error) {
	prog, err := e.Compile(expr)
	if err != nil {
		return nil, err
	}
	return func(ctx *engine.Context) (bool, error) {
		return e.Evaluate(prog, ctx.Attributes())
	}, nil
}

// LogicalEffect compiles expr into an effect that is PERMIT when expr is
// true and DENY when it is false
func (e *Engine) LogicalEffect(expr string) (engine.Effect, error) {
	prog, err := e.Compile(expr)
	if err != nil {
		return engine.Effect{}, err
	}
	return engine.LogicalEffect(func(ctx *engine.Context) (bool, error) {
		return e.Evaluate(prog, ctx.Attributes())
	}), nil
}

// ClearCache clears the compiled program cache
func (e *Engine) ClearCache() {
	e.programs.Range(func(key, _ interface{}) bool {
		e.programs.Delete(key)
		return true
	})
}

func inList(value, list ref.Val) ref.Val {
	lister, ok := list.(traits.Lister)
	if !ok {
		return types.NewErr("inList: second argument is not a list")
	}
	return lister.Contains(value)
}
