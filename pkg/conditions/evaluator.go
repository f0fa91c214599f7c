package conditions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dop251/goja"
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	celgo "github.com/google/cel-go/cel"

	"github.com/tuchang/junit5/pkg/ports"
)

// Script languages understood by Evaluators.
const (
	LanguageExpr = "expr"
	LanguageCEL  = "cel"
	LanguageJS   = "js"
)

// EvaluationError reports a script that failed to compile, run, or produce a bool.
type EvaluationError struct {
	Language   string
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s condition %q: %v", e.Language, e.Expression, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

func asBool(language, expression string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, &EvaluationError{Language: language, Expression: expression, Err: fmt.Errorf("result %v (%T) is not a bool", v, v)}
	}
	return b, nil
}

// Evaluators maps script languages to evaluators.
type Evaluators map[string]ports.ScriptEvaluator

// DefaultEvaluators returns the expr, cel and js evaluators.
func DefaultEvaluators() Evaluators {
	return Evaluators{
		LanguageExpr: NewExprEvaluator(),
		LanguageCEL:  NewCELEvaluator(),
		LanguageJS:   NewJSEvaluator(),
	}
}

// Lookup returns the evaluator for language. An empty language means expr.
func (e Evaluators) Lookup(language string) (ports.ScriptEvaluator, error) {
	if language == "" {
		language = LanguageExpr
	}
	ev, ok := e[language]
	if !ok {
		return nil, fmt.Errorf("unknown script language %q (known: %v)", language, e.Languages())
	}
	return ev, nil
}

func (e Evaluators) Languages() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ExprEvaluator evaluates github.com/expr-lang/expr expressions.
type ExprEvaluator struct {
	programs sync.Map // expression -> *exprvm.Program
}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{}
}

func (e *ExprEvaluator) Evaluate(ctx context.Context, expression string, env map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	program, err := e.compile(expression)
	if err != nil {
		return false, err
	}
	out, err := exprlang.Run(program, env)
	if err != nil {
		return false, &EvaluationError{Language: LanguageExpr, Expression: expression, Err: err}
	}
	return asBool(LanguageExpr, expression, out)
}

func (e *ExprEvaluator) compile(expression string) (*exprvm.Program, error) {
	if cached, ok := e.programs.Load(expression); ok {
		return cached.(*exprvm.Program), nil
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, &EvaluationError{Language: LanguageExpr, Expression: expression, Err: err}
	}
	e.programs.Store(expression, program)
	return program, nil
}

// CELEvaluator evaluates Common Expression Language expressions. Every
// environment key is declared as a dynamically typed variable.
type CELEvaluator struct{}

func NewCELEvaluator() *CELEvaluator {
	return &CELEvaluator{}
}

func (e *CELEvaluator) Evaluate(ctx context.Context, expression string, env map[string]any) (bool, error) {
	wrap := func(err error) error {
		return &EvaluationError{Language: LanguageCEL, Expression: expression, Err: err}
	}

	opts := make([]celgo.EnvOption, 0, len(env))
	for key := range env {
		opts = append(opts, celgo.Variable(key, celgo.DynType))
	}
	celEnv, err := celgo.NewEnv(opts...)
	if err != nil {
		return false, wrap(err)
	}
	ast, issues := celEnv.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return false, wrap(issues.Err())
	}
	program, err := celEnv.Program(ast)
	if err != nil {
		return false, wrap(err)
	}
	out, _, err := program.ContextEval(ctx, env)
	if err != nil {
		return false, wrap(err)
	}
	return asBool(LanguageCEL, expression, out.Value())
}

// JSEvaluator evaluates JavaScript expressions with goja. Evaluation is
// interrupted when ctx is done.
type JSEvaluator struct {
	programs sync.Map // expression -> *goja.Program
}

func NewJSEvaluator() *JSEvaluator {
	return &JSEvaluator{}
}

func (e *JSEvaluator) Evaluate(ctx context.Context, expression string, env map[string]any) (bool, error) {
	program, err := e.compile(expression)
	if err != nil {
		return false, err
	}

	vm := goja.New()
	for key, value := range env {
		if err := vm.Set(key, value); err != nil {
			return false, &EvaluationError{Language: LanguageJS, Expression: expression, Err: err}
		}
	}
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	value, err := vm.RunProgram(program)
	if err != nil {
		return false, &EvaluationError{Language: LanguageJS, Expression: expression, Err: err}
	}
	return asBool(LanguageJS, expression, value.Export())
}

func (e *JSEvaluator) compile(expression string) (*goja.Program, error) {
	if cached, ok := e.programs.Load(expression); ok {
		return cached.(*goja.Program), nil
	}
	program, err := goja.Compile("", fmt.Sprintf("(function(){ return (%s); })()", expression), true)
	if err != nil {
		return nil, &EvaluationError{Language: LanguageJS, Expression: expression, Err: err}
	}
	e.programs.Store(expression, program)
	return program, nil
}
