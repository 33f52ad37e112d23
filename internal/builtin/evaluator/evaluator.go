// Package evaluator is a native module evaluating expr-lang expressions.
//
// API (JS):
//
//	const { Evaluator } = NativeModules;
//
//	Evaluator.evaluate("a + b * 2", { a: 1, b: 2 });       // 5
//	await Evaluator.evaluateAsync("len(items) > 0", { items: [] }); // false
//	Evaluator.check("a +");     // { valid: false, error: "..." }
//	Evaluator.stats();          // { hits, misses, size }
//	Evaluator.cacheSize;        // constant
//
// Compiled programs are cached per module instance. evaluateAsync runs on
// the module's own dispatcher when the host provides one under
// DispatcherName, and on the JS dispatcher otherwise.
package evaluator

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/module"
)

// ModuleName is the name the module is installed under.
const ModuleName = "Evaluator"

// Info is the module registration.
var Info = module.Info{StructName: "evaluator.Evaluator", ModuleName: ModuleName}

var errNoExpression = errors.New("evaluator: expression must be a non-empty string")

// Evaluator compiles and runs expressions.
type Evaluator struct {
	cache *programCache
}

// New returns an Evaluator with a cache of cacheSize programs.
func New(cacheSize int) *Evaluator {
	return &Evaluator{cache: newProgramCache(cacheSize)}
}

// Provide declares the module members on b.
func Provide(b *module.Builder) any {
	e := New(DefaultCacheSize)
	b.AddConstant("cacheSize", e.cache.maxSize, true)
	b.AddSyncFunc("evaluate", e.evaluateArgs, true)
	b.AddPromiseMethod("evaluateAsync", e.evaluateArgs, false)
	b.AddSyncFunc("check", func(args *jsvalue.Reader) (any, error) {
		src, _ := args.Next()
		if _, err := e.compile(src); err != nil {
			return map[string]any{"valid": false, "error": err.Error()}, nil
		}
		return map[string]any{"valid": true}, nil
	}, true)
	b.AddSyncFunc("stats", func(*jsvalue.Reader) (any, error) {
		hits, misses, size := e.cache.stats()
		return map[string]any{"hits": hits, "misses": misses, "size": size}, nil
	}, true)
	return e
}

// Evaluate runs expression against env.
func (e *Evaluator) Evaluate(expression string, env map[string]any) (any, error) {
	program, err := e.compile(jsvalue.String(expression))
	if err != nil {
		return nil, err
	}
	if env == nil {
		env = map[string]any{}
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluator: %w", err)
	}
	return result, nil
}

func (e *Evaluator) evaluateArgs(args *jsvalue.Reader) (any, error) {
	src, _ := args.Next()
	if src.Kind() != jsvalue.KindString {
		return nil, errNoExpression
	}
	env, _ := args.Next()
	vars, _ := env.Interface().(map[string]any)
	result, err := e.Evaluate(src.AsString(), vars)
	if err != nil {
		return nil, err
	}
	if _, err := jsvalue.From(result); err != nil {
		return nil, fmt.Errorf("evaluator: result of %q: %w", src.AsString(), err)
	}
	return result, nil
}

func (e *Evaluator) compile(src jsvalue.Value) (*vm.Program, error) {
	if src.Kind() != jsvalue.KindString || src.AsString() == "" {
		return nil, errNoExpression
	}
	expression := src.AsString()
	if program, ok := e.cache.get(expression); ok {
		return program, nil
	}
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("evaluator: %w", err)
	}
	e.cache.put(expression, program)
	return program, nil
}
