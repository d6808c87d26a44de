package indices

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

var mathFuncs = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"log":   math.Log,
	"log10": math.Log10,
	"exp":   math.Exp,
}

var reserved = map[string]bool{
	"sqrt": true, "log": true, "log10": true, "exp": true, "abs": true,
	"pow": true, "min": true, "max": true, "floor": true, "ceil": true, "round": true,
	"true": true, "false": true, "nil": true,
}

type identCollector struct {
	names map[string]struct{}
}

func (c *identCollector) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok && !reserved[id.Value] {
		c.names[id.Value] = struct{}{}
	}
}

// Variables lists the band identifiers referenced by an expression, sorted.
func Variables(expression string) ([]string, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", expression, err)
	}
	c := &identCollector{names: make(map[string]struct{})}
	ast.Walk(&tree.Node, c)
	names := make([]string, 0, len(c.names))
	for n := range c.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func exprOptions(vars []string) []expr.Option {
	env := make(map[string]any, len(vars))
	for _, v := range vars {
		env[v] = 0.0
	}
	opts := []expr.Option{expr.Env(env), expr.AsFloat64()}
	for name, fn := range mathFuncs {
		fn := fn
		opts = append(opts, expr.Function(name, func(params ...any) (any, error) {
			return fn(params[0].(float64)), nil
		}, new(func(float64) float64)))
	}
	opts = append(opts, expr.Function("pow", func(params ...any) (any, error) {
		return math.Pow(params[0].(float64), params[1].(float64)), nil
	}, new(func(float64, float64) float64)))
	return opts
}

// Expression compiles a band-math expression into an Index. Identifiers are
// band names: common names (nir, red, ...) or raw product band names.
// Any NaN input or a non-finite result yields NaN.
func Expression(name, expression string) (Index, error) {
	vars, err := Variables(expression)
	if err != nil {
		return Index{}, err
	}
	if len(vars) == 0 {
		return Index{}, fmt.Errorf("expression %q references no band", expression)
	}
	program, err := expr.Compile(expression, exprOptions(vars)...)
	if err != nil {
		return Index{}, fmt.Errorf("compile %s: %w", name, err)
	}

	prepare := func() func([]float64) float64 {
		env := make(map[string]any, len(vars))
		machine := &vm.VM{}
		return func(v []float64) float64 {
			for i, name := range vars {
				if math.IsNaN(v[i]) {
					return math.NaN()
				}
				env[name] = v[i]
			}
			out, err := machine.Run(program, env)
			if err != nil {
				return math.NaN()
			}
			f, ok := out.(float64)
			if !ok || math.IsInf(f, 0) {
				return math.NaN()
			}
			return f
		}
	}

	return Index{
		Name:       strings.ToUpper(name),
		Expression: expression,
		Bands:      vars,
		prepare:    prepare,
	}, nil
}
