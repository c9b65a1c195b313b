// Package templating renders {{ expr }} placeholders embedded in configuration strings.
// Expressions are evaluated with expr-lang/expr in a sandbox: only the names of the
// scope and a fixed set of builtins and helper functions are reachable.
package templating

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// ErrTemplate is returned for malformed placeholders and failed evaluations.
var ErrTemplate = errors.New("template error")

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Renderer evaluates templates. It is safe for concurrent use.
type Renderer struct {
	options []expr.Option
}

// NewRenderer creates a Renderer with the default helper functions.
func NewRenderer() *Renderer {
	return &Renderer{
		options: []expr.Option{
			expr.Function("sprintf", sprintf),
			expr.Function("str", str),
		},
	}
}

// segment is either literal text or the source of one placeholder expression.
type segment struct {
	text   string
	isExpr bool
}

// Render renders tmpl against scope and always yields a string.
func (r *Renderer) Render(ctx context.Context, tmpl string, scope *Scope) (string, error) {
	if !strings.Contains(tmpl, openDelim) {
		return tmpl, nil
	}
	segments, err := split(tmpl)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, seg := range segments {
		if !seg.isExpr {
			sb.WriteString(seg.text)
			continue
		}
		v, err := r.eval(ctx, seg.text, scope)
		if err != nil {
			return "", err
		}
		sb.WriteString(ToString(v))
	}
	return sb.String(), nil
}

// Evaluate renders tmpl but keeps the native type of the result when the whole
// string is a single placeholder, so "{{ new_value }}" yields a number for a number.
func (r *Renderer) Evaluate(ctx context.Context, tmpl string, scope *Scope) (any, error) {
	if !strings.Contains(tmpl, openDelim) {
		return tmpl, nil
	}
	segments, err := split(tmpl)
	if err != nil {
		return nil, err
	}
	if len(segments) == 1 && segments[0].isExpr {
		return r.eval(ctx, segments[0].text, scope)
	}
	return r.Render(ctx, tmpl, scope)
}

func (r *Renderer) eval(ctx context.Context, code string, scope *Scope) (any, error) {
	tree, err := parser.Parse(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrTemplate, code, err)
	}

	names := &identifierCollector{}
	ast.Walk(&tree.Node, names)
	free := names.free()
	for _, name := range free {
		if !scope.Has(name) {
			return nil, fmt.Errorf("%w: %q: unknown name %q", ErrTemplate, code, name)
		}
	}

	env, err := scope.env(ctx, free)
	if err != nil {
		return nil, err
	}

	options := append([]expr.Option{expr.Env(env)}, r.options...)
	program, err := expr.Compile(code, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrTemplate, code, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrTemplate, code, err)
	}
	return out, nil
}

// split breaks a template into literal and expression segments.
func split(tmpl string) ([]segment, error) {
	var segments []segment
	rest := tmpl
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			if rest != "" {
				segments = append(segments, segment{text: rest})
			}
			return segments, nil
		}
		if start > 0 {
			segments = append(segments, segment{text: rest[:start]})
		}
		rest = rest[start+len(openDelim):]

		end := strings.Index(rest, closeDelim)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated placeholder in %q", ErrTemplate, tmpl)
		}
		code := strings.TrimSpace(rest[:end])
		if code == "" {
			return nil, fmt.Errorf("%w: empty placeholder in %q", ErrTemplate, tmpl)
		}
		segments = append(segments, segment{text: code, isExpr: true})
		rest = rest[end+len(closeDelim):]
	}
}

// identifierCollector gathers the names an expression refers to.
type identifierCollector struct {
	names    []string
	funcs    map[string]bool
	declared map[string]bool
}

func (c *identifierCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.names = append(c.names, n.Value)
	case *ast.CallNode:
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.mark(&c.funcs, id.Value)
		}
	case *ast.VariableDeclaratorNode:
		c.mark(&c.declared, n.Name)
	}
}

func (c *identifierCollector) mark(set *map[string]bool, name string) {
	if *set == nil {
		*set = make(map[string]bool)
	}
	(*set)[name] = true
}

// free returns the referenced names that are neither called functions nor let bindings.
func (c *identifierCollector) free() []string {
	var out []string
	seen := make(map[string]bool, len(c.names))
	for _, name := range c.names {
		if seen[name] || c.funcs[name] || c.declared[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func sprintf(params ...any) (any, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("sprintf: missing format")
	}
	format, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("sprintf: format must be a string")
	}
	return fmt.Sprintf(format, params[1:]...), nil
}

func str(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("str: expected one argument, got %d", len(params))
	}
	return ToString(params[0]), nil
}
