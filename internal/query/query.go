// Package query compiles CEL expressions that select archive entries.
//
// Expressions see these variables:
//
//	path            string    normalized entry path
//	name            string    last path element
//	ext             string    lowercase extension with the dot, "" if none
//	size            int       uncompressed size
//	compressed_size int       stored size, 0 when unknown
//	mtime           timestamp modification time
//	is_compressed   bool
//
// For example: size > 1024 && path.startsWith("docs/").
package query

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/google/cel-go/cel"
)

// Filter is a compiled entry predicate.
type Filter struct {
	expr    string
	program cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("ext", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("compressed_size", cel.IntType),
		cel.Variable("mtime", cel.TimestampType),
		cel.Variable("is_compressed", cel.BoolType),
	)
}

// Compile parses and type-checks expr. The expression must evaluate to a bool.
func Compile(expr string) (*Filter, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("invalid filter %q: must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, program: program}, nil
}

func (f *Filter) String() string { return f.expr }

// Match evaluates the filter against e.
func (f *Filter) Match(ctx context.Context, e engine.Entry) (bool, error) {
	out, _, err := f.program.ContextEval(ctx, activation(e))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter on %s: %w", e.Path, err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T, not bool", out.Value())
	}
	return v, nil
}

// Apply returns the entries matching f, keeping their order. A nil filter
// matches everything.
func (f *Filter) Apply(ctx context.Context, entries []engine.Entry) ([]engine.Entry, error) {
	if f == nil {
		return entries, nil
	}
	out := make([]engine.Entry, 0, len(entries))
	for _, e := range entries {
		ok, err := f.Match(ctx, e)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Paths returns the paths of the matching entries.
func (f *Filter) Paths(ctx context.Context, entries []engine.Entry) ([]string, error) {
	matched, err := f.Apply(ctx, entries)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(matched))
	for i, e := range matched {
		out[i] = e.Path
	}
	return out, nil
}

func activation(e engine.Entry) map[string]any {
	name := path.Base(e.Path)
	return map[string]any{
		"path":            e.Path,
		"name":            name,
		"ext":             strings.ToLower(path.Ext(name)),
		"size":            e.UncompressedSize,
		"compressed_size": e.CompressedSize,
		"mtime":           e.ModTime,
		"is_compressed":   e.IsCompressed,
	}
}
