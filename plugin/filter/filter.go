// Package filter compiles CEL expressions used as list filters, e.g.
// `content.contains('docker') && created_ts > 1700000000`.
package filter

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

var env *cel.Env

func init() {
	var err error
	env, err = cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("mode", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("created_ts", cel.IntType),
		cel.Variable("updated_ts", cel.IntType),
	)
	if err != nil {
		panic(err)
	}
}

// Compile parses and checks a single filter expression.
func Compile(expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "invalid filter %q", expr)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid filter %q", expr)
	}
	return prog, nil
}

// CompileAll compiles a set of filter expressions.
func CompileAll(exprs []string) ([]cel.Program, error) {
	progs := make([]cel.Program, 0, len(exprs))
	for _, expr := range exprs {
		prog, err := Compile(expr)
		if err != nil {
			return nil, err
		}
		progs = append(progs, prog)
	}
	return progs, nil
}

// Match evaluates a compiled filter against the given row variables.
// Variables referenced by the expression but absent from vars evaluate
// against zero values.
func Match(prog cel.Program, vars map[string]any) (bool, error) {
	full := map[string]any{
		"name":       "",
		"title":      "",
		"mode":       "",
		"content":    "",
		"created_ts": int64(0),
		"updated_ts": int64(0),
	}
	for k, v := range vars {
		full[k] = v
	}
	out, _, err := prog.Eval(full)
	if err != nil {
		return false, errors.Wrap(err, "eval filter")
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, errors.New("filter did not evaluate to a boolean")
	}
	return ok, nil
}

// MatchAll reports whether the row matches every filter (AND semantics).
func MatchAll(progs []cel.Program, vars map[string]any) (bool, error) {
	for _, prog := range progs {
		ok, err := Match(prog, vars)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
