package filter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/zero-day-ai/climber/job"
)

// Variables exposed to filter expressions.
const (
	VarID    = "id"
	VarAddr  = "addr"
	VarTube  = "tube"
	VarState = "state"
	VarPri   = "pri"
	VarAge   = "age"
	VarBody  = "body"
	VarStats = "stats"
)

// Filter is a compiled job predicate. The zero value and a Filter compiled
// from an empty expression match every job. A Filter is safe for concurrent
// use; the jobs it evaluates are not.
type Filter struct {
	expr      string
	prog      cel.Program
	needsBody bool
}

// Compile parses and type-checks expr. The expression must evaluate to a
// bool.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Filter{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable(VarID, cel.UintType),
		cel.Variable(VarAddr, cel.StringType),
		cel.Variable(VarTube, cel.StringType),
		cel.Variable(VarState, cel.StringType),
		cel.Variable(VarPri, cel.UintType),
		// Seconds since the job was put
		cel.Variable(VarAge, cel.IntType),
		cel.Variable(VarBody, cel.StringType),
		cel.Variable(VarStats, cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}

	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("failed to parse filter %q: %w", expr, iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, iss.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to bool, not %s", expr, checked.OutputType())
	}

	prog, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter program: %w", err)
	}

	return &Filter{expr: expr, prog: prog, needsBody: references(checked, VarBody)}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string) *Filter {
	f, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return f
}

// references reports whether the checked expression reads the named variable.
func references(checked *cel.Ast, name string) bool {
	expr, err := cel.AstToCheckedExpr(checked)
	if err != nil {
		return true
	}
	for _, ref := range expr.GetReferenceMap() {
		if ref.GetName() == name {
			return true
		}
	}
	return false
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// MatchAll reports whether the filter accepts every job without evaluation.
func (f *Filter) MatchAll() bool {
	return f == nil || f.prog == nil
}

// Match evaluates the filter against the stats snapshot held by j, fetching
// it if none is held. The body is peeked only when the expression reads it.
func (f *Filter) Match(ctx context.Context, j *job.Job) (bool, error) {
	if f.MatchAll() {
		return true, nil
	}

	vars, err := f.activation(ctx, j)
	if err != nil {
		return false, err
	}

	out, _, err := f.prog.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter on %s: %w", j, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, not bool", f.expr, out.Value())
	}
	return matched, nil
}

func (f *Filter) activation(ctx context.Context, j *job.Job) (map[string]any, error) {
	stats, err := j.Stats(ctx, false)
	if err != nil {
		return nil, err
	}

	// Missing numeric attributes evaluate as zero.
	pri, _ := stats.Uint(job.AttrPriority)
	age, _ := stats.Seconds(job.AttrAge)

	vars := map[string]any{
		VarID:    j.ID(),
		VarAddr:  j.Addr(),
		VarTube:  stats[job.AttrTube],
		VarState: stats[job.AttrState],
		VarPri:   pri,
		VarAge:   int64(age.Seconds()),
		VarBody:  "",
		VarStats: map[string]string(stats),
	}

	if f.needsBody {
		body, err := j.Body(ctx)
		if err != nil {
			return nil, err
		}
		vars[VarBody] = string(body)
	}
	return vars, nil
}
