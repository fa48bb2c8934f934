package prefs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEvaluation matches every *EvaluationError.
	ErrEvaluation      = errors.New("prefs: evaluation failed")
	ErrEmptyExpression = errors.New("prefs: expression must not be empty")
)

// EvaluationError reports an expression that failed to compile, or to run
// against the preferences resolved for a scope, override and resource.
// Compile failures carry no location.
type EvaluationError struct {
	Engine             string
	Expr               string
	Scope              Scope
	OverrideIdentifier string
	ResourceURI        string
	Err                error

	located bool
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	engine := e.Engine
	if engine == "" {
		engine = "expression"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "prefs: %s %s", engine, describeExpression(e.Expr))
	if location := e.Location(); location != "" {
		fmt.Fprintf(&b, " in %s", location)
	}
	if e.ResourceURI != "" {
		fmt.Fprintf(&b, " for %s", e.ResourceURI)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

// Location renders where the expression ran, "folder" or "folder:go" for
// an override, and "" for compile failures.
func (e *EvaluationError) Location() string {
	if e == nil || !e.located {
		return ""
	}
	label := strings.ToLower(e.Scope.String())
	if e.OverrideIdentifier != "" {
		label += ":" + e.OverrideIdentifier
	}
	return label
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

// wrapEvaluationError attaches engine, expr and the location of ctx to err.
// A nil ctx marks a compile failure. An existing *EvaluationError keeps the
// fields it already has.
func wrapEvaluationError(engine, expr string, ctx *RuleContext, err error) error {
	if err == nil || errors.Is(err, ErrEmptyExpression) {
		return err
	}

	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		evalErr = &EvaluationError{Err: err}
	}
	if evalErr.Engine == "" {
		evalErr.Engine = engine
	}
	if evalErr.Expr == "" {
		evalErr.Expr = expr
	}
	if ctx != nil && !evalErr.located {
		evalErr.located = true
		evalErr.Scope = ctx.Scope
		evalErr.OverrideIdentifier = ctx.OverrideIdentifier
		evalErr.ResourceURI = ctx.ResourceURI
	}
	return evalErr
}
