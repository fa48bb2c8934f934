package prefs

import (
	"errors"
	"testing"
)

func TestWrapEvaluationErrorRecordsLocation(t *testing.T) {
	base := errors.New("boom")
	ctx := RuleContext{Scope: Folder, OverrideIdentifier: "go", ResourceURI: "file:///ws/app/main.go"}
	err := wrapEvaluationError("expr", "editor.tabSize > missing", &ctx, base)

	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %T", err)
	}
	if evalErr.Engine != "expr" || evalErr.Expr != "editor.tabSize > missing" {
		t.Fatalf("unexpected metadata %+v", evalErr)
	}
	if evalErr.Location() != "folder:go" || evalErr.ResourceURI != "file:///ws/app/main.go" {
		t.Fatalf("unexpected location %q %q", evalErr.Location(), evalErr.ResourceURI)
	}
	if !errors.Is(err, base) || !errors.Is(err, ErrEvaluation) {
		t.Fatalf("expected error to match base and ErrEvaluation")
	}
	want := `prefs: expr expr="editor.tabSize > missing" in folder:go for file:///ws/app/main.go: boom`
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestEvaluationErrorWithoutLocation(t *testing.T) {
	err := wrapEvaluationError("cel", "", nil, errors.New("no such key"))
	want := "prefs: cel expr=<empty>: no such key"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
	if wrapEvaluationError("cel", "x", nil, nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
	if got := wrapEvaluationError("cel", "", nil, ErrEmptyExpression); got != ErrEmptyExpression {
		t.Fatalf("expected empty expression error untouched, got %v", got)
	}
}

func TestWrapEvaluationErrorAugmentsCompileFailure(t *testing.T) {
	base := errors.New("compile failure")
	compiled := wrapEvaluationError("expr", "", nil, base)

	ctx := RuleContext{Scope: Workspace}
	err := wrapEvaluationError("cel", `editor.wordWrap == "on"`, &ctx, compiled)

	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || !errors.Is(err, base) {
		t.Fatalf("expected base error to unwrap, got %v", err)
	}
	if evalErr.Engine != "expr" {
		t.Fatalf("existing engine should not be overwritten, got %q", evalErr.Engine)
	}
	if evalErr.Expr != `editor.wordWrap == "on"` {
		t.Fatalf("expression should be filled, got %q", evalErr.Expr)
	}
	if evalErr.Location() != "workspace" {
		t.Fatalf("location should be filled, got %q", evalErr.Location())
	}

	other := RuleContext{Scope: User}
	_ = wrapEvaluationError("expr", "", &other, err)
	if evalErr.Location() != "workspace" {
		t.Fatalf("location must not be replaced, got %q", evalErr.Location())
	}
}
