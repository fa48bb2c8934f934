package prefs

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-prefs/layering"
)

var ErrNoEvaluator = errors.New("prefs: evaluator not configured")

// Snapshot returns the resolved preferences as a nested document.
// "editor.tabSize" is reachable as snapshot["editor"]["tabSize"].
func (s *Service) Snapshot(opts ...CallOption) map[string]any {
	return layering.Unflatten(s.Preferences(opts...))
}

// Evaluate runs expr against the resolved preferences. The snapshot keys are
// bound at the top level and again under "config".
func (s *Service) Evaluate(expr string, opts ...CallOption) (Response[any], error) {
	call := applyCallOptions(opts)
	scope := s.scopes[len(s.scopes)-1]
	if call.scope != nil {
		scope = *call.scope
	}
	ctx := RuleContext{
		Scope:              scope,
		ResourceURI:        call.resourceURI,
		OverrideIdentifier: call.overrideIdentifier,
	}
	return s.EvaluateWith(ctx, expr)
}

// EvaluateWith runs expr using ctx. A nil ctx.Snapshot is filled with the
// resolved preferences for ctx.ResourceURI and ctx.OverrideIdentifier.
func (s *Service) EvaluateWith(ctx RuleContext, expr string) (Response[any], error) {
	if expr == "" {
		return Response[any]{}, ErrEmptyExpression
	}
	evaluator, err := s.resolveEvaluator()
	if err != nil {
		return Response[any]{}, err
	}
	if ctx.Snapshot == nil {
		ctx.Snapshot = s.Snapshot(ForResource(ctx.ResourceURI), ForOverride(ctx.OverrideIdentifier))
	}
	ctx = ctx.withDefaults()
	engine := evaluatorEngineName(evaluator)
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	duration := time.Since(start)
	evalErr = wrapEvaluationError(engine, expr, &ctx, evalErr)
	s.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     expr,
		Scope:    ctx.scopeLabel(),
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return Response[any]{}, evalErr
	}
	return Response[any]{Value: value}, nil
}

func (s *Service) resolveEvaluator() (Evaluator, error) {
	if len(s.cfg.functionErrs) > 0 {
		return nil, fmt.Errorf("prefs: custom functions: %w", errors.Join(s.cfg.functionErrs...))
	}
	s.evalMu.Lock()
	defer s.evalMu.Unlock()
	if s.cfg.evaluator != nil {
		return s.cfg.evaluator, nil
	}
	var exprOpts []ExprEvaluatorOption
	if s.cfg.programCache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(s.cfg.programCache))
	}
	if s.cfg.functions != nil {
		exprOpts = append(exprOpts, ExprWithFunctionRegistry(s.cfg.functions))
	}
	evaluator := NewExprEvaluator(exprOpts...)
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	s.cfg.evaluator = evaluator
	return evaluator, nil
}

func (s *Service) evaluatorLogger() EvaluatorLogger {
	if s.cfg.evalLogger != nil {
		return s.cfg.evalLogger
	}
	return ZerologEvaluatorLogger(s.cfg.logger)
}

func evaluatorEngineName(e Evaluator) string {
	switch e.(type) {
	case nil:
		return "unknown"
	case *exprEvaluator:
		return "expr"
	case *celEvaluator:
		return "cel"
	default:
		if name := jsEngineName(e); name != "" {
			return name
		}
		return "custom"
	}
}

// ProgramCache keeps compiled programs keyed by expression so repeated
// evaluations against changing preferences skip compilation.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// WithProgramCache shares cache with the default expr evaluator.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *config) {
		cfg.programCache = cache
	}
}

type jsEvaluatorConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// JSEvaluatorOption configures NewJSEvaluator.
type JSEvaluatorOption func(*jsEvaluatorConfig)

func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		cfg.cache = cache
	}
}

func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		cfg.registry = registry.Clone()
	}
}

func applyJSEvaluatorOptions(opts []JSEvaluatorOption) jsEvaluatorConfig {
	cfg := jsEvaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
