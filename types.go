package prefs

import (
	"strings"
	"time"

	"github.com/goliatone/go-prefs/pkg/activity"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/goliatone/go-prefs"

// Response stores a typed result produced by an evaluator.
type Response[T any] struct {
	Value T
}

// RuleContext carries inputs needed when evaluating an expression.
type RuleContext struct {
	Snapshot           any
	Now                *time.Time
	Args               map[string]any
	Metadata           map[string]any
	Scope              Scope
	ResourceURI        string
	OverrideIdentifier string
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) scopeLabel() string {
	label := strings.ToLower(ctx.Scope.String())
	if ctx.OverrideIdentifier != "" {
		label += ":" + ctx.OverrideIdentifier
	}
	return label
}

func (ctx RuleContext) scopeBinding() map[string]any {
	binding := map[string]any{
		"name":     strings.ToLower(ctx.Scope.String()),
		"priority": int(ctx.Scope),
	}
	if ctx.ResourceURI != "" {
		binding["resource"] = ctx.ResourceURI
	}
	if ctx.OverrideIdentifier != "" {
		binding["override"] = ctx.OverrideIdentifier
	}
	return binding
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

// Validator checks a candidate value against the schema registered for
// name. It returns the value to store and human readable messages; no
// messages means the value was accepted as is.
type Validator interface {
	ValidateByName(name string, value any) (any, []string)
}

// StrictValidator is a Validator that can also refuse a value outright.
// ValidateStrict returns nil instead of substituting a fallback when the
// value cannot be made to fit the schema.
type StrictValidator interface {
	Validator
	ValidateStrict(name string, value any) (any, []string)
}

// Option configures registries, providers and services.
type Option func(*config)

type config struct {
	logger        zerolog.Logger
	scheduler     Scheduler
	validScopes   []Scope
	overrides     *OverrideService
	contributions []SchemaContribution
	metrics       *Metrics
	tracer        trace.Tracer
	activityHooks activity.Hooks
	activityCfg   activity.Config
	evaluator     Evaluator
	programCache  ProgramCache
	functions     *FunctionRegistry
	functionErrs  []error
	evalLogger    EvaluatorLogger
}

func applyOptions(opts []Option) config {
	cfg := config{
		logger: zerolog.Nop(),
		activityCfg: activity.Config{
			Enabled: true,
			Channel: activity.DefaultChannel,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.scheduler == nil {
		cfg.scheduler = NewAsyncScheduler()
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(instrumentationName)
	}
	return cfg
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithScheduler sets the tick scheduler providers use to flush batched
// changes. The default runs flushes on a background goroutine.
func WithScheduler(scheduler Scheduler) Option {
	return func(cfg *config) {
		cfg.scheduler = scheduler
	}
}

// WithValidScopes restricts the scopes in play. Default is always included.
func WithValidScopes(scopes ...Scope) Option {
	return func(cfg *config) {
		cfg.validScopes = sortScopes(scopes)
	}
}

// WithOverrideService shares an override identifier service.
func WithOverrideService(overrides *OverrideService) Option {
	return func(cfg *config) {
		cfg.overrides = overrides
	}
}

// WithContributions registers schema contributions applied by
// SchemaRegistry.Initialize.
func WithContributions(contributions ...SchemaContribution) Option {
	return func(cfg *config) {
		cfg.contributions = append(cfg.contributions, contributions...)
	}
}

// WithMetrics records counters on m.
func WithMetrics(m *Metrics) Option {
	return func(cfg *config) {
		cfg.metrics = m
	}
}

// WithTracer overrides the OpenTelemetry tracer used for write spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(cfg *config) {
		cfg.tracer = tracer
	}
}

// WithEvaluator configures the evaluator used by Service.Evaluate.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *config) {
		cfg.evaluator = e
	}
}
