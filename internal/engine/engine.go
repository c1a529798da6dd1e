// Package engine is the per-domain pipeline facade: it wires the
// transformer, validator, scorer, and correction controller together
// behind the three operations the core exposes (transform, validate,
// and the bounded correction loop) plus a parallel multi-domain
// runner.
//
// The engine performs no network or disk I/O and never blocks on
// anything but its own computation; concurrency here is purely for
// throughput across independent domains.
package engine

import (
	"context"

	"github.com/clinforge/sdtmap/internal/correction"
	"github.com/clinforge/sdtmap/internal/expr"
	"github.com/clinforge/sdtmap/internal/score"
	"github.com/clinforge/sdtmap/internal/sdtm"
	"github.com/clinforge/sdtmap/internal/source"
	"github.com/clinforge/sdtmap/internal/transform"
	"github.com/clinforge/sdtmap/internal/validate"
)

// Domain bundles everything one domain run needs: its shape
// configuration, its rule set, and its source tables. All three are
// read-only to the engine.
type Domain struct {
	Config *sdtm.DomainConfig
	Rules  *sdtm.RuleSet
	Tables *source.TableSet
}

// Engine executes the standardization pipeline. Construct with New;
// the zero value is not usable.
//
// An Engine is safe for concurrent use: every run's mutable state
// lives on the run's own stack.
type Engine struct {
	codelists     sdtm.Codelists
	registry      sdtm.SubjectRegistry
	businessRules []validate.BusinessRule
	visitVariable string

	layers        validate.LayerConfig
	scoreConfig   score.Config
	maxIterations int
	runIDs        RunIDGenerator

	transformer *transform.Transformer
	validator   *validate.Validator
	scorer      *score.Scorer
}

// Option configures an Engine.
type Option func(*Engine)

// WithCodelists supplies the controlled-terminology provider used by
// both FORMAT evaluation and the terminology layer.
func WithCodelists(c sdtm.Codelists) Option {
	return func(e *Engine) { e.codelists = c }
}

// WithRegistry enables the cross-domain layer.
func WithRegistry(r sdtm.SubjectRegistry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithBusinessRules supplies the declarative cross-field checks.
func WithBusinessRules(rules ...validate.BusinessRule) Option {
	return func(e *Engine) { e.businessRules = append(e.businessRules, rules...) }
}

// WithVisitVariable names the variable checked against scheduled
// (subject, visit) pairs.
func WithVisitVariable(v string) Option {
	return func(e *Engine) { e.visitVariable = v }
}

// WithLayers overrides the default layer selection.
func WithLayers(l validate.LayerConfig) Option {
	return func(e *Engine) { e.layers = l }
}

// WithScoreConfig overrides the default scoring weight table.
func WithScoreConfig(c score.Config) Option {
	return func(e *Engine) { e.scoreConfig = c }
}

// WithMaxIterations bounds the correction loop.
func WithMaxIterations(n int) Option {
	return func(e *Engine) { e.maxIterations = n }
}

// WithRunIDGenerator overrides run identity, for deterministic tests.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// New creates an Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{
		layers:        validate.DefaultLayers(),
		scoreConfig:   score.DefaultConfig(),
		maxIterations: sdtm.DefaultMaxIterations,
		runIDs:        UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.transformer = transform.New(codelistSource(e.codelists))
	e.validator = &validate.Validator{
		Codelists:     e.codelists,
		Registry:      e.registry,
		BusinessRules: e.businessRules,
		VisitVariable: e.visitVariable,
	}
	e.scorer = score.New(e.scoreConfig)
	return e
}

// codelistSource keeps a nil provider nil across the interface
// boundary so the evaluator's nil check still works.
func codelistSource(c sdtm.Codelists) expr.CodelistSource {
	if c == nil {
		return nil
	}
	return c
}

// Transform runs the two-pass transformation for one domain. Only
// configuration-class defects and cancellation produce an error.
func (e *Engine) Transform(ctx context.Context, d Domain) ([]*sdtm.OutputRecord, error) {
	return e.transformer.Transform(ctx, d.Config, d.Rules, d.Tables)
}

// Validate runs the enabled validation layers over a completed record
// set and scores the findings into a fresh ComplianceReport.
func (e *Engine) Validate(d Domain, records []*sdtm.OutputRecord) sdtm.ComplianceReport {
	issues := e.validator.Validate(d.Config, d.Rules, records, e.layers)
	report := e.scorer.Score(d.Config.Domain, issues)
	report.RunID = e.runIDs.Generate()
	return report
}

// RunCorrectionLoop runs the bounded Transform→Validate→Score loop for
// one domain. Callers receive a (records, report, state) outcome for
// any data-quality condition, possibly with submission_ready false;
// only configuration defects and cancellation surface as errors.
func (e *Engine) RunCorrectionLoop(ctx context.Context, d Domain) (correction.Outcome, error) {
	ctrl := &correction.Controller{MaxIterations: e.maxIterations}
	return ctrl.Run(ctx, func(ctx context.Context, feedback []string) ([]*sdtm.OutputRecord, sdtm.ComplianceReport, error) {
		records, err := e.Transform(ctx, d)
		if err != nil {
			return nil, sdtm.ComplianceReport{}, err
		}
		return records, e.Validate(d, records), nil
	})
}
