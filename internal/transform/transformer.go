// Package transform orchestrates rule evaluation across all rows and
// fields of one target domain, producing an ordered output record set.
//
// A run is two passes: per-cell rule evaluation over each grain unit,
// then composite derivations over the complete in-progress set. Records
// publish atomically at the end of a full pass; there is no partial
// output to observe.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/clinforge/sdtmap/internal/derive"
	"github.com/clinforge/sdtmap/internal/expr"
	"github.com/clinforge/sdtmap/internal/sdtm"
	"github.com/clinforge/sdtmap/internal/source"
)

// Transformer evaluates one domain's rule set over its source tables.
//
// A Transformer is stateless between runs and safe to reuse; each call
// to Transform is independent.
type Transformer struct {
	eval *expr.Evaluator
}

// New creates a Transformer. codelists may be nil when the rule set
// contains no FORMAT expressions.
func New(codelists expr.CodelistSource) *Transformer {
	return &Transformer{eval: &expr.Evaluator{Codelists: codelists}}
}

// Transform runs the full two-pass pipeline for one domain.
//
// Failure semantics: a single grain unit's derivation failure never
// aborts the run; the record is retained with empty, diagnosed fields
// for the Validator to surface. Only configuration-class defects
// (ConfigError) fail the run, and they fail it before any output
// exists. Cancellation is cooperative: the current grain unit finishes,
// the remainder is discarded, and ctx.Err() is returned.
func (t *Transformer) Transform(
	ctx context.Context,
	cfg *sdtm.DomainConfig,
	rules *sdtm.RuleSet,
	tables *source.TableSet,
) ([]*sdtm.OutputRecord, error) {
	if err := t.preflight(cfg, rules, tables); err != nil {
		return nil, err
	}

	primary, _ := tables.Table(cfg.PrimaryTable)

	slog.Debug("transform starting",
		"domain", cfg.Domain,
		"rows", len(primary.Rows),
		"rules", len(rules.Rules),
		"vertical", cfg.Vertical,
	)

	records, err := t.evaluatePass(ctx, cfg, rules, tables, primary)
	if err != nil {
		return nil, err
	}

	t.derivePass(cfg, records)
	sortRecords(cfg, records)

	slog.Debug("transform complete", "domain", cfg.Domain, "records", len(records))
	return records, nil
}

// evaluatePass builds one record per grain unit, evaluating each rule
// in declaration order against raw source columns (plus, when the rule
// set allows it, already-derived values on the same record).
func (t *Transformer) evaluatePass(
	ctx context.Context,
	cfg *sdtm.DomainConfig,
	rules *sdtm.RuleSet,
	tables *source.TableSet,
	primary *source.Table,
) ([]*sdtm.OutputRecord, error) {
	var records []*sdtm.OutputRecord
	grain := 0

	for _, row := range primary.Rows {
		// Cooperative cancellation between grain units, never mid-unit.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !cfg.Vertical {
			rc := source.NewRowContext(tables, cfg.PrimaryTable, row, cfg.JoinKey)
			records = append(records, t.evaluateUnit(cfg, rules, rc, grain))
			grain++
			continue
		}

		// Vertical grain: one record per non-missing measurement.
		for _, m := range cfg.Measures {
			value, ok := row[m.Column]
			if !ok || value == "" {
				continue
			}
			rc := source.NewRowContext(tables, cfg.PrimaryTable, row, cfg.JoinKey).
				WithMeasure(m.Code, m.Name, value, m.Unit)
			records = append(records, t.evaluateUnit(cfg, rules, rc, grain))
			grain++
		}
	}

	return records, nil
}

// evaluateUnit evaluates every rule against one grain unit.
func (t *Transformer) evaluateUnit(
	cfg *sdtm.DomainConfig,
	rules *sdtm.RuleSet,
	rc *source.RowContext,
	grain int,
) *sdtm.OutputRecord {
	record := sdtm.NewOutputRecord(cfg.Domain, grain)

	if rules.AllowDerivedInputs {
		rc.WithDerived(record.Get)
	}

	for _, rule := range rules.Rules {
		value, diags := t.eval.Eval(rule.Expression, rc)
		record.Set(rule.Variable, value)
		if len(diags) > 0 {
			record.AddDiagnostics(rule.Variable, diags)
		}
	}
	return record
}

// derivePass applies the composite derivations over the full set.
// Sequencing runs last: its order keys depend on every per-cell and
// date derivation being complete.
func (t *Transformer) derivePass(cfg *sdtm.DomainConfig, records []*sdtm.OutputRecord) {
	for _, spec := range cfg.StudyDays {
		derive.StudyDay(records, spec)
	}
	for _, spec := range cfg.Baselines {
		derive.BaselineFlag(records, spec)
	}
	if cfg.Sequence != nil {
		derive.Sequence(records, *cfg.Sequence)
	}
}

// sortRecords orders the final output by (subject key, sequence).
func sortRecords(cfg *sdtm.DomainConfig, records []*sdtm.OutputRecord) {
	seqVar := ""
	if cfg.Sequence != nil {
		seqVar = cfg.Sequence.Target
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if s := a.Value(cfg.SubjectVariable); s != b.Value(cfg.SubjectVariable) {
			return s < b.Value(cfg.SubjectVariable)
		}
		if seqVar != "" {
			ai, aerr := strconv.Atoi(a.Value(seqVar))
			bi, berr := strconv.Atoi(b.Value(seqVar))
			if aerr == nil && berr == nil && ai != bi {
				return ai < bi
			}
		}
		return a.SourceIndex < b.SourceIndex
	})
}

// preflight rejects configuration defects before touching any row.
func (t *Transformer) preflight(cfg *sdtm.DomainConfig, rules *sdtm.RuleSet, tables *source.TableSet) error {
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Code: ErrCodeBadConfig, Domain: cfg.Domain, Message: err.Error()}
	}
	if err := rules.Validate(); err != nil {
		return &ConfigError{Code: ErrCodeBadConfig, Domain: cfg.Domain, Message: err.Error()}
	}
	if cfg.Domain != rules.Domain {
		return &ConfigError{
			Code:    ErrCodeBadConfig,
			Domain:  cfg.Domain,
			Message: fmt.Sprintf("rule set is for domain %s", rules.Domain),
		}
	}

	primary, ok := tables.Table(cfg.PrimaryTable)
	if !ok {
		return &ConfigError{
			Code:    ErrCodeBadConfig,
			Domain:  cfg.Domain,
			Table:   cfg.PrimaryTable,
			Message: fmt.Sprintf("primary table %q not provided", cfg.PrimaryTable),
		}
	}

	if err := t.checkReferences(cfg, rules, tables, primary); err != nil {
		return err
	}
	return t.indexJoins(cfg, rules, tables)
}

// checkReferences verifies every field reference resolves to a column
// some declared table actually carries. A miss is a schema violation:
// the rule set disagrees with the source schema, and running anyway
// would produce silently empty output.
func (t *Transformer) checkReferences(
	cfg *sdtm.DomainConfig,
	rules *sdtm.RuleSet,
	tables *source.TableSet,
	primary *source.Table,
) error {
	derived := make(map[string]bool, len(rules.Rules))

	for _, rule := range rules.Rules {
		for _, ref := range expr.Fields(rule.Expression) {
			if err := t.checkRef(cfg, rules, tables, primary, rule, ref, derived); err != nil {
				return err
			}
		}
		derived[rule.Variable] = true
	}
	return nil
}

func (t *Transformer) checkRef(
	cfg *sdtm.DomainConfig,
	rules *sdtm.RuleSet,
	tables *source.TableSet,
	primary *source.Table,
	rule sdtm.VariableRule,
	ref expr.FieldRef,
	derived map[string]bool,
) error {
	switch ref.Table {
	case "", cfg.PrimaryTable:
		if primary.HasColumn(ref.Column) {
			return nil
		}
		if ref.Table == "" && rules.AllowDerivedInputs && derived[ref.Column] {
			return nil
		}
		return &ConfigError{
			Code:     ErrCodeSchemaViolation,
			Domain:   cfg.Domain,
			Variable: rule.Variable,
			Column:   ref.Column,
			Table:    cfg.PrimaryTable,
			Message:  fmt.Sprintf("column %q not found in primary table %q", ref.Column, cfg.PrimaryTable),
		}

	case source.MeasureTable:
		if !cfg.Vertical {
			return &ConfigError{
				Code:     ErrCodeSchemaViolation,
				Domain:   cfg.Domain,
				Variable: rule.Variable,
				Column:   ref.Column,
				Message:  "MEASURE reference in a non-vertical domain",
			}
		}
		switch ref.Column {
		case source.MeasureCode, source.MeasureName, source.MeasureValue, source.MeasureUnit:
			return nil
		}
		return &ConfigError{
			Code:     ErrCodeSchemaViolation,
			Domain:   cfg.Domain,
			Variable: rule.Variable,
			Column:   ref.Column,
			Message:  fmt.Sprintf("unknown MEASURE column %q", ref.Column),
		}

	default:
		tab, ok := tables.Table(ref.Table)
		if !ok {
			return &ConfigError{
				Code:     ErrCodeSchemaViolation,
				Domain:   cfg.Domain,
				Variable: rule.Variable,
				Column:   ref.Column,
				Table:    ref.Table,
				Message:  fmt.Sprintf("table %q not provided", ref.Table),
			}
		}
		if !tab.HasColumn(ref.Column) {
			return &ConfigError{
				Code:     ErrCodeSchemaViolation,
				Domain:   cfg.Domain,
				Variable: rule.Variable,
				Column:   ref.Column,
				Table:    ref.Table,
				Message:  fmt.Sprintf("column %q not found in table %q", ref.Column, ref.Table),
			}
		}
		if cfg.JoinKey == "" {
			return &ConfigError{
				Code:     ErrCodeBadConfig,
				Domain:   cfg.Domain,
				Variable: rule.Variable,
				Table:    ref.Table,
				Message:  "qualified reference requires a join key",
			}
		}
		return nil
	}
}

// indexJoins builds the join-key index for every referenced
// supplemental table and enforces the coalesce pin: a table holding
// duplicate join keys must appear in the domain's pinned tables so
// that first-non-empty input-order resolution is acknowledged
// configuration, not an accident nobody declared.
func (t *Transformer) indexJoins(cfg *sdtm.DomainConfig, rules *sdtm.RuleSet, tables *source.TableSet) error {
	pinned := make(map[string]bool, len(cfg.PinnedTables))
	for _, name := range cfg.PinnedTables {
		pinned[name] = true
	}

	indexed := make(map[string]bool)
	for _, rule := range rules.Rules {
		for _, ref := range expr.Fields(rule.Expression) {
			if ref.Table == "" || ref.Table == cfg.PrimaryTable || ref.Table == source.MeasureTable {
				continue
			}
			if indexed[ref.Table] {
				continue
			}
			indexed[ref.Table] = true

			tab, _ := tables.Table(ref.Table)
			tab.BuildIndex(cfg.JoinKey)
			if tab.HasDuplicateKeys() && !pinned[ref.Table] {
				return &ConfigError{
					Code:   ErrCodeUnpinnedCoalesce,
					Domain: cfg.Domain,
					Table:  ref.Table,
					Message: fmt.Sprintf(
						"table %q has duplicate join keys; list it in pinned_tables to acknowledge input-order coalesce",
						ref.Table),
				}
			}
		}
	}
	return nil
}
