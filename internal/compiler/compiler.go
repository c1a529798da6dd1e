// Package compiler turns CUE mapping specifications into the immutable
// rule sets and domain configurations the engine consumes.
//
// A mapping spec declares one or more domains:
//
//	domain: "VS": {
//		config: {
//			primary_table:    "VITALS"
//			join_key:         "SUBJID"
//			subject_variable: "USUBJID"
//			vertical:         true
//			measures: [{column: "SYSBP", code: "SYSBP", name: "Systolic Blood Pressure", unit: "mmHg"}]
//		}
//		variable: "VSTESTCD": {
//			order:       3
//			type:        "char"
//			length:      8
//			requirement: "required"
//			expression:  "ASSIGN(MEASURE.CODE)"
//			codelist:    "VSTESTCD"
//		}
//	}
//
// Expressions are parsed to their AST at compile time; nothing is
// re-parsed during evaluation.
package compiler

import (
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/clinforge/sdtmap/internal/expr"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

// CompiledDomain pairs a domain's shape configuration with its rule set.
type CompiledDomain struct {
	Config *sdtm.DomainConfig
	Rules  *sdtm.RuleSet
}

// CompileAll compiles every domain declared under the top-level
// "domain" struct of a mapping spec. Domains come back sorted by name
// so output order never depends on CUE's field iteration.
func CompileAll(v cue.Value) ([]CompiledDomain, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	domainVal := v.LookupPath(cue.ParsePath("domain"))
	if !domainVal.Exists() {
		return nil, &CompileError{
			Field:   "domain",
			Message: "mapping spec declares no domains",
			Pos:     v.Pos(),
		}
	}

	iter, err := domainVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var compiled []CompiledDomain
	for iter.Next() {
		d, err := CompileDomain(iter.Value())
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, d)
	}
	sort.Slice(compiled, func(i, j int) bool {
		return compiled[i].Config.Domain < compiled[j].Config.Domain
	})
	return compiled, nil
}

// CompileDomain parses one domain struct into its configuration and
// rule set. Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the domain struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`domain: "AE": { ... }`)
//	d, err := CompileDomain(v.LookupPath(cue.ParsePath(`domain."AE"`)))
func CompileDomain(v cue.Value) (CompiledDomain, error) {
	if err := v.Err(); err != nil {
		return CompiledDomain{}, formatCUEError(err)
	}

	// Domain code comes from the struct label. It may be quoted in CUE.
	name := ""
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	cfg, allowDerived, err := parseConfig(v, name)
	if err != nil {
		return CompiledDomain{}, err
	}

	rules, err := parseVariables(v, name)
	if err != nil {
		return CompiledDomain{}, err
	}
	rules.AllowDerivedInputs = allowDerived

	return CompiledDomain{Config: cfg, Rules: rules}, nil
}

// parseConfig extracts the config struct. The allow_derived_inputs
// switch lives under config in CUE but belongs to the rule set in the
// compiled form.
func parseConfig(v cue.Value, domain string) (*sdtm.DomainConfig, bool, error) {
	cfgVal := v.LookupPath(cue.ParsePath("config"))
	if !cfgVal.Exists() {
		return nil, false, &CompileError{
			Field:   "config",
			Message: "config is required",
			Pos:     v.Pos(),
		}
	}

	cfg := &sdtm.DomainConfig{Domain: domain}

	var err error
	if cfg.PrimaryTable, err = requiredString(cfgVal, "primary_table"); err != nil {
		return nil, false, err
	}
	if cfg.SubjectVariable, err = requiredString(cfgVal, "subject_variable"); err != nil {
		return nil, false, err
	}
	if cfg.JoinKey, err = optionalString(cfgVal, "join_key"); err != nil {
		return nil, false, err
	}
	if cfg.PinnedTables, err = stringList(cfgVal, "pinned_tables"); err != nil {
		return nil, false, err
	}
	if cfg.Vertical, err = optionalBool(cfgVal, "vertical"); err != nil {
		return nil, false, err
	}
	allowDerived, err := optionalBool(cfgVal, "allow_derived_inputs")
	if err != nil {
		return nil, false, err
	}

	if cfg.Measures, err = parseMeasures(cfgVal); err != nil {
		return nil, false, err
	}
	if cfg.Sequence, err = parseSequence(cfgVal); err != nil {
		return nil, false, err
	}
	if cfg.StudyDays, err = parseStudyDays(cfgVal); err != nil {
		return nil, false, err
	}
	if cfg.Baselines, err = parseBaselines(cfgVal); err != nil {
		return nil, false, err
	}
	if cfg.DatePairs, err = parseDatePairs(cfgVal); err != nil {
		return nil, false, err
	}

	return cfg, allowDerived, nil
}

// parseVariables extracts the variable structs into an ordered rule
// set. Rules sort by their declared order, ties by variable name.
func parseVariables(v cue.Value, domain string) (*sdtm.RuleSet, error) {
	varVal := v.LookupPath(cue.ParsePath("variable"))
	if !varVal.Exists() {
		return nil, &CompileError{
			Field:   "variable",
			Message: "at least one variable is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := varVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	rs := &sdtm.RuleSet{Domain: domain}
	for iter.Next() {
		varName := strings.Trim(iter.Label(), `"`)
		rule, err := parseVariable(iter.Value(), domain, varName)
		if err != nil {
			return nil, err
		}
		rs.Rules = append(rs.Rules, rule)
	}
	if len(rs.Rules) == 0 {
		return nil, &CompileError{
			Field:   "variable",
			Message: "at least one variable is required",
			Pos:     varVal.Pos(),
		}
	}

	sort.SliceStable(rs.Rules, func(i, j int) bool {
		if rs.Rules[i].Order != rs.Rules[j].Order {
			return rs.Rules[i].Order < rs.Rules[j].Order
		}
		return rs.Rules[i].Variable < rs.Rules[j].Variable
	})
	return rs, nil
}

func parseVariable(v cue.Value, domain, name string) (sdtm.VariableRule, error) {
	rule := sdtm.VariableRule{Domain: domain, Variable: name}

	orderVal := v.LookupPath(cue.ParsePath("order"))
	if orderVal.Exists() {
		order, err := orderVal.Int64()
		if err != nil {
			return rule, &CompileError{
				Field:   fmt.Sprintf("variable.%s.order", name),
				Message: "order must be an integer",
				Pos:     orderVal.Pos(),
			}
		}
		rule.Order = int(order)
	}

	typeStr, err := optionalString(v, "type")
	if err != nil {
		return rule, err
	}
	if typeStr == "" {
		typeStr = string(sdtm.TypeChar)
	}
	rule.Type = sdtm.VariableType(typeStr)

	lengthVal := v.LookupPath(cue.ParsePath("length"))
	if lengthVal.Exists() {
		length, err := lengthVal.Int64()
		if err != nil {
			return rule, &CompileError{
				Field:   fmt.Sprintf("variable.%s.length", name),
				Message: "length must be an integer",
				Pos:     lengthVal.Pos(),
			}
		}
		rule.Length = int(length)
	}

	reqStr, err := optionalString(v, "requirement")
	if err != nil {
		return rule, err
	}
	if reqStr == "" {
		reqStr = string(sdtm.RequirementPermissible)
	}
	rule.Requirement = sdtm.Requirement(reqStr)

	if rule.Tables, err = stringList(v, "tables"); err != nil {
		return rule, err
	}
	if rule.Codelist, err = optionalString(v, "codelist"); err != nil {
		return rule, err
	}

	exprVal := v.LookupPath(cue.ParsePath("expression"))
	if !exprVal.Exists() {
		return rule, &CompileError{
			Field:   fmt.Sprintf("variable.%s.expression", name),
			Message: "expression is required",
			Pos:     v.Pos(),
		}
	}
	exprStr, err := exprVal.String()
	if err != nil {
		return rule, &CompileError{
			Field:   fmt.Sprintf("variable.%s.expression", name),
			Message: "expression must be a string",
			Pos:     exprVal.Pos(),
		}
	}
	node, err := expr.Parse(exprStr)
	if err != nil {
		return rule, &CompileError{
			Field:   fmt.Sprintf("variable.%s.expression", name),
			Message: err.Error(),
			Pos:     exprVal.Pos(),
		}
	}
	rule.Expression = node

	return rule, nil
}

func parseMeasures(v cue.Value) ([]sdtm.Measure, error) {
	listVal := v.LookupPath(cue.ParsePath("measures"))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var measures []sdtm.Measure
	for iter.Next() {
		mv := iter.Value()
		var m sdtm.Measure
		if m.Column, err = requiredString(mv, "column"); err != nil {
			return nil, err
		}
		if m.Code, err = requiredString(mv, "code"); err != nil {
			return nil, err
		}
		if m.Name, err = optionalString(mv, "name"); err != nil {
			return nil, err
		}
		if m.Unit, err = optionalString(mv, "unit"); err != nil {
			return nil, err
		}
		measures = append(measures, m)
	}
	return measures, nil
}

func parseSequence(v cue.Value) (*sdtm.SequenceSpec, error) {
	seqVal := v.LookupPath(cue.ParsePath("sequence"))
	if !seqVal.Exists() {
		return nil, nil
	}

	spec := &sdtm.SequenceSpec{}
	var err error
	if spec.Target, err = requiredString(seqVal, "target"); err != nil {
		return nil, err
	}
	if spec.GroupBy, err = stringList(seqVal, "group_by"); err != nil {
		return nil, err
	}
	if spec.OrderBy, err = stringList(seqVal, "order_by"); err != nil {
		return nil, err
	}
	return spec, nil
}

func parseStudyDays(v cue.Value) ([]sdtm.StudyDaySpec, error) {
	listVal := v.LookupPath(cue.ParsePath("study_days"))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []sdtm.StudyDaySpec
	for iter.Next() {
		sv := iter.Value()
		var spec sdtm.StudyDaySpec
		if spec.Target, err = requiredString(sv, "target"); err != nil {
			return nil, err
		}
		if spec.Event, err = requiredString(sv, "event"); err != nil {
			return nil, err
		}
		if spec.Reference, err = requiredString(sv, "reference"); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseBaselines(v cue.Value) ([]sdtm.BaselineSpec, error) {
	listVal := v.LookupPath(cue.ParsePath("baselines"))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []sdtm.BaselineSpec
	for iter.Next() {
		bv := iter.Value()
		var spec sdtm.BaselineSpec
		if spec.Target, err = requiredString(bv, "target"); err != nil {
			return nil, err
		}
		if spec.GroupBy, err = stringList(bv, "group_by"); err != nil {
			return nil, err
		}
		if spec.Result, err = optionalString(bv, "result"); err != nil {
			return nil, err
		}
		if spec.Date, err = requiredString(bv, "date"); err != nil {
			return nil, err
		}
		if spec.Cutoff, err = optionalString(bv, "cutoff"); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseDatePairs(v cue.Value) ([][2]string, error) {
	listVal := v.LookupPath(cue.ParsePath("date_pairs"))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var pairs [][2]string
	for iter.Next() {
		pair, err := stringPair(iter.Value())
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func stringPair(v cue.Value) ([2]string, error) {
	iter, err := v.List()
	if err != nil {
		return [2]string{}, formatCUEError(err)
	}

	var elems []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return [2]string{}, formatCUEError(err)
		}
		elems = append(elems, s)
	}
	if len(elems) != 2 {
		return [2]string{}, &CompileError{
			Field:   "date_pairs",
			Message: fmt.Sprintf("date pair must have exactly 2 elements, got %d", len(elems)),
			Pos:     v.Pos(),
		}
	}
	return [2]string{elems[0], elems[1]}, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: field + " must be a string",
			Pos:     fieldVal.Pos(),
		}
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", nil
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: field + " must be a string",
			Pos:     fieldVal.Pos(),
		}
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return false, nil
	}
	b, err := fieldVal.Bool()
	if err != nil {
		return false, &CompileError{
			Field:   field,
			Message: field + " must be a bool",
			Pos:     fieldVal.Pos(),
		}
	}
	return b, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: field + " elements must be strings",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
