package compiler

import (
	"fmt"
	"strings"

	"github.com/clinforge/sdtmap/internal/expr"
	"github.com/clinforge/sdtmap/internal/sdtm"
	"github.com/clinforge/sdtmap/internal/source"
)

// Validation error codes (E100-E199)
const (
	// Rule set errors (E100-E109)
	ErrDomainNameEmpty   = "E100" // domain has no name
	ErrNoVariables       = "E101" // at least one variable required
	ErrInvalidType       = "E102" // variable type not char/num
	ErrInvalidRequire    = "E103" // requirement not required/expected/permissible
	ErrDuplicateVariable = "E104" // duplicate variable name
	ErrDuplicateOrder    = "E105" // two variables share an order position
	ErrNegativeLength    = "E106" // declared length below zero

	// Domain config errors (E110-E119)
	ErrNoPrimaryTable     = "E110" // primary table is required
	ErrNoSubjectVariable  = "E111" // subject variable is required
	ErrVerticalNoMeasures = "E112" // vertical domain without measures
	ErrMeasuresNoVertical = "E113" // measures on a non-vertical domain
	ErrUnknownTarget      = "E114" // derivation target not a mapped variable
	ErrMeasureRefFlat     = "E115" // MEASURE reference in a non-vertical domain
	ErrTableNotDeclared   = "E116" // expression references a table outside the rule's declared set
	ErrBadDatePair        = "E117" // date pair names an unmapped variable
)

// ValidationError represents a post-compile schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled domain against schema rules beyond what
// parsing alone can see. Returns all errors found (does not fail-fast).
func Validate(d CompiledDomain) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateRules(d.Rules)...)
	errs = append(errs, validateConfig(d.Config, d.Rules)...)
	return errs
}

func validateRules(rs *sdtm.RuleSet) []ValidationError {
	var errs []ValidationError

	if rs.Domain == "" {
		errs = append(errs, ValidationError{
			Field:   "domain",
			Message: "domain name is required",
			Code:    ErrDomainNameEmpty,
		})
	}
	if len(rs.Rules) == 0 {
		errs = append(errs, ValidationError{
			Field:   "variable",
			Message: "at least one variable is required",
			Code:    ErrNoVariables,
		})
	}

	names := make(map[string]bool)
	orders := make(map[int]string)
	for _, r := range rs.Rules {
		field := fmt.Sprintf("variable.%s", r.Variable)

		if names[r.Variable] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate variable name: %q", r.Variable),
				Code:    ErrDuplicateVariable,
			})
		}
		names[r.Variable] = true

		if r.Type != sdtm.TypeChar && r.Type != sdtm.TypeNum {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("invalid type %q, must be \"char\" or \"num\"", r.Type),
				Code:    ErrInvalidType,
			})
		}
		if !sdtm.ValidRequirements[r.Requirement] {
			errs = append(errs, ValidationError{
				Field:   field + ".requirement",
				Message: fmt.Sprintf("invalid requirement %q, must be \"required\", \"expected\", or \"permissible\"", r.Requirement),
				Code:    ErrInvalidRequire,
			})
		}
		if r.Length < 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".length",
				Message: fmt.Sprintf("length must not be negative, got %d", r.Length),
				Code:    ErrNegativeLength,
			})
		}
		if r.Order > 0 {
			if prev, dup := orders[r.Order]; dup {
				errs = append(errs, ValidationError{
					Field:   field + ".order",
					Message: fmt.Sprintf("order %d already used by %q", r.Order, prev),
					Code:    ErrDuplicateOrder,
				})
			} else {
				orders[r.Order] = r.Variable
			}
		}

		// Qualified references must stay inside the rule's declared
		// table set when one is given. MEASURE is virtual and exempt.
		if len(r.Tables) > 0 && r.Expression != nil {
			declared := make(map[string]bool, len(r.Tables))
			for _, t := range r.Tables {
				declared[t] = true
			}
			for _, ref := range expr.Fields(r.Expression) {
				if ref.Table == "" || ref.Table == source.MeasureTable {
					continue
				}
				if !declared[ref.Table] {
					errs = append(errs, ValidationError{
						Field:   field + ".expression",
						Message: fmt.Sprintf("variable %q references table %q outside its declared tables", r.Variable, ref.Table),
						Code:    ErrTableNotDeclared,
					})
				}
			}
		}
	}

	return errs
}

func validateConfig(cfg *sdtm.DomainConfig, rs *sdtm.RuleSet) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(cfg.PrimaryTable) == "" {
		errs = append(errs, ValidationError{
			Field:   "config.primary_table",
			Message: "primary_table is required and must be non-empty",
			Code:    ErrNoPrimaryTable,
		})
	}
	if strings.TrimSpace(cfg.SubjectVariable) == "" {
		errs = append(errs, ValidationError{
			Field:   "config.subject_variable",
			Message: "subject_variable is required and must be non-empty",
			Code:    ErrNoSubjectVariable,
		})
	}

	if cfg.Vertical && len(cfg.Measures) == 0 {
		errs = append(errs, ValidationError{
			Field:   "config.measures",
			Message: "vertical domain must declare at least one measure",
			Code:    ErrVerticalNoMeasures,
		})
	}
	if !cfg.Vertical && len(cfg.Measures) > 0 {
		errs = append(errs, ValidationError{
			Field:   "config.measures",
			Message: "measures declared on a non-vertical domain",
			Code:    ErrMeasuresNoVertical,
		})
	}

	// MEASURE.* only resolves when the domain unpivots.
	if !cfg.Vertical {
		for _, r := range rs.Rules {
			if r.Expression == nil {
				continue
			}
			for _, ref := range expr.Fields(r.Expression) {
				if ref.Table == source.MeasureTable {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("variable.%s.expression", r.Variable),
						Message: fmt.Sprintf("variable %q reads MEASURE.%s but the domain is not vertical", r.Variable, ref.Column),
						Code:    ErrMeasureRefFlat,
					})
				}
			}
		}
	}

	// Derivation targets and date pairs must name mapped variables.
	mapped := make(map[string]bool, len(rs.Rules))
	for _, r := range rs.Rules {
		mapped[r.Variable] = true
	}
	checkTarget := func(field, target string) {
		if target != "" && !mapped[target] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("target %q is not a mapped variable", target),
				Code:    ErrUnknownTarget,
			})
		}
	}
	if cfg.Sequence != nil {
		checkTarget("config.sequence.target", cfg.Sequence.Target)
	}
	for i, sd := range cfg.StudyDays {
		checkTarget(fmt.Sprintf("config.study_days[%d].target", i), sd.Target)
	}
	for i, b := range cfg.Baselines {
		checkTarget(fmt.Sprintf("config.baselines[%d].target", i), b.Target)
	}
	for i, pair := range cfg.DatePairs {
		for _, v := range pair {
			if !mapped[v] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("config.date_pairs[%d]", i),
					Message: fmt.Sprintf("date pair names unmapped variable %q", v),
					Code:    ErrBadDatePair,
				})
			}
		}
	}

	return errs
}
