package validate

import (
	"fmt"

	"github.com/clinforge/sdtmap/internal/expr"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

// BusinessRule is one declarative cross-field check over output
// records. When the When condition holds on a record, the Expect
// condition must also hold; a record where it does not is a finding.
//
// Conditions use the expression condition grammar and read the
// record's standardized values, e.g.
//
//	When:   AESEV == "LIFE THREATENING" || AESEV == "FATAL"
//	Expect: AESER == "Y"
type BusinessRule struct {
	ID       string
	Domain   string
	Severity sdtm.Severity
	Counting sdtm.Counting

	// When gates the rule; nil means the rule applies to every record.
	When expr.Node

	// Expect must hold on every gated record.
	Expect expr.Node

	// Variable attributes the finding to one output variable.
	Variable string
	Message  string
}

// ParseBusinessRule compiles condition sources into a BusinessRule.
// A parse failure is a configuration defect surfaced to the caller.
func ParseBusinessRule(id, domain string, severity sdtm.Severity, when, expect, variable, message string) (BusinessRule, error) {
	rule := BusinessRule{
		ID:       id,
		Domain:   domain,
		Severity: severity,
		Counting: sdtm.CountPerRecord,
		Variable: variable,
		Message:  message,
	}
	if when != "" {
		n, err := expr.ParseCondition(when)
		if err != nil {
			return BusinessRule{}, fmt.Errorf("business rule %s: when: %w", id, err)
		}
		rule.When = n
	}
	n, err := expr.ParseCondition(expect)
	if err != nil {
		return BusinessRule{}, fmt.Errorf("business rule %s: expect: %w", id, err)
	}
	rule.Expect = n
	return rule, nil
}

// checkBusiness evaluates every business rule for the domain against
// every record. Severity comes from the rule, never from the data.
func (v *Validator) checkBusiness(cfg *sdtm.DomainConfig, records []*sdtm.OutputRecord) []sdtm.Issue {
	b := newIssueBuilder(cfg.Domain, sdtm.LayerBusiness)
	eval := &expr.Evaluator{}

	for _, rule := range v.BusinessRules {
		if rule.Domain != "" && rule.Domain != cfg.Domain {
			continue
		}
		for _, r := range records {
			ctx := r.AsContext()
			if rule.When != nil {
				if applies, _ := eval.EvalCondition(rule.When, ctx); !applies {
					continue
				}
			}
			if ok, _ := eval.EvalCondition(rule.Expect, ctx); !ok {
				b.add(rule.ID, rule.Variable, rule.Severity, rule.Counting, rule.Message)
			}
		}
	}

	return b.issues()
}
