package validate

import (
	"fmt"

	"github.com/clinforge/sdtmap/internal/expr"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

// Terminology rule identifiers.
const (
	RuleTermNotInCodelist = "CT-001" // value is not a member of the bound codelist
	RuleTermNearMiss      = "CT-002" // case/spacing variant of a valid term
	RuleTermUnmapped      = "CT-003" // FORMAT passed an unmapped raw value through
)

// checkTerminology verifies every populated value of a codelist-bound
// variable is an exact, case-sensitive member of its list. Near-miss
// variants are flagged distinctly rather than silently accepted, and
// unmapped-value passthroughs recorded by FORMAT during transformation
// surface here as warnings.
func (v *Validator) checkTerminology(cfg *sdtm.DomainConfig, rules *sdtm.RuleSet, records []*sdtm.OutputRecord) []sdtm.Issue {
	b := newIssueBuilder(cfg.Domain, sdtm.LayerTerminology)

	if v.Codelists != nil {
		for _, rule := range rules.Rules {
			if rule.Codelist == "" {
				continue
			}
			cl, ok := v.Codelists.Codelist(rule.Codelist)
			if !ok {
				continue
			}
			for _, r := range records {
				val := r.Value(rule.Variable)
				if val == "" || cl.Contains(val) {
					continue
				}
				if term, near := cl.NearMiss(val); near {
					b.add(RuleTermNearMiss, rule.Variable, sdtm.SeverityMinor, sdtm.CountPerRecord,
						fmt.Sprintf("%q is a variant of codelist %s term %q", val, rule.Codelist, term))
					continue
				}
				b.add(RuleTermNotInCodelist, rule.Variable, sdtm.SeverityMajor, sdtm.CountPerRecord,
					fmt.Sprintf("%q is not in codelist %s", val, rule.Codelist))
			}
		}
	}

	// Unmapped-term diagnostics left by the transformer's FORMAT calls.
	for _, r := range records {
		for _, d := range r.Diagnostics {
			if d.Code == expr.DiagUnmappedTerm {
				b.add(RuleTermUnmapped, d.Variable, sdtm.SeverityWarning, sdtm.CountPerRecord, d.Message)
			}
		}
	}

	return b.issues()
}
