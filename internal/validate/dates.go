package validate

import (
	"fmt"
	"strings"

	"github.com/clinforge/sdtmap/internal/iso8601"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

// Date-format rule identifiers.
const (
	RuleDateMalformed     = "DT-001" // populated date is not canonical full/partial ISO-8601
	RuleDateOrderViolated = "DT-002" // start date after end date
)

// dateVariableSuffix marks date/time variables by naming convention:
// --DTC variables hold ISO-8601 character dates.
const dateVariableSuffix = "DTC"

// checkDates verifies every populated date value is a syntactically
// valid full-or-partial ISO-8601 calendar string, and that declared
// (start, end) pairs satisfy start <= end when both are present.
// Partial values are valid; they mean "unknown", not "wrong".
func (v *Validator) checkDates(cfg *sdtm.DomainConfig, rules *sdtm.RuleSet, records []*sdtm.OutputRecord) []sdtm.Issue {
	b := newIssueBuilder(cfg.Domain, sdtm.LayerDateFormat)

	for _, rule := range rules.Rules {
		if !strings.HasSuffix(rule.Variable, dateVariableSuffix) {
			continue
		}
		for _, r := range records {
			val := r.Value(rule.Variable)
			if val == "" {
				continue
			}
			if !iso8601.IsCanonical(val) {
				b.add(RuleDateMalformed, rule.Variable, sdtm.SeverityMajor, sdtm.CountPerRecord,
					fmt.Sprintf("%q is not a valid ISO-8601 date", val))
			}
		}
	}

	for _, pair := range cfg.DatePairs {
		start, end := pair[0], pair[1]
		for _, r := range records {
			sv, ev := r.Value(start), r.Value(end)
			if sv == "" || ev == "" {
				continue
			}
			sd, serr := iso8601.Parse(sv)
			ed, eerr := iso8601.Parse(ev)
			if serr != nil || eerr != nil {
				continue // malformed values are DT-001's finding
			}
			if iso8601.Compare(sd, ed) > 0 {
				b.add(RuleDateOrderViolated, start, sdtm.SeverityMajor, sdtm.CountPerRecord,
					fmt.Sprintf("%s %q is after %s %q", start, sv, end, ev))
			}
		}
	}

	return b.issues()
}
