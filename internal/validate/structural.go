package validate

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/clinforge/sdtmap/internal/sdtm"
)

// Structural rule identifiers.
const (
	RuleRequiredMissing   = "STR-001" // required variable absent from the schema
	RuleRequiredEmpty     = "STR-002" // required variable unpopulated on records
	RuleLengthExceeded    = "STR-003" // declared length exceeded
	RuleDuplicateKey      = "STR-004" // duplicate (subject, sequence) pair
	RuleSequenceNotDense  = "STR-005" // per-subject sequence not dense 1..N
	RuleExpectedMissing   = "STR-006" // expected variable absent from the schema
)

// checkStructural verifies schema shape: required variables present and
// populated, declared lengths respected, and (subject, sequence)
// uniqueness and density.
func (v *Validator) checkStructural(cfg *sdtm.DomainConfig, rules *sdtm.RuleSet, records []*sdtm.OutputRecord) []sdtm.Issue {
	b := newIssueBuilder(cfg.Domain, sdtm.LayerStructural)

	v.checkPresence(b, rules, records)
	v.checkLengths(b, rules, records)
	if cfg.Sequence != nil {
		v.checkSequenceKeys(b, cfg, records)
	}

	return b.issues()
}

func (v *Validator) checkPresence(b *issueBuilder, rules *sdtm.RuleSet, records []*sdtm.OutputRecord) {
	for _, rule := range rules.Rules {
		switch rule.Requirement {
		case sdtm.RequirementRequired:
			for _, r := range records {
				val, present := r.Get(rule.Variable)
				if !present {
					b.add(RuleRequiredMissing, rule.Variable, sdtm.SeverityCritical, sdtm.CountPerIssue,
						fmt.Sprintf("required variable %s missing from output schema", rule.Variable))
					continue
				}
				if val == "" {
					b.add(RuleRequiredEmpty, rule.Variable, sdtm.SeverityMajor, sdtm.CountPerRecord,
						fmt.Sprintf("required variable %s is empty", rule.Variable))
				}
			}
		case sdtm.RequirementExpected:
			for _, r := range records {
				if _, present := r.Get(rule.Variable); !present {
					b.add(RuleExpectedMissing, rule.Variable, sdtm.SeverityMinor, sdtm.CountPerIssue,
						fmt.Sprintf("expected variable %s missing from output schema", rule.Variable))
				}
			}
		}
	}
}

func (v *Validator) checkLengths(b *issueBuilder, rules *sdtm.RuleSet, records []*sdtm.OutputRecord) {
	for _, rule := range rules.Rules {
		if rule.Length <= 0 {
			continue
		}
		for _, r := range records {
			if len([]rune(r.Value(rule.Variable))) > rule.Length {
				b.add(RuleLengthExceeded, rule.Variable, sdtm.SeverityMinor, sdtm.CountPerRecord,
					fmt.Sprintf("value exceeds declared length %d for %s", rule.Length, rule.Variable))
			}
		}
	}
}

// checkSequenceKeys enforces the core sequencing invariant: (subject,
// sequence) pairs unique per domain, and the sequence dense 1..N per
// subject with no restarts.
func (v *Validator) checkSequenceKeys(b *issueBuilder, cfg *sdtm.DomainConfig, records []*sdtm.OutputRecord) {
	seqVar := cfg.Sequence.Target
	subjVar := cfg.SubjectVariable

	seen := make(map[string]bool)
	bySubject := make(map[string][]int)

	for _, r := range records {
		subject := r.Value(subjVar)
		raw := r.Value(seqVar)

		key := subject + "\x1f" + raw
		if seen[key] {
			b.add(RuleDuplicateKey, seqVar, sdtm.SeverityCritical, sdtm.CountPerRecord,
				fmt.Sprintf("duplicate (%s, %s) pair", subjVar, seqVar))
		}
		seen[key] = true

		n, err := strconv.Atoi(raw)
		if err != nil {
			b.add(RuleSequenceNotDense, seqVar, sdtm.SeverityCritical, sdtm.CountPerRecord,
				fmt.Sprintf("non-numeric %s value %q", seqVar, raw))
			continue
		}
		bySubject[subject] = append(bySubject[subject], n)
	}

	for subject, seqs := range bySubject {
		sort.Ints(seqs)
		for i, n := range seqs {
			if n != i+1 {
				b.add(RuleSequenceNotDense, seqVar, sdtm.SeverityCritical, sdtm.CountPerIssue,
					fmt.Sprintf("%s not dense 1..N for subject %s", seqVar, subject))
				break
			}
		}
	}
}
