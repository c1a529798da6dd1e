package validate

import (
	"fmt"

	"github.com/clinforge/sdtmap/internal/sdtm"
)

// Cross-domain rule identifiers.
const (
	RuleUnknownSubject = "XD-001" // subject key absent from the reference domain
	RuleUnknownVisit   = "XD-002" // (subject, visit) pair not scheduled
)

// checkCrossDomain verifies every subject (and, when configured, every
// visit) referenced by the output exists in the external registry.
// Requires a registry; callers without one skip the layer entirely.
func (v *Validator) checkCrossDomain(cfg *sdtm.DomainConfig, records []*sdtm.OutputRecord) []sdtm.Issue {
	b := newIssueBuilder(cfg.Domain, sdtm.LayerCrossDomain)

	for _, r := range records {
		subject := r.Value(cfg.SubjectVariable)
		if subject == "" {
			continue // empty subjects are the structural layer's finding
		}
		if !v.Registry.HasSubject(subject) {
			b.add(RuleUnknownSubject, cfg.SubjectVariable, sdtm.SeverityCritical, sdtm.CountPerRecord,
				fmt.Sprintf("subject %q not found in reference domain", subject))
			continue
		}
		if v.VisitVariable == "" {
			continue
		}
		visit := r.Value(v.VisitVariable)
		if visit == "" {
			continue
		}
		if !v.Registry.HasVisit(subject, visit) {
			b.add(RuleUnknownVisit, v.VisitVariable, sdtm.SeverityMajor, sdtm.CountPerRecord,
				fmt.Sprintf("visit %q not scheduled for subject %q", visit, subject))
		}
	}

	return b.issues()
}
