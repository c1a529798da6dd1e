// Package validate runs layered conformance checks over a completed
// output record set, emitting typed issues.
//
// Layers are independent and independently scorable: structural,
// controlled terminology, date format, business rules, and the
// optional cross-domain layer. Every check yields zero or more
// sdtm.Issue values with a severity fixed by the rule, never by the
// data. Validation itself never fails: messy data is the input, not an
// error.
package validate

import (
	"log/slog"

	"github.com/clinforge/sdtmap/internal/sdtm"
)

// LayerConfig selects which layers run. The zero value runs nothing;
// use DefaultLayers for the standard set.
type LayerConfig struct {
	Structural  bool
	Terminology bool
	DateFormat  bool
	Business    bool

	// CrossDomain additionally requires a registry on the Validator;
	// without one the layer is skipped even when enabled.
	CrossDomain bool
}

// DefaultLayers enables every layer. Cross-domain still degrades to a
// no-op when no registry is available.
func DefaultLayers() LayerConfig {
	return LayerConfig{
		Structural:  true,
		Terminology: true,
		DateFormat:  true,
		Business:    true,
		CrossDomain: true,
	}
}

// Validator runs all enabled layers for one domain.
type Validator struct {
	// Codelists resolves controlled-terminology lists; nil disables the
	// terminology layer's membership checks for codelist-bound rules.
	Codelists sdtm.CodelistProvider

	// Registry backs the cross-domain layer; nil skips it.
	Registry sdtm.SubjectRegistry

	// BusinessRules are the domain-specific cross-field checks.
	BusinessRules []BusinessRule

	// VisitVariable names the output variable checked against the
	// registry's (subject, visit) pairs. Empty skips visit checks.
	VisitVariable string
}

// Validate runs the enabled layers and returns the issue multiset.
// The rule set supplies per-variable metadata (requirement, length,
// codelist binding); the domain config supplies keys and date pairs.
func (v *Validator) Validate(
	cfg *sdtm.DomainConfig,
	rules *sdtm.RuleSet,
	records []*sdtm.OutputRecord,
	layers LayerConfig,
) []sdtm.Issue {
	var issues []sdtm.Issue

	if layers.Structural {
		issues = append(issues, v.checkStructural(cfg, rules, records)...)
	}
	if layers.Terminology {
		issues = append(issues, v.checkTerminology(cfg, rules, records)...)
	}
	if layers.DateFormat {
		issues = append(issues, v.checkDates(cfg, rules, records)...)
	}
	if layers.Business {
		issues = append(issues, v.checkBusiness(cfg, records)...)
	}
	if layers.CrossDomain && v.Registry != nil {
		issues = append(issues, v.checkCrossDomain(cfg, records)...)
	}

	slog.Debug("validation complete",
		"domain", cfg.Domain,
		"records", len(records),
		"issues", len(issues),
	)
	return issues
}

// issueBuilder accumulates per-record findings into one Issue per
// (rule, variable) with an affected-record count.
type issueBuilder struct {
	domain string
	layer  sdtm.Layer
	found  map[string]*sdtm.Issue
	order  []string
}

func newIssueBuilder(domain string, layer sdtm.Layer) *issueBuilder {
	return &issueBuilder{domain: domain, layer: layer, found: make(map[string]*sdtm.Issue)}
}

// add records one affected record under a rule. The first call for a
// (rule, variable) pair fixes the message; later calls only bump the
// count.
func (b *issueBuilder) add(ruleID, variable string, severity sdtm.Severity, counting sdtm.Counting, message string) {
	key := ruleID + "\x1f" + variable
	if iss, ok := b.found[key]; ok {
		iss.Count++
		return
	}
	b.found[key] = &sdtm.Issue{
		RuleID:   ruleID,
		Layer:    b.layer,
		Severity: severity,
		Domain:   b.domain,
		Variable: variable,
		Message:  message,
		Count:    1,
		Counting: counting,
	}
	b.order = append(b.order, key)
}

// issues returns the accumulated issues in first-seen order.
func (b *issueBuilder) issues() []sdtm.Issue {
	out := make([]sdtm.Issue, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, *b.found[key])
	}
	return out
}
