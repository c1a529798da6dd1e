package score

import "github.com/clinforge/sdtmap/internal/sdtm"

// Scorer is the deterministic issues → report reduction. The same
// issue multiset and config always produce the same report.
type Scorer struct {
	Config Config
}

// New creates a Scorer with the given config.
func New(cfg Config) *Scorer {
	return &Scorer{Config: cfg}
}

// Score reduces an issue multiset to a ComplianceReport.
//
// The score starts at 100 and each issue subtracts
// weight(severity) × f(count), where f is the issue's declared
// counting mode: 1 for per-issue, min(count, cap/weight) for
// per-record. The score floors at 0 and sub-scores are computed the
// same way per layer.
//
// Readiness is three independent clauses: score at or above the
// threshold, zero critical issues, and majors within the allowance. A
// numerically acceptable score never masks a raw critical count.
func (s *Scorer) Score(domain string, issues []sdtm.Issue) sdtm.ComplianceReport {
	total := 0.0
	layerPenalty := make(map[sdtm.Layer]float64)
	layerCount := make(map[sdtm.Layer]int)

	for _, iss := range issues {
		p := s.penalty(iss)
		total += p
		layerPenalty[iss.Layer] += p
		layerCount[iss.Layer]++
	}

	report := sdtm.ComplianceReport{
		Domain: domain,
		Score:  clampScore(100 - total),
		Issues: issues,
	}

	for _, layer := range sdtm.AllLayers() {
		report.LayerScores = append(report.LayerScores, sdtm.LayerScore{
			Layer:      layer,
			Score:      clampScore(100 - layerPenalty[layer]),
			IssueCount: layerCount[layer],
		})
	}

	criticals := report.CountBySeverity(sdtm.SeverityCritical)
	majors := report.CountBySeverity(sdtm.SeverityMajor)
	report.SubmissionReady = report.Score >= s.Config.Threshold &&
		criticals == 0 &&
		majors <= s.Config.AllowedMajor

	return report
}

// penalty computes one issue's score contribution.
func (s *Scorer) penalty(iss sdtm.Issue) float64 {
	w := s.Config.weight(iss.Severity)
	if w == 0 {
		return 0
	}
	if iss.Counting != sdtm.CountPerRecord {
		return w
	}

	count := iss.Count
	if count < 1 {
		count = 1
	}
	p := w * float64(count)
	if p > s.Config.MaxPerIssuePenalty {
		return s.Config.MaxPerIssuePenalty
	}
	return p
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
