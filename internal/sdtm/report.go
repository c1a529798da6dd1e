package sdtm

// LayerScore is the sub-score for one validation layer, 0–100.
type LayerScore struct {
	Layer      Layer   `json:"layer"`
	Score      float64 `json:"score"`
	IssueCount int     `json:"issue_count"`
}

// ComplianceReport is the scored outcome of one validation run.
// It is recomputed from scratch every run; nothing carries over.
type ComplianceReport struct {
	RunID           string       `json:"run_id,omitempty"`
	Domain          string       `json:"domain"`
	Score           float64      `json:"score"`
	SubmissionReady bool         `json:"submission_ready"`
	LayerScores     []LayerScore `json:"layer_scores"`
	Issues          []Issue      `json:"issues"`
}

// CountBySeverity returns the number of distinct issues at a severity.
func (r *ComplianceReport) CountBySeverity(s Severity) int {
	n := 0
	for _, iss := range r.Issues {
		if iss.Severity == s {
			n++
		}
	}
	return n
}

// LayerScoreFor returns the sub-score for a layer, defaulting to a
// clean 100 when the layer produced nothing.
func (r *ComplianceReport) LayerScoreFor(layer Layer) LayerScore {
	for _, ls := range r.LayerScores {
		if ls.Layer == layer {
			return ls
		}
	}
	return LayerScore{Layer: layer, Score: 100}
}

// CorrectionState tracks one domain's bounded self-correction loop.
//
// The state is an immutable value threaded through each iteration by
// the controller; Advance returns a new state rather than mutating.
// Iteration never exceeds MaxIterations.
type CorrectionState struct {
	Iteration       int      `json:"iteration"`
	MaxIterations   int      `json:"max_iterations"`
	NeedsCorrection bool     `json:"needs_correction"`
	Feedback        []string `json:"feedback,omitempty"`
}

// DefaultMaxIterations bounds the correction loop when the caller does
// not say otherwise.
const DefaultMaxIterations = 3

// NewCorrectionState returns the initial loop state.
func NewCorrectionState(maxIterations int) CorrectionState {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return CorrectionState{MaxIterations: maxIterations}
}

// Exhausted reports whether the iteration budget is spent.
func (s CorrectionState) Exhausted() bool {
	return s.Iteration >= s.MaxIterations
}

// Advance returns the state for the next iteration, carrying the
// feedback produced by the current one.
func (s CorrectionState) Advance(feedback []string) CorrectionState {
	next := s
	next.Iteration++
	next.NeedsCorrection = true
	next.Feedback = feedback
	return next
}

// Settled returns the terminal state once the loop stops, clearing the
// correction flag when the output is ready.
func (s CorrectionState) Settled(ready bool) CorrectionState {
	next := s
	next.NeedsCorrection = !ready
	return next
}
