package sdtm

// Severity classifies a validation issue. The severity is fixed by the
// emitting rule, never derived from the data.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityWarning  Severity = "warning"
)

// Rank orders severities from most to least severe (lower is worse).
// Unknown severities rank last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	case SeverityMinor:
		return 2
	case SeverityWarning:
		return 3
	}
	return 4
}

// Layer identifies the validation layer that produced an issue. Each
// layer is independently scorable.
type Layer string

const (
	LayerStructural  Layer = "structural"
	LayerTerminology Layer = "terminology"
	LayerDateFormat  Layer = "date_format"
	LayerBusiness    Layer = "business"
	LayerCrossDomain Layer = "cross_domain"
)

// AllLayers returns the layers in reporting order.
func AllLayers() []Layer {
	return []Layer{LayerStructural, LayerTerminology, LayerDateFormat, LayerBusiness, LayerCrossDomain}
}

// Counting selects how an issue contributes to the compliance score:
// once per distinct issue, or once per affected record. The emitting
// rule declares the mode.
type Counting string

const (
	CountPerIssue  Counting = "per_issue"
	CountPerRecord Counting = "per_record"
)

// Issue is one typed validation finding, scoped to a single validation
// run. Issues are immutable values, returned and never thrown.
type Issue struct {
	RuleID   string   `json:"rule_id"`
	Layer    Layer    `json:"layer"`
	Severity Severity `json:"severity"`
	Domain   string   `json:"domain"`
	Variable string   `json:"variable,omitempty"`
	Message  string   `json:"message"`

	// Count is the number of affected records.
	Count int `json:"count"`

	// Counting is the score-contribution mode declared by the rule.
	Counting Counting `json:"counting"`
}
