package assessment

import "time"

// RecommendationKind classifies an advisory message by the concern it
// originates from.
type RecommendationKind string

const (
	RecommendSafety      RecommendationKind = "safety"
	RecommendCalculation RecommendationKind = "calculation"
	RecommendImprovement RecommendationKind = "improvement"
	RecommendError       RecommendationKind = "error"
	RecommendReport      RecommendationKind = "report"
)

// Priority ranks a recommendation for the operator.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns a numeric weight for priority ordering; higher sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Recommendation is an advisory, timestamped, prioritized message surfaced to
// the operator. Records are never mutated after creation; the session list
// only grows, except on explicit reset. Seq carries the measurement sequence
// number for recommendations produced by measurement validation, so repeated
// captures of the same kind stay distinguishable.
type Recommendation struct {
	Kind      RecommendationKind `json:"kind"`
	Message   string             `json:"message"`
	Priority  Priority           `json:"priority"`
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
	Seq       int                `json:"seq,omitempty"`
}

// Decision is a write-once audit record appended whenever the sequencer
// accepts a next-step response. It never influences control flow.
type Decision struct {
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Label      string    `json:"label"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Confidence float64   `json:"confidence"`
}
