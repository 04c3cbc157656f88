package assessment

import "time"

// Context is the immutable-per-step snapshot handed to decision services.
// The sequencer owns it exclusively and replaces it wholesale whenever a
// specialist response changes the contextual classification.
type Context struct {
	Step          Step           `json:"step"`
	Answers       map[string]any `json:"answers,omitempty"`
	CustomerKind  string         `json:"customer_kind,omitempty"`
	ServiceType   string         `json:"service_type,omitempty"`
	Deadline      *time.Time     `json:"deadline,omitempty"`
	CaptureActive bool           `json:"capture_active,omitempty"`
}

// WithStep returns a copy of the context positioned at the given step with a
// fresh copy of the answers. The receiver is never mutated.
func (c Context) WithStep(step Step, answers map[string]any) Context {
	next := c
	next.Step = step
	if answers != nil {
		next.Answers = make(map[string]any, len(answers))
		for k, v := range answers {
			next.Answers[k] = v
		}
	}
	return next
}
