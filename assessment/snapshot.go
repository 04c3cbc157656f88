package assessment

import "time"

// Snapshot is the read-only view of a session produced after every
// transition. Presentation layers poll or subscribe to snapshots instead of
// binding to mutable session fields; everything inside is a deep copy.
type Snapshot struct {
	SessionID        string             `json:"session_id"`
	Step             Step               `json:"step"`
	Progress         float64            `json:"progress"`
	Instructions     string             `json:"instructions,omitempty"`
	Fields           []DynamicFormField `json:"fields,omitempty"`
	FormData         *FormData          `json:"form_data"`
	ValidationErrors []string           `json:"validation_errors,omitempty"`
	Recommendations  []Recommendation   `json:"recommendations,omitempty"`
	Decisions        []Decision         `json:"decisions,omitempty"`
	Complete         bool               `json:"complete"`
	TakenAt          time.Time          `json:"taken_at"`
}
