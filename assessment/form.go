package assessment

import (
	"encoding/json"
	"fmt"
	"time"
)

// FieldKind enumerates the value types a dynamic form field may carry.
type FieldKind string

const (
	FieldText        FieldKind = "text"
	FieldNumber      FieldKind = "number"
	FieldBoolean     FieldKind = "boolean"
	FieldSelect      FieldKind = "select"
	FieldMultiSelect FieldKind = "multi_select"
	FieldRange       FieldKind = "range"
	FieldMeasurement FieldKind = "measurement"
)

// RuleKind enumerates the validation rules a specialist can attach to a field.
type RuleKind string

const (
	RuleRequired RuleKind = "required"
	RuleMin      RuleKind = "min"
	RuleMax      RuleKind = "max"
	RulePattern  RuleKind = "pattern"
	RuleCustom   RuleKind = "custom"
)

// ValidationRule is one specialist-supplied validation constraint on a field.
type ValidationRule struct {
	Kind    RuleKind `json:"kind"`
	Value   string   `json:"value,omitempty"`
	Message string   `json:"message,omitempty"`
}

// DynamicFormField describes one input the operator must provide next. Field
// lists are replaced wholesale on every step transition, never merged.
type DynamicFormField struct {
	ID       string           `json:"id"`
	Label    string           `json:"label"`
	Kind     FieldKind        `json:"kind"`
	Required bool             `json:"required"`
	Options  []string         `json:"options,omitempty"`
	Rules    []ValidationRule `json:"rules,omitempty"`
	HelpText string           `json:"help_text,omitempty"`
}

// CloneFields deep-copies a field list.
func CloneFields(fields []DynamicFormField) []DynamicFormField {
	if len(fields) == 0 {
		return nil
	}
	cloned := make([]DynamicFormField, len(fields))
	for i, f := range fields {
		cloned[i] = f
		if f.Options != nil {
			cloned[i].Options = append([]string(nil), f.Options...)
		}
		if f.Rules != nil {
			cloned[i].Rules = append([]ValidationRule(nil), f.Rules...)
		}
	}
	return cloned
}

// MeasurementKind identifies which tree dimension a raw capture measured.
type MeasurementKind string

const (
	MeasureHeight      MeasurementKind = "height"
	MeasureDBH         MeasurementKind = "dbh"
	MeasureCrownRadius MeasurementKind = "crown_radius"
)

// FieldID returns the form-data field the measurement kind is stored under.
func (k MeasurementKind) FieldID() string {
	return string(k)
}

// MeasurementResult is one raw measurement produced by the capture subsystem.
type MeasurementResult struct {
	Kind       MeasurementKind `json:"kind"`
	Value      float64         `json:"value"`
	Confidence float64         `json:"confidence"`
	Timestamp  time.Time       `json:"timestamp"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Seq        int             `json:"seq"`
}

// MeasurementRecord holds an applied measurement value together with the raw
// capture that produced it, preserving provenance and confidence.
type MeasurementRecord struct {
	Value   float64           `json:"value"`
	Capture MeasurementResult `json:"capture"`
}

// FormData accumulates all operator-entered and specialist-derived values for
// one session. It grows monotonically; only the completion pipeline sets the
// generated report.
type FormData struct {
	Values       map[string]any                        `json:"values"`
	Measurements map[MeasurementKind]MeasurementRecord `json:"measurements"`
	Report       string                                `json:"report,omitempty"`
}

// NewFormData returns an empty form data record.
func NewFormData() *FormData {
	return &FormData{
		Values:       make(map[string]any),
		Measurements: make(map[MeasurementKind]MeasurementRecord),
	}
}

// SetValue records an operator answer for a dynamic form field. A field that
// was populated by a validated measurement keeps its numeric value: a later
// answer of a different type is rejected instead of silently overwriting it.
func (f *FormData) SetValue(id string, value any) error {
	if id == "" {
		return fmt.Errorf("field id cannot be empty")
	}
	if rec, ok := f.Measurements[MeasurementKind(id)]; ok {
		if _, isNumber := asFloat(value); !isNumber {
			return fmt.Errorf("field %q holds measurement %v and cannot be replaced by a non-numeric answer", id, rec.Value)
		}
	}
	if f.Values == nil {
		f.Values = make(map[string]any)
	}
	f.Values[id] = value
	return nil
}

// Value returns the recorded answer for a field id.
func (f *FormData) Value(id string) (any, bool) {
	v, ok := f.Values[id]
	return v, ok
}

// ApplyMeasurement applies a raw measurement unconditionally under the field
// matching its kind. Acceptance into the record never depends on validation.
func (f *FormData) ApplyMeasurement(res MeasurementResult) {
	if f.Measurements == nil {
		f.Measurements = make(map[MeasurementKind]MeasurementRecord)
	}
	if f.Values == nil {
		f.Values = make(map[string]any)
	}
	f.Measurements[res.Kind] = MeasurementRecord{Value: res.Value, Capture: res}
	f.Values[res.Kind.FieldID()] = res.Value
}

// Measurement returns the applied record for a measurement kind.
func (f *FormData) Measurement(kind MeasurementKind) (MeasurementRecord, bool) {
	rec, ok := f.Measurements[kind]
	return rec, ok
}

// Clone deep-copies the form data.
func (f *FormData) Clone() *FormData {
	if f == nil {
		return NewFormData()
	}
	cloned := NewFormData()
	for k, v := range f.Values {
		cloned.Values[k] = v
	}
	for k, rec := range f.Measurements {
		if rec.Capture.Metadata != nil {
			meta := make(map[string]any, len(rec.Capture.Metadata))
			for mk, mv := range rec.Capture.Metadata {
				meta[mk] = mv
			}
			rec.Capture.Metadata = meta
		}
		cloned.Measurements[k] = rec
	}
	cloned.Report = f.Report
	return cloned
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
