// Package specialist defines the capability boundary between the workflow
// orchestrator and the external decision services. Each specialist concern is
// a small interface; concrete clients live under contrib/specialist with one
// client type per transport.
package specialist

import (
	"context"
	"fmt"

	"github.com/sweetpotato0/arborflow/assessment"
)

// Specialist identifiers used for recommendation and decision attribution.
const (
	SourceSequencing  = "assessment_sequencing"
	SourceSafety      = "safety_analysis"
	SourceTreeScore   = "treescore_calculation"
	SourceMeasurement = "measurement_guidance"
	SourceOperations  = "operations_reporting"
)

// RiskLevel is the safety specialist's overall risk classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskExtreme  RiskLevel = "extreme"
)

// Advice is one prioritized suggestion inside a specialist response. The
// priority is supplied by the specialist, never recomputed locally.
type Advice struct {
	Message  string              `json:"message"`
	Priority assessment.Priority `json:"priority"`
}

// NextStepRequest carries the full current assessment to the sequencing
// specialist for a forward transition.
type NextStepRequest struct {
	Context  assessment.Context   `json:"context"`
	FormData *assessment.FormData `json:"form_data"`
}

// NextStepResponse is the sequencing specialist's forward-transition answer.
type NextStepResponse struct {
	Step         assessment.Step               `json:"step"`
	Fields       []assessment.DynamicFormField `json:"fields"`
	Instructions string                        `json:"instructions"`
	Reasoning    string                        `json:"reasoning,omitempty"`
	Confidence   float64                       `json:"confidence"`
}

// CompletionCheckRequest asks whether the current step (or the whole
// assessment) has everything it needs.
type CompletionCheckRequest struct {
	Context  assessment.Context   `json:"context"`
	FormData *assessment.FormData `json:"form_data"`
}

// CompletionCheckResponse reports missing data and suggested next actions.
// An incomplete result is a deliberate outcome, not a failure.
type CompletionCheckResponse struct {
	Complete    bool     `json:"complete"`
	MissingData []string `json:"missing_data,omitempty"`
	NextActions []string `json:"next_actions,omitempty"`
}

// FormRequest asks for the dynamic field list of the step in the context.
type FormRequest struct {
	Context assessment.Context `json:"context"`
}

// BackRequest asks permission to navigate backward from the step in the
// context.
type BackRequest struct {
	Context assessment.Context `json:"context"`
}

// SafetyRequest is the location/hazard snapshot sent when the session enters
// risk assessment.
type SafetyRequest struct {
	Context  assessment.Context   `json:"context"`
	Location string               `json:"location,omitempty"`
	Hazards  []string             `json:"hazards,omitempty"`
	FormData *assessment.FormData `json:"form_data"`
}

// SafetyResponse carries required protocols and prioritized safety advice.
// AFISS scoring happens entirely inside the specialist; only its outputs
// travel here.
type SafetyResponse struct {
	RiskLevel       RiskLevel `json:"risk_level"`
	Protocols       []string  `json:"protocols,omitempty"`
	Recommendations []Advice  `json:"recommendations,omitempty"`
}

// ScoreRequest carries the tree measurements for TreeScore computation.
// ServiceType is one of removal, stump_grinding or trimming.
type ScoreRequest struct {
	HeightFt      float64 `json:"height_ft"`
	CrownRadiusFt float64 `json:"crown_radius_ft"`
	DBHIn         float64 `json:"dbh_in"`
	ServiceType   string  `json:"service_type"`
}

// ScoreResponse is the scoring specialist's opaque numeric output plus advice.
type ScoreResponse struct {
	BasePoints         float64  `json:"base_points"`
	EstimatedHours     float64  `json:"estimated_hours"`
	CrewRecommendation string   `json:"crew_recommendation,omitempty"`
	Recommendations    []Advice `json:"recommendations,omitempty"`
}

// GuidanceRequest asks for capture instructions for one measurement kind.
type GuidanceRequest struct {
	Kind    assessment.MeasurementKind `json:"kind"`
	Context assessment.Context         `json:"context"`
}

// GuidanceResponse carries operator-facing capture instructions.
type GuidanceResponse struct {
	Instructions string `json:"instructions"`
}

// MeasurementValidationRequest submits one raw capture for advisory
// validation.
type MeasurementValidationRequest struct {
	Measurement assessment.MeasurementResult `json:"measurement"`
}

// MeasurementValidationResponse reports whether the capture looks usable and
// how accurate the specialist estimates it to be.
type MeasurementValidationResponse struct {
	Valid    bool    `json:"valid"`
	Accuracy float64 `json:"accuracy"`
	Comment  string  `json:"comment,omitempty"`
}

// ReportRequest is the full cross-step payload for report generation.
type ReportRequest struct {
	Context  assessment.Context   `json:"context"`
	FormData *assessment.FormData `json:"form_data"`
	Safety   *SafetyResponse      `json:"safety,omitempty"`
	Score    *ScoreResponse       `json:"score,omitempty"`
}

// ReportResponse carries the generated report body and report-quality advice.
type ReportResponse struct {
	Report          string   `json:"report"`
	Recommendations []Advice `json:"recommendations,omitempty"`
}

// Sequencer is the assessment-sequencing specialist. ApproveBack keeps the
// backward-navigation policy behind the same boundary as every other
// specialist call so a real policy service can replace the current stub
// without sequencer changes.
type Sequencer interface {
	NextStep(ctx context.Context, req *NextStepRequest) (*NextStepResponse, error)
	ValidateCompletion(ctx context.Context, req *CompletionCheckRequest) (*CompletionCheckResponse, error)
	GenerateForm(ctx context.Context, req *FormRequest) ([]assessment.DynamicFormField, error)
	ApproveBack(ctx context.Context, req *BackRequest) (bool, error)
}

// SafetyAnalyst assesses site risks when the session enters risk assessment.
type SafetyAnalyst interface {
	AssessRisks(ctx context.Context, req *SafetyRequest) (*SafetyResponse, error)
}

// Scorer computes the TreeScore when the session enters score calculation.
type Scorer interface {
	CalculateTreeScore(ctx context.Context, req *ScoreRequest) (*ScoreResponse, error)
}

// MeasurementAdvisor guides and validates raw measurement captures.
type MeasurementAdvisor interface {
	Guidance(ctx context.Context, req *GuidanceRequest) (*GuidanceResponse, error)
	ValidateMeasurement(ctx context.Context, req *MeasurementValidationRequest) (*MeasurementValidationResponse, error)
}

// Reporter generates the final assessment report.
type Reporter interface {
	GenerateReport(ctx context.Context, req *ReportRequest) (*ReportResponse, error)
}

// Set bundles the five specialists a session depends on.
type Set struct {
	Sequencer   Sequencer
	Safety      SafetyAnalyst
	Scorer      Scorer
	Measurement MeasurementAdvisor
	Reporter    Reporter
}

// Validate reports the first missing specialist, if any.
func (s Set) Validate() error {
	switch {
	case s.Sequencer == nil:
		return fmt.Errorf("specialist set missing sequencer")
	case s.Safety == nil:
		return fmt.Errorf("specialist set missing safety analyst")
	case s.Scorer == nil:
		return fmt.Errorf("specialist set missing scorer")
	case s.Measurement == nil:
		return fmt.Errorf("specialist set missing measurement advisor")
	case s.Reporter == nil:
		return fmt.Errorf("specialist set missing reporter")
	}
	return nil
}
