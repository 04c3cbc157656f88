package assessment

// Step is one stage of the field assessment workflow.
type Step string

const (
	StepInitialization   Step = "initialization"
	StepBasicMeasurement Step = "basic_measurement"
	StepRiskAssessment   Step = "risk_assessment"
	StepTreeScore        Step = "treescore_calculation"
	StepCompletion       Step = "completion"
)

// Steps lists every workflow step in its fixed total order. Forward
// navigation follows the sequencing specialist's choice; backward
// navigation always walks this list.
var Steps = []Step{
	StepInitialization,
	StepBasicMeasurement,
	StepRiskAssessment,
	StepTreeScore,
	StepCompletion,
}

// Index returns the position of the step in the fixed order, or -1 for an
// unknown step.
func (s Step) Index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// Valid reports whether the step is one of the known workflow steps.
func (s Step) Valid() bool {
	return s.Index() >= 0
}

// Progress maps the step to a completion fraction in [0, 1]. It is a pure
// function of the step's index; progress is never stored separately.
func (s Step) Progress() float64 {
	idx := s.Index()
	if idx < 0 {
		return 0
	}
	return float64(idx) / float64(len(Steps)-1)
}

// Prev returns the previous step in the fixed order. The first step is its
// own predecessor.
func (s Step) Prev() Step {
	idx := s.Index()
	if idx <= 0 {
		return Steps[0]
	}
	return Steps[idx-1]
}

// Terminal reports whether the step ends the workflow.
func (s Step) Terminal() bool {
	return s == StepCompletion
}
