// Package session drives one field assessment from start to completion. The
// sequencer never decides the next step locally: every forward transition is
// a round trip to the sequencing specialist, and step entry fires advisory
// side calls whose results flow back through the recommendation aggregator.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweetpotato0/arborflow/assessment"
	"github.com/sweetpotato0/arborflow/config"
	arberrors "github.com/sweetpotato0/arborflow/errors"
	"github.com/sweetpotato0/arborflow/pkg/logging"
	"github.com/sweetpotato0/arborflow/recommend"
	"github.com/sweetpotato0/arborflow/specialist"
	"github.com/sweetpotato0/arborflow/store"
)

// Session owns the state of one assessment. All mutation that follows a
// specialist response is applied as a single transition under the session
// lock, so a concurrent snapshot never observes a half-applied response.
type Session struct {
	id          string
	specialists specialist.Set
	reports     store.ReportStore
	logger      *slog.Logger
	cfg         *config.Session

	mu               sync.Mutex
	closed           bool
	navInFlight      bool
	step             assessment.Step
	snap             assessment.Context
	form             *assessment.FormData
	fields           []assessment.DynamicFormField
	instructions     string
	validationErrors []string
	decisions        []assessment.Decision
	complete         bool
	captureActive    bool
	measureSeq       int
	lastSafety       *specialist.SafetyResponse
	lastScore        *specialist.ScoreResponse

	recs *recommend.Aggregator
	side sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session tunables.
func WithConfig(cfg *config.Session) Option {
	return func(s *Session) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithReportStore sets the store completed snapshots are persisted to.
func WithReportStore(rs store.ReportStore) Option {
	return func(s *Session) {
		s.reports = rs
	}
}

// WithLogger overrides the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a session bound to the given specialist set. The session is
// idle until Start is called.
func New(id string, set specialist.Set, opts ...Option) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id cannot be empty: %w", arberrors.ErrInvalidInput)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		id:          id,
		specialists: set,
		cfg:         config.DefaultSession(),
		step:        assessment.StepInitialization,
		form:        assessment.NewFormData(),
		recs:        recommend.NewAggregator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.WithSession("session", id)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Start resets all session state and performs the first forward transition.
// A specialist failure during the transition is absorbed into the
// recommendation list; Start fails only when the session is closed or
// another navigation request is in flight.
func (s *Session) Start(ctx context.Context) error {
	if err := s.beginNav(); err != nil {
		return err
	}
	defer s.endNav()

	s.mu.Lock()
	s.resetLocked()
	req := s.nextStepRequestLocked()
	s.mu.Unlock()

	s.logger.Info("session started")
	s.advance(ctx, req)
	return nil
}

// Proceed validates the current step with the sequencing specialist and, if
// the step is complete, performs a forward transition. An incomplete step is
// a deliberate outcome: the transition is refused, validation errors are
// replaced with the specialist's missing-data list and the session stays in
// place. No retry is attempted.
func (s *Session) Proceed(ctx context.Context) error {
	if err := s.beginNav(); err != nil {
		return err
	}
	defer s.endNav()

	s.mu.Lock()
	check := &specialist.CompletionCheckRequest{
		Context:  s.contextLocked(),
		FormData: s.form.Clone(),
	}
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	resp, err := s.specialists.Sequencer.ValidateCompletion(callCtx, check)
	cancel()
	if err != nil {
		s.reportFailure(specialist.SourceSequencing, "step validation failed", err)
		return nil
	}

	if !resp.Complete {
		s.mu.Lock()
		s.validationErrors = append([]string(nil), resp.MissingData...)
		s.mu.Unlock()
		for _, action := range resp.NextActions {
			s.appendRecommendation(assessment.Recommendation{
				Kind:     assessment.RecommendImprovement,
				Message:  action,
				Priority: assessment.PriorityMedium,
				Source:   specialist.SourceSequencing,
			})
		}
		s.logger.Info("step incomplete", "missing", resp.MissingData)
		return nil
	}

	s.mu.Lock()
	req := s.nextStepRequestLocked()
	s.mu.Unlock()
	s.advance(ctx, req)
	return nil
}

// GoBack requests backward-navigation permission and, if granted, steps back
// one position in the fixed linear order, then re-requests the form for the
// step it lands on. Calling it at the first step changes nothing.
func (s *Session) GoBack(ctx context.Context) error {
	if err := s.beginNav(); err != nil {
		return err
	}
	defer s.endNav()

	s.mu.Lock()
	if s.step == assessment.StepInitialization {
		s.mu.Unlock()
		return nil
	}
	back := &specialist.BackRequest{Context: s.contextLocked()}
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	granted, err := s.specialists.Sequencer.ApproveBack(callCtx, back)
	cancel()
	if err != nil {
		s.reportFailure(specialist.SourceSequencing, "backward navigation check failed", err)
		return nil
	}
	if !granted {
		s.logger.Info("backward navigation denied", "step", s.Step())
		return nil
	}

	s.mu.Lock()
	s.step = s.step.Prev()
	s.complete = false
	s.validationErrors = nil
	s.snap = s.contextLocked()
	form := &specialist.FormRequest{Context: s.snap}
	s.mu.Unlock()

	callCtx, cancel = s.callContext(ctx)
	fields, err := s.specialists.Sequencer.GenerateForm(callCtx, form)
	cancel()
	if err != nil {
		// The step has already moved back; the abandoned step's form must
		// not be shown against it.
		s.mu.Lock()
		s.fields = nil
		s.instructions = ""
		s.mu.Unlock()
		s.reportFailure(specialist.SourceSequencing, "form generation failed", err)
		return nil
	}

	s.mu.Lock()
	s.fields = assessment.CloneFields(fields)
	s.mu.Unlock()
	return nil
}

// SetValue records an operator answer for the current dynamic form.
func (s *Session) SetValue(id string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return arberrors.ErrSessionClosed
	}
	return s.form.SetValue(id, value)
}

// SetCaptureActive marks whether a live measurement capture session is
// running. Entering the measurement step while a capture is active triggers
// a guidance request.
func (s *Session) SetCaptureActive(active bool) {
	s.mu.Lock()
	s.captureActive = active
	s.mu.Unlock()
}

// Step returns the current workflow step.
func (s *Session) Step() assessment.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Snapshot produces the read-only state view consumed by presentation
// layers. Every contained slice and map is a copy.
func (s *Session) Snapshot() *assessment.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &assessment.Snapshot{
		SessionID:        s.id,
		Step:             s.step,
		Progress:         s.step.Progress(),
		Instructions:     s.instructions,
		Fields:           assessment.CloneFields(s.fields),
		FormData:         s.form.Clone(),
		ValidationErrors: append([]string(nil), s.validationErrors...),
		Recommendations:  s.recs.List(),
		Decisions:        append([]assessment.Decision(nil), s.decisions...),
		Complete:         s.complete,
		TakenAt:          time.Now(),
	}
}

// Recommendations returns the session recommendation list in arrival order.
func (s *Session) Recommendations() []assessment.Recommendation {
	return s.recs.List()
}

// IsComplete reports whether the completion pipeline has succeeded.
func (s *Session) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// Close shuts the session down. In-flight advisory calls are not cancelled,
// but their results are dropped once the session is closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return arberrors.ErrSessionClosed
	}
	s.closed = true
	return nil
}

// Flush waits for in-flight advisory side calls to settle. Mainly useful for
// tests and orderly shutdown; navigation never waits on it.
func (s *Session) Flush() {
	s.side.Wait()
}

// advance performs one forward transition: request the next step, apply the
// response atomically, record the decision, then fire the step's advisory
// side call.
func (s *Session) advance(ctx context.Context, req *specialist.NextStepRequest) {
	callCtx, cancel := s.callContext(ctx)
	resp, err := s.specialists.Sequencer.NextStep(callCtx, req)
	cancel()
	if err != nil {
		s.reportFailure(specialist.SourceSequencing, "next step request failed", err)
		return
	}
	if !resp.Step.Valid() {
		s.reportFailure(specialist.SourceSequencing, "next step request failed",
			fmt.Errorf("unknown step %q", resp.Step))
		return
	}
	// The terminal step is reached through Finalize only; a sequencing
	// response naming it is a protocol violation, not a transition.
	if resp.Step == assessment.StepCompletion {
		s.reportFailure(specialist.SourceSequencing, "next step request failed",
			fmt.Errorf("step %q is not reachable by forward navigation", resp.Step))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.step = resp.Step
	s.fields = assessment.CloneFields(resp.Fields)
	s.instructions = resp.Instructions
	s.validationErrors = nil
	s.snap = s.contextLocked()
	s.decisions = append(s.decisions, assessment.Decision{
		Timestamp:  time.Now(),
		Source:     specialist.SourceSequencing,
		Label:      "advance to " + string(resp.Step),
		Reasoning:  resp.Reasoning,
		Confidence: resp.Confidence,
	})
	entered := resp.Step
	capture := s.captureActive
	s.mu.Unlock()

	s.logger.Info("step entered", "step", entered, "confidence", resp.Confidence)
	s.fireStepEffects(entered, capture)
}

// fireStepEffects launches the single advisory call appropriate to the newly
// entered step. The call runs detached from navigation: it may complete
// concurrently with the next navigation request and only appends to the
// aggregator.
func (s *Session) fireStepEffects(entered assessment.Step, captureActive bool) {
	switch entered {
	case assessment.StepRiskAssessment:
		s.spawn(s.runSafetyAnalysis)
	case assessment.StepTreeScore:
		s.spawn(s.runScoreCalculation)
	case assessment.StepBasicMeasurement:
		if captureActive {
			s.spawn(s.runMeasurementGuidance)
		}
	}
}

func (s *Session) spawn(fn func()) {
	s.side.Add(1)
	go func() {
		defer s.side.Done()
		fn()
	}()
}

func (s *Session) runSafetyAnalysis() {
	s.mu.Lock()
	req := &specialist.SafetyRequest{
		Context:  s.contextLocked(),
		Location: stringValue(s.form, "property_address"),
		Hazards:  stringsValue(s.form, "risk_factors"),
		FormData: s.form.Clone(),
	}
	s.mu.Unlock()

	callCtx, cancel := s.callContext(context.Background())
	defer cancel()
	resp, err := s.specialists.Safety.AssessRisks(callCtx, req)
	if err != nil {
		s.reportFailure(specialist.SourceSafety, "safety analysis failed", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.lastSafety = resp
	s.mu.Unlock()

	for _, protocol := range resp.Protocols {
		s.appendRecommendation(assessment.Recommendation{
			Kind:     assessment.RecommendSafety,
			Message:  "required protocol: " + protocol,
			Priority: priorityForRisk(resp.RiskLevel),
			Source:   specialist.SourceSafety,
		})
	}
	for _, advice := range resp.Recommendations {
		s.appendRecommendation(assessment.Recommendation{
			Kind:     assessment.RecommendSafety,
			Message:  advice.Message,
			Priority: advice.Priority,
			Source:   specialist.SourceSafety,
		})
	}
}

func (s *Session) runScoreCalculation() {
	s.mu.Lock()
	req := &specialist.ScoreRequest{
		ServiceType: stringValue(s.form, "service_type"),
	}
	if rec, ok := s.form.Measurement(assessment.MeasureHeight); ok {
		req.HeightFt = rec.Value
	}
	if rec, ok := s.form.Measurement(assessment.MeasureCrownRadius); ok {
		req.CrownRadiusFt = rec.Value
	}
	if rec, ok := s.form.Measurement(assessment.MeasureDBH); ok {
		req.DBHIn = rec.Value
	}
	s.mu.Unlock()

	callCtx, cancel := s.callContext(context.Background())
	defer cancel()
	resp, err := s.specialists.Scorer.CalculateTreeScore(callCtx, req)
	if err != nil {
		s.reportFailure(specialist.SourceTreeScore, "score calculation failed", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.lastScore = resp
	if err := s.form.SetValue("treescore_points", resp.BasePoints); err != nil {
		s.logger.Warn("score result not recorded", "error", err)
	}
	s.mu.Unlock()

	s.appendRecommendation(assessment.Recommendation{
		Kind:     assessment.RecommendCalculation,
		Message:  fmt.Sprintf("TreeScore %.0f points, estimated %.1f crew hours", resp.BasePoints, resp.EstimatedHours),
		Priority: assessment.PriorityLow,
		Source:   specialist.SourceTreeScore,
	})
	for _, advice := range resp.Recommendations {
		s.appendRecommendation(assessment.Recommendation{
			Kind:     assessment.RecommendCalculation,
			Message:  advice.Message,
			Priority: advice.Priority,
			Source:   specialist.SourceTreeScore,
		})
	}
}

func (s *Session) runMeasurementGuidance() {
	s.mu.Lock()
	req := &specialist.GuidanceRequest{
		Kind:    nextMeasurementKind(s.form),
		Context: s.contextLocked(),
	}
	s.mu.Unlock()

	callCtx, cancel := s.callContext(context.Background())
	defer cancel()
	resp, err := s.specialists.Measurement.Guidance(callCtx, req)
	if err != nil {
		s.reportFailure(specialist.SourceMeasurement, "measurement guidance failed", err)
		return
	}
	if resp.Instructions == "" {
		return
	}
	s.appendRecommendation(assessment.Recommendation{
		Kind:     assessment.RecommendImprovement,
		Message:  resp.Instructions,
		Priority: assessment.PriorityLow,
		Source:   specialist.SourceMeasurement,
	})
}

// reportFailure converts a specialist error into one high-priority error
// recommendation plus an entry in the validation error list. It never
// propagates and never retries.
func (s *Session) reportFailure(source, what string, err error) {
	message := fmt.Sprintf("%s: %v", what, err)
	s.logger.Warn("specialist call failed", "source", source, "error", err)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.validationErrors = append(s.validationErrors, message)
	s.mu.Unlock()

	s.recs.Error(source, message)
}

// appendRecommendation appends unless the session has been closed.
func (s *Session) appendRecommendation(rec assessment.Recommendation) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.recs.Append(rec)
}

func (s *Session) beginNav() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return arberrors.ErrSessionClosed
	}
	if s.navInFlight {
		return arberrors.ErrBusy
	}
	s.navInFlight = true
	return nil
}

func (s *Session) endNav() {
	s.mu.Lock()
	s.navInFlight = false
	s.mu.Unlock()
}

func (s *Session) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.cfg.CallTimeout)
}

func (s *Session) resetLocked() {
	s.step = assessment.StepInitialization
	s.snap = assessment.Context{Step: assessment.StepInitialization}
	s.form = assessment.NewFormData()
	s.fields = nil
	s.instructions = ""
	s.validationErrors = nil
	s.decisions = nil
	s.complete = false
	s.measureSeq = 0
	s.lastSafety = nil
	s.lastScore = nil
	s.recs.Reset()
}

// contextLocked rebuilds the immutable context snapshot from current state.
// Classification fields are re-derived from the answers, so a response that
// changed them is reflected in the replacement, never patched in place.
func (s *Session) contextLocked() assessment.Context {
	ctx := assessment.Context{
		Step:          s.step,
		CustomerKind:  stringValue(s.form, "customer_kind"),
		ServiceType:   stringValue(s.form, "service_type"),
		CaptureActive: s.captureActive,
	}
	return ctx.WithStep(s.step, s.form.Values)
}

func (s *Session) nextStepRequestLocked() *specialist.NextStepRequest {
	return &specialist.NextStepRequest{
		Context:  s.contextLocked(),
		FormData: s.form.Clone(),
	}
}

func priorityForRisk(level specialist.RiskLevel) assessment.Priority {
	switch level {
	case specialist.RiskExtreme:
		return assessment.PriorityCritical
	case specialist.RiskHigh:
		return assessment.PriorityHigh
	case specialist.RiskModerate:
		return assessment.PriorityMedium
	default:
		return assessment.PriorityLow
	}
}

// nextMeasurementKind picks the first dimension not captured yet so guidance
// matches what the operator is about to measure.
func nextMeasurementKind(form *assessment.FormData) assessment.MeasurementKind {
	for _, kind := range []assessment.MeasurementKind{
		assessment.MeasureHeight,
		assessment.MeasureDBH,
		assessment.MeasureCrownRadius,
	} {
		if _, ok := form.Measurement(kind); !ok {
			return kind
		}
	}
	return assessment.MeasureHeight
}

func stringValue(form *assessment.FormData, id string) string {
	if v, ok := form.Value(id); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

func stringsValue(form *assessment.FormData, id string) []string {
	v, ok := form.Value(id)
	if !ok {
		return nil
	}
	switch vals := v.(type) {
	case []string:
		return append([]string(nil), vals...)
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
