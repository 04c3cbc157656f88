package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sweetpotato0/arborflow/assessment"
	arberrors "github.com/sweetpotato0/arborflow/errors"
	"github.com/sweetpotato0/arborflow/specialist"
)

// fakeSpecialists implements every specialist interface with overridable
// behaviors. Unset behaviors fall back to a linear walk through the workflow
// with everything reported complete and low risk.
type fakeSpecialists struct {
	nextStep            func(ctx context.Context, req *specialist.NextStepRequest) (*specialist.NextStepResponse, error)
	validateCompletion  func(ctx context.Context, req *specialist.CompletionCheckRequest) (*specialist.CompletionCheckResponse, error)
	generateForm        func(ctx context.Context, req *specialist.FormRequest) ([]assessment.DynamicFormField, error)
	approveBack         func(ctx context.Context, req *specialist.BackRequest) (bool, error)
	assessRisks         func(ctx context.Context, req *specialist.SafetyRequest) (*specialist.SafetyResponse, error)
	calculateTreeScore  func(ctx context.Context, req *specialist.ScoreRequest) (*specialist.ScoreResponse, error)
	guidance            func(ctx context.Context, req *specialist.GuidanceRequest) (*specialist.GuidanceResponse, error)
	validateMeasurement func(ctx context.Context, req *specialist.MeasurementValidationRequest) (*specialist.MeasurementValidationResponse, error)
	generateReport      func(ctx context.Context, req *specialist.ReportRequest) (*specialist.ReportResponse, error)
}

func (f *fakeSpecialists) NextStep(ctx context.Context, req *specialist.NextStepRequest) (*specialist.NextStepResponse, error) {
	if f.nextStep != nil {
		return f.nextStep(ctx, req)
	}
	idx := req.Context.Step.Index()
	next := assessment.Steps[len(assessment.Steps)-1]
	if idx+1 < len(assessment.Steps) {
		next = assessment.Steps[idx+1]
	}
	return &specialist.NextStepResponse{Step: next, Confidence: 0.9}, nil
}

func (f *fakeSpecialists) ValidateCompletion(ctx context.Context, req *specialist.CompletionCheckRequest) (*specialist.CompletionCheckResponse, error) {
	if f.validateCompletion != nil {
		return f.validateCompletion(ctx, req)
	}
	return &specialist.CompletionCheckResponse{Complete: true}, nil
}

func (f *fakeSpecialists) GenerateForm(ctx context.Context, req *specialist.FormRequest) ([]assessment.DynamicFormField, error) {
	if f.generateForm != nil {
		return f.generateForm(ctx, req)
	}
	return nil, nil
}

func (f *fakeSpecialists) ApproveBack(ctx context.Context, req *specialist.BackRequest) (bool, error) {
	if f.approveBack != nil {
		return f.approveBack(ctx, req)
	}
	return true, nil
}

func (f *fakeSpecialists) AssessRisks(ctx context.Context, req *specialist.SafetyRequest) (*specialist.SafetyResponse, error) {
	if f.assessRisks != nil {
		return f.assessRisks(ctx, req)
	}
	return &specialist.SafetyResponse{RiskLevel: specialist.RiskLow}, nil
}

func (f *fakeSpecialists) CalculateTreeScore(ctx context.Context, req *specialist.ScoreRequest) (*specialist.ScoreResponse, error) {
	if f.calculateTreeScore != nil {
		return f.calculateTreeScore(ctx, req)
	}
	return &specialist.ScoreResponse{BasePoints: 100}, nil
}

func (f *fakeSpecialists) Guidance(ctx context.Context, req *specialist.GuidanceRequest) (*specialist.GuidanceResponse, error) {
	if f.guidance != nil {
		return f.guidance(ctx, req)
	}
	return &specialist.GuidanceResponse{}, nil
}

func (f *fakeSpecialists) ValidateMeasurement(ctx context.Context, req *specialist.MeasurementValidationRequest) (*specialist.MeasurementValidationResponse, error) {
	if f.validateMeasurement != nil {
		return f.validateMeasurement(ctx, req)
	}
	return &specialist.MeasurementValidationResponse{Valid: true, Accuracy: 0.95}, nil
}

func (f *fakeSpecialists) GenerateReport(ctx context.Context, req *specialist.ReportRequest) (*specialist.ReportResponse, error) {
	if f.generateReport != nil {
		return f.generateReport(ctx, req)
	}
	return &specialist.ReportResponse{Report: "done"}, nil
}

func (f *fakeSpecialists) set() specialist.Set {
	return specialist.Set{
		Sequencer:   f,
		Safety:      f,
		Scorer:      f,
		Measurement: f,
		Reporter:    f,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, fake *fakeSpecialists, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	sess, err := New("test-session", fake.set(), opts...)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return sess
}

func findRec(recs []assessment.Recommendation, kind assessment.RecommendationKind) (assessment.Recommendation, bool) {
	for _, rec := range recs {
		if rec.Kind == kind {
			return rec, true
		}
	}
	return assessment.Recommendation{}, false
}

func TestNewSessionValidation(t *testing.T) {
	fake := &fakeSpecialists{}

	if _, err := New("", fake.set()); err == nil {
		t.Errorf("Expected error for empty session id")
	}

	incomplete := fake.set()
	incomplete.Reporter = nil
	if _, err := New("sess1", incomplete); err == nil {
		t.Errorf("Expected error for missing reporter")
	}
}

func TestSessionStart(t *testing.T) {
	fake := &fakeSpecialists{}
	sess := newTestSession(t, fake)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	if sess.Step() != assessment.StepBasicMeasurement {
		t.Errorf("Expected step %s after start, got %s", assessment.StepBasicMeasurement, sess.Step())
	}

	snap := sess.Snapshot()
	if snap.Progress != 0.25 {
		t.Errorf("Expected progress 0.25, got %v", snap.Progress)
	}
	if len(snap.Decisions) != 1 {
		t.Errorf("Expected 1 decision, got %d", len(snap.Decisions))
	}
}

func TestSessionStartResets(t *testing.T) {
	fake := &fakeSpecialists{}
	sess := newTestSession(t, fake)
	ctx := context.Background()

	sess.Start(ctx)
	sess.SetValue("customer_kind", "residential")
	sess.Proceed(ctx)
	sess.Flush()

	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Failed to restart session: %v", err)
	}
	sess.Flush()

	snap := sess.Snapshot()
	if sess.Step() != assessment.StepBasicMeasurement {
		t.Errorf("Expected restart to land on %s, got %s", assessment.StepBasicMeasurement, sess.Step())
	}
	if _, ok := snap.FormData.Value("customer_kind"); ok {
		t.Errorf("Expected form data cleared on restart")
	}
	if len(snap.Decisions) != 1 {
		t.Errorf("Expected decision log reset, got %d entries", len(snap.Decisions))
	}
	if sess.IsComplete() {
		t.Errorf("Expected restart to clear completion")
	}
}

func TestProceedIncompleteStaysInPlace(t *testing.T) {
	fake := &fakeSpecialists{
		validateCompletion: func(ctx context.Context, req *specialist.CompletionCheckRequest) (*specialist.CompletionCheckResponse, error) {
			return &specialist.CompletionCheckResponse{
				Complete:    false,
				MissingData: []string{"dbh"},
				NextActions: []string{"capture the trunk diameter at breast height"},
			}, nil
		},
	}
	sess := newTestSession(t, fake)
	ctx := context.Background()
	sess.Start(ctx)

	before := sess.Step()
	if err := sess.Proceed(ctx); err != nil {
		t.Fatalf("Proceed returned error: %v", err)
	}
	if sess.Step() != before {
		t.Errorf("Expected step unchanged, got %s", sess.Step())
	}

	snap := sess.Snapshot()
	if len(snap.ValidationErrors) != 1 || snap.ValidationErrors[0] != "dbh" {
		t.Errorf("Expected validation errors [dbh], got %v", snap.ValidationErrors)
	}
	rec, ok := findRec(snap.Recommendations, assessment.RecommendImprovement)
	if !ok {
		t.Fatalf("Expected improvement recommendation for next action")
	}
	if rec.Priority != assessment.PriorityMedium {
		t.Errorf("Expected medium priority, got %s", rec.Priority)
	}
}

func TestProceedValidationTransportFailure(t *testing.T) {
	fake := &fakeSpecialists{
		validateCompletion: func(ctx context.Context, req *specialist.CompletionCheckRequest) (*specialist.CompletionCheckResponse, error) {
			return nil, errors.New("connection reset")
		},
	}
	sess := newTestSession(t, fake)
	ctx := context.Background()
	sess.Start(ctx)

	before := sess.Step()
	if err := sess.Proceed(ctx); err != nil {
		t.Fatalf("Expected specialist failure to be absorbed, got %v", err)
	}
	if sess.Step() != before {
		t.Errorf("Expected step unchanged after failure, got %s", sess.Step())
	}

	snap := sess.Snapshot()
	rec, ok := findRec(snap.Recommendations, assessment.RecommendError)
	if !ok {
		t.Fatalf("Expected error recommendation")
	}
	if rec.Priority != assessment.PriorityHigh {
		t.Errorf("Expected high priority error record, got %s", rec.Priority)
	}
	if len(snap.ValidationErrors) == 0 {
		t.Errorf("Expected validation error entry for the failure")
	}
}

func TestGoBackAtFirstStepIsNoOp(t *testing.T) {
	called := false
	fake := &fakeSpecialists{
		approveBack: func(ctx context.Context, req *specialist.BackRequest) (bool, error) {
			called = true
			return true, nil
		},
	}
	sess := newTestSession(t, fake)

	if err := sess.GoBack(context.Background()); err != nil {
		t.Fatalf("GoBack returned error: %v", err)
	}
	if called {
		t.Errorf("Expected no permission request at the first step")
	}
	if sess.Step() != assessment.StepInitialization {
		t.Errorf("Expected step unchanged, got %s", sess.Step())
	}
}

func TestGoBackStepsThroughFixedOrder(t *testing.T) {
	formRequested := assessment.Step("")
	fake := &fakeSpecialists{
		generateForm: func(ctx context.Context, req *specialist.FormRequest) ([]assessment.DynamicFormField, error) {
			formRequested = req.Context.Step
			return []assessment.DynamicFormField{{ID: "height", Kind: assessment.FieldMeasurement}}, nil
		},
	}
	sess := newTestSession(t, fake)
	ctx := context.Background()
	sess.Start(ctx)
	sess.Proceed(ctx)
	sess.Flush()

	if sess.Step() != assessment.StepRiskAssessment {
		t.Fatalf("Expected to reach %s, got %s", assessment.StepRiskAssessment, sess.Step())
	}

	if err := sess.GoBack(ctx); err != nil {
		t.Fatalf("GoBack returned error: %v", err)
	}
	if sess.Step() != assessment.StepBasicMeasurement {
		t.Errorf("Expected %s after going back, got %s", assessment.StepBasicMeasurement, sess.Step())
	}
	if formRequested != assessment.StepBasicMeasurement {
		t.Errorf("Expected form regenerated for %s, got %s", assessment.StepBasicMeasurement, formRequested)
	}

	snap := sess.Snapshot()
	if len(snap.Fields) != 1 || snap.Fields[0].ID != "height" {
		t.Errorf("Expected regenerated field list, got %v", snap.Fields)
	}
}

func TestGoBackDenied(t *testing.T) {
	fake := &fakeSpecialists{
		approveBack: func(ctx context.Context, req *specialist.BackRequest) (bool, error) {
			return false, nil
		},
	}
	sess := newTestSession(t, fake)
	ctx := context.Background()
	sess.Start(ctx)

	if err := sess.GoBack(ctx); err != nil {
		t.Fatalf("GoBack returned error: %v", err)
	}
	if sess.Step() != assessment.StepBasicMeasurement {
		t.Errorf("Expected step unchanged on denial, got %s", sess.Step())
	}
}

func TestForwardNavigationCannotEnterCompletion(t *testing.T) {
	fake := &fakeSpecialists{
		nextStep: func(ctx context.Context, req *specialist.NextStepRequest) (*specialist.NextStepResponse, error) {
			return &specialist.NextStepResponse{Step: assessment.StepCompletion, Confidence: 0.9}, nil
		},
	}
	sess := newTestSession(t, fake)
	ctx := context.Background()
	sess.Start(ctx)

	if sess.Step() != assessment.StepInitialization {
		t.Errorf("Expected step unchanged, got %s", sess.Step())
	}

	snap := sess.Snapshot()
	if snap.Complete {
		t.Errorf("Expected session to remain incomplete")
	}
	if snap.Progress == 1 {
		t.Errorf("Expected progress below 1, got %v", snap.Progress)
	}
	rec, ok := findRec(snap.Recommendations, assessment.RecommendError)
	if !ok {
		t.Fatalf("Expected error recommendation for the rejected transition")
	}
	if rec.Priority != assessment.PriorityHigh {
		t.Errorf("Expected high priority, got %s", rec.Priority)
	}
	if len(snap.ValidationErrors) == 0 {
		t.Errorf("Expected validation error entry for the rejected transition")
	}
}

func TestGoBackFormFailureClearsAbandonedForm(t *testing.T) {
	fake := &fakeSpecialists{
		nextStep: func(ctx context.Context, req *specialist.NextStepRequest) (*specialist.NextStepResponse, error) {
			return &specialist.NextStepResponse{
				Step:         assessment.StepBasicMeasurement,
				Fields:       []assessment.DynamicFormField{{ID: "height_ft", Kind: assessment.FieldMeasurement}},
				Instructions: "Capture the three base measurements.",
				Confidence:   0.9,
			}, nil
		},
		generateForm: func(ctx context.Context, req *specialist.FormRequest) ([]assessment.DynamicFormField, error) {
			return nil, errors.New("form service unavailable")
		},
	}
	sess := newTestSession(t, fake)
	ctx := context.Background()
	sess.Start(ctx)

	if err := sess.GoBack(ctx); err != nil {
		t.Fatalf("GoBack returned error: %v", err)
	}

	snap := sess.Snapshot()
	if snap.Step != assessment.StepInitialization {
		t.Fatalf("Expected step %s, got %s", assessment.StepInitialization, snap.Step)
	}
	if len(snap.Fields) != 0 {
		t.Errorf("Expected abandoned step's fields cleared, got %v", snap.Fields)
	}
	if snap.Instructions != "" {
		t.Errorf("Expected instructions cleared, got %q", snap.Instructions)
	}
	if _, ok := findRec(snap.Recommendations, assessment.RecommendError); !ok {
		t.Errorf("Expected error recommendation for the form failure")
	}
}

func TestConcurrentNavigationBusy(t *testing.T) {
	enter := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeSpecialists{
		validateCompletion: func(ctx context.Context, req *specialist.CompletionCheckRequest) (*specialist.CompletionCheckResponse, error) {
			close(enter)
			<-release
			return &specialist.CompletionCheckResponse{Complete: true}, nil
		},
	}
	sess := newTestSession(t, fake)
	ctx := context.Background()
	sess.Start(ctx)

	done := make(chan error, 1)
	go func() { done <- sess.Proceed(ctx) }()
	<-enter

	if err := sess.Proceed(ctx); !errors.Is(err, arberrors.ErrBusy) {
		t.Errorf("Expected ErrBusy for concurrent navigation, got %v", err)
	}
	if err := sess.GoBack(ctx); !errors.Is(err, arberrors.ErrBusy) {
		t.Errorf("Expected ErrBusy for concurrent back navigation, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("Expected first navigation to succeed, got %v", err)
	}
}

func TestSafetySideCallDoesNotBlockNavigation(t *testing.T) {
	safetyStarted := make(chan struct{})
	safetyRelease := make(chan struct{})
	fake := &fakeSpecialists{
		assessRisks: func(ctx context.Context, req *specialist.SafetyRequest) (*specialist.SafetyResponse, error) {
			close(safetyStarted)
			<-safetyRelease
			return &specialist.SafetyResponse{
				RiskLevel: specialist.RiskExtreme,
				Protocols: []string{"crane required"},
			}, nil
		},
	}
	sess := newTestSession(t, fake)
	ctx := context.Background()
	sess.Start(ctx)

	// Entering risk assessment must return while the safety call is still
	// in flight.
	if err := sess.Proceed(ctx); err != nil {
		t.Fatalf("Proceed returned error: %v", err)
	}
	select {
	case <-safetyStarted:
	case <-time.After(2 * time.Second):
		t.Fatalf("Expected safety analysis to fire on step entry")
	}
	if sess.Step() != assessment.StepRiskAssessment {
		t.Errorf("Expected %s, got %s", assessment.StepRiskAssessment, sess.Step())
	}
	if _, ok := findRec(sess.Recommendations(), assessment.RecommendSafety); ok {
		t.Errorf("Expected no safety recommendation before the call completes")
	}

	close(safetyRelease)
	sess.Flush()

	rec, ok := findRec(sess.Recommendations(), assessment.RecommendSafety)
	if !ok {
		t.Fatalf("Expected safety recommendation after completion")
	}
	if rec.Priority != assessment.PriorityCritical {
		t.Errorf("Expected critical priority for extreme risk, got %s", rec.Priority)
	}
	if rec.Source != specialist.SourceSafety {
		t.Errorf("Expected source %s, got %s", specialist.SourceSafety, rec.Source)
	}
}

func TestSafetyFailureBecomesErrorRecommendation(t *testing.T) {
	fake := &fakeSpecialists{
		assessRisks: func(ctx context.Context, req *specialist.SafetyRequest) (*specialist.SafetyResponse, error) {
			return nil, errors.New("service unavailable")
		},
	}
	sess := newTestSession(t, fake)
	ctx := context.Background()
	sess.Start(ctx)
	sess.Proceed(ctx)
	sess.Flush()

	rec, ok := findRec(sess.Recommendations(), assessment.RecommendError)
	if !ok {
		t.Fatalf("Expected error recommendation for failed safety call")
	}
	if rec.Source != specialist.SourceSafety {
		t.Errorf("Expected source %s, got %s", specialist.SourceSafety, rec.Source)
	}
	if sess.Step() != assessment.StepRiskAssessment {
		t.Errorf("Expected navigation unaffected by side call failure, got %s", sess.Step())
	}
}

func TestRecommendationsOrderedByArrival(t *testing.T) {
	safetyRelease := make(chan struct{})
	scoreDone := make(chan struct{})
	fake := &fakeSpecialists{
		assessRisks: func(ctx context.Context, req *specialist.SafetyRequest) (*specialist.SafetyResponse, error) {
			<-safetyRelease
			return &specialist.SafetyResponse{
				RiskLevel: specialist.RiskHigh,
				Protocols: []string{"drop zone"},
			}, nil
		},
		calculateTreeScore: func(ctx context.Context, req *specialist.ScoreRequest) (*specialist.ScoreResponse, error) {
			defer close(scoreDone)
			return &specialist.ScoreResponse{BasePoints: 200}, nil
		},
	}
	sess := newTestSession(t, fake)
	ctx := context.Background()
	sess.Start(ctx)
	sess.Proceed(ctx) // risk assessment: safety fires and blocks
	sess.Proceed(ctx) // treescore: score fires and completes

	<-scoreDone
	close(safetyRelease)
	sess.Flush()

	recs := sess.Recommendations()
	var kinds []assessment.RecommendationKind
	for _, rec := range recs {
		kinds = append(kinds, rec.Kind)
	}
	scoreIdx, safetyIdx := -1, -1
	for i, kind := range kinds {
		if kind == assessment.RecommendCalculation && scoreIdx == -1 {
			scoreIdx = i
		}
		if kind == assessment.RecommendSafety && safetyIdx == -1 {
			safetyIdx = i
		}
	}
	if scoreIdx == -1 || safetyIdx == -1 {
		t.Fatalf("Expected both score and safety recommendations, got %v", kinds)
	}
	if scoreIdx > safetyIdx {
		t.Errorf("Expected score result (completed first) before safety result, got %v", kinds)
	}
}

func TestScoreSideCallRecordsPoints(t *testing.T) {
	var got specialist.ScoreRequest
	fake := &fakeSpecialists{
		calculateTreeScore: func(ctx context.Context, req *specialist.ScoreRequest) (*specialist.ScoreResponse, error) {
			got = *req
			return &specialist.ScoreResponse{BasePoints: 4392, EstimatedHours: 11}, nil
		},
		validateCompletion: func(ctx context.Context, req *specialist.CompletionCheckRequest) (*specialist.CompletionCheckResponse, error) {
			// The measurement step is complete only once all three
			// dimensions have been captured.
			if req.Context.Step == assessment.StepBasicMeasurement {
				for _, kind := range []assessment.MeasurementKind{
					assessment.MeasureHeight,
					assessment.MeasureCrownRadius,
					assessment.MeasureDBH,
				} {
					if _, ok := req.FormData.Measurement(kind); !ok {
						return &specialist.CompletionCheckResponse{
							Complete:    false,
							MissingData: []string{string(kind)},
						}, nil
					}
				}
			}
			return &specialist.CompletionCheckResponse{Complete: true}, nil
		},
	}
	sess := newTestSession(t, fake)
	ctx := context.Background()
	sess.Start(ctx)
	sess.SetValue("service_type", "removal")
	sess.ApplyMeasurement(ctx, assessment.MeasurementResult{Kind: assessment.MeasureHeight, Value: 62, Confidence: 0.95})
	sess.ApplyMeasurement(ctx, assessment.MeasurementResult{Kind: assessment.MeasureCrownRadius, Value: 18, Confidence: 0.95})
	sess.ApplyMeasurement(ctx, assessment.MeasurementResult{Kind: assessment.MeasureDBH, Value: 28.5, Confidence: 0.95})
	if sess.Step() != assessment.StepRiskAssessment {
		t.Fatalf("Expected %s after the final capture, got %s", assessment.StepRiskAssessment, sess.Step())
	}
	sess.Proceed(ctx)
	sess.Flush()

	if sess.Step() != assessment.StepTreeScore {
		t.Fatalf("Expected %s, got %s", assessment.StepTreeScore, sess.Step())
	}
	if got.HeightFt != 62 || got.CrownRadiusFt != 18 || got.DBHIn != 28.5 {
		t.Errorf("Expected measurements forwarded to scorer, got %+v", got)
	}
	if got.ServiceType != "removal" {
		t.Errorf("Expected service type removal, got %q", got.ServiceType)
	}

	snap := sess.Snapshot()
	if v, ok := snap.FormData.Value("treescore_points"); !ok || v != 4392.0 {
		t.Errorf("Expected treescore_points 4392, got %v", v)
	}
	if _, ok := findRec(snap.Recommendations, assessment.RecommendCalculation); !ok {
		t.Errorf("Expected calculation recommendation")
	}
}

func TestMeasurementGuidanceOnCaptureEntry(t *testing.T) {
	fake := &fakeSpecialists{
		guidance: func(ctx context.Context, req *specialist.GuidanceRequest) (*specialist.GuidanceResponse, error) {
			return &specialist.GuidanceResponse{Instructions: "keep the full crown in frame"}, nil
		},
	}
	sess := newTestSession(t, fake)
	sess.SetCaptureActive(true)
	sess.Start(context.Background())
	sess.Flush()

	rec, ok := findRec(sess.Recommendations(), assessment.RecommendImprovement)
	if !ok {
		t.Fatalf("Expected guidance recommendation")
	}
	if rec.Message != "keep the full crown in frame" {
		t.Errorf("Unexpected guidance message %q", rec.Message)
	}
	if rec.Source != specialist.SourceMeasurement {
		t.Errorf("Expected source %s, got %s", specialist.SourceMeasurement, rec.Source)
	}
}

func TestNoGuidanceWithoutActiveCapture(t *testing.T) {
	called := false
	fake := &fakeSpecialists{
		guidance: func(ctx context.Context, req *specialist.GuidanceRequest) (*specialist.GuidanceResponse, error) {
			called = true
			return &specialist.GuidanceResponse{Instructions: "x"}, nil
		},
	}
	sess := newTestSession(t, fake)
	sess.Start(context.Background())
	sess.Flush()

	if called {
		t.Errorf("Expected no guidance request without an active capture")
	}
}

func TestSessionClosedRejection(t *testing.T) {
	fake := &fakeSpecialists{}
	sess := newTestSession(t, fake)
	ctx := context.Background()

	if err := sess.Close(); err != nil {
		t.Fatalf("Failed to close session: %v", err)
	}
	if err := sess.Close(); !errors.Is(err, arberrors.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed on double close, got %v", err)
	}
	if err := sess.Start(ctx); !errors.Is(err, arberrors.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed from Start, got %v", err)
	}
	if err := sess.Proceed(ctx); !errors.Is(err, arberrors.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed from Proceed, got %v", err)
	}
	if err := sess.SetValue("x", 1); !errors.Is(err, arberrors.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed from SetValue, got %v", err)
	}
	if err := sess.ApplyMeasurement(ctx, assessment.MeasurementResult{Kind: assessment.MeasureHeight, Value: 1}); !errors.Is(err, arberrors.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed from ApplyMeasurement, got %v", err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	fake := &fakeSpecialists{}
	mgr, err := NewManager(fake.set(),
		WithManagerLogger(quietLogger()),
		WithSessionOptions(WithLogger(quietLogger())))
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	sess, err := mgr.Create("sess1")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if sess.ID() != "sess1" {
		t.Errorf("Expected id sess1, got %s", sess.ID())
	}

	if _, err := mgr.Create("sess1"); !errors.Is(err, arberrors.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists for duplicate, got %v", err)
	}

	generated, err := mgr.Create("")
	if err != nil {
		t.Fatalf("Failed to create session with generated id: %v", err)
	}
	if generated.ID() == "" {
		t.Errorf("Expected generated id")
	}
	if mgr.Count() != 2 {
		t.Errorf("Expected 2 sessions, got %d", mgr.Count())
	}

	got, err := mgr.Get("sess1")
	if err != nil || got != sess {
		t.Errorf("Expected to retrieve the same session, got %v (%v)", got, err)
	}

	if err := mgr.Close(context.Background(), "sess1"); err != nil {
		t.Errorf("Failed to close session: %v", err)
	}
	if _, err := mgr.Get("sess1"); !errors.Is(err, arberrors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after close, got %v", err)
	}
	if err := mgr.Close(context.Background(), "sess1"); !errors.Is(err, arberrors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound closing twice, got %v", err)
	}
}
