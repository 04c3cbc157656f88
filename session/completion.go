package session

import (
	"context"

	"github.com/sweetpotato0/arborflow/assessment"
	"github.com/sweetpotato0/arborflow/specialist"
)

// Finalize runs the completion pipeline: build the full cross-step payload,
// request report generation, and on success freeze the session as complete.
// On failure the session state is left unchanged so the operator can retry.
func (s *Session) Finalize(ctx context.Context) error {
	if err := s.beginNav(); err != nil {
		return err
	}
	defer s.endNav()

	s.mu.Lock()
	req := &specialist.ReportRequest{
		Context:  s.contextLocked(),
		FormData: s.form.Clone(),
		Safety:   s.lastSafety,
		Score:    s.lastScore,
	}
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	resp, err := s.specialists.Reporter.GenerateReport(callCtx, req)
	cancel()
	if err != nil {
		s.reportFailure(specialist.SourceOperations, "report generation failed", err)
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.step = assessment.StepCompletion
	s.complete = true
	s.validationErrors = nil
	s.form.Report = resp.Report
	s.snap = s.contextLocked()
	s.mu.Unlock()

	for _, advice := range resp.Recommendations {
		s.appendRecommendation(assessment.Recommendation{
			Kind:     assessment.RecommendReport,
			Message:  advice.Message,
			Priority: advice.Priority,
			Source:   specialist.SourceOperations,
		})
	}

	s.logger.Info("assessment complete")
	s.persistSnapshot(ctx)
	return nil
}

// persistSnapshot saves the final snapshot when a report store is configured.
// Persistence is best-effort; a storage error never undoes completion.
func (s *Session) persistSnapshot(ctx context.Context) {
	if s.reports == nil {
		return
	}
	if err := s.reports.Save(ctx, s.Snapshot()); err != nil {
		s.logger.Error("failed to persist completed assessment", "error", err)
	}
}
