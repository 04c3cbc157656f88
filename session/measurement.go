package session

import (
	"context"

	"github.com/sweetpotato0/arborflow/assessment"
	arberrors "github.com/sweetpotato0/arborflow/errors"
	"github.com/sweetpotato0/arborflow/specialist"
)

// ApplyMeasurement folds one raw capture result into the session. The value
// is applied to the form data unconditionally; the specialist's validation is
// advisory only and can at most suggest a retake. A failed validation call is
// silent. Every applied capture completes the current ask, so the sequencer
// auto-advances afterwards.
func (s *Session) ApplyMeasurement(ctx context.Context, res assessment.MeasurementResult) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return arberrors.ErrSessionClosed
	}
	s.measureSeq++
	res.Seq = s.measureSeq
	s.form.ApplyMeasurement(res)
	threshold := s.cfg.AccuracyThreshold
	s.mu.Unlock()

	s.logger.Info("measurement applied", "kind", res.Kind, "value", res.Value, "seq", res.Seq)

	callCtx, cancel := s.callContext(ctx)
	resp, err := s.specialists.Measurement.ValidateMeasurement(callCtx, &specialist.MeasurementValidationRequest{
		Measurement: res,
	})
	cancel()
	if err != nil {
		// Advisory only: the value is already in the record.
		s.logger.Warn("measurement validation unavailable", "kind", res.Kind, "error", err)
	} else if !resp.Valid || resp.Accuracy < threshold {
		priority := assessment.PriorityMedium
		if resp.Accuracy < threshold {
			priority = assessment.PriorityHigh
		}
		message := resp.Comment
		if message == "" {
			message = "consider retaking the " + string(res.Kind) + " measurement"
		}
		s.appendRecommendation(assessment.Recommendation{
			Kind:     assessment.RecommendImprovement,
			Message:  message,
			Priority: priority,
			Source:   specialist.SourceMeasurement,
			Seq:      res.Seq,
		})
	}

	return s.Proceed(ctx)
}
