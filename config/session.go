package config

import (
	"os"
	"strconv"
	"time"
)

// Session holds the tunables of one workflow session.
type Session struct {
	// AccuracyThreshold is the minimum acceptable measurement accuracy.
	// Validation results below it produce a high-priority retake suggestion.
	AccuracyThreshold float64

	// CallTimeout bounds every specialist round trip issued by the session.
	CallTimeout time.Duration
}

// DefaultSession returns the session defaults, overridable through
// ARBORFLOW_ACCURACY_THRESHOLD and ARBORFLOW_CALL_TIMEOUT.
func DefaultSession() *Session {
	cfg := &Session{
		AccuracyThreshold: 0.8,
		CallTimeout:       30 * time.Second,
	}
	if env := os.Getenv("ARBORFLOW_ACCURACY_THRESHOLD"); env != "" {
		if f, err := strconv.ParseFloat(env, 64); err == nil {
			cfg.AccuracyThreshold = f
		}
	}
	if env := os.Getenv("ARBORFLOW_CALL_TIMEOUT"); env != "" {
		if d, err := time.ParseDuration(env); err == nil {
			cfg.CallTimeout = d
		}
	}
	return cfg
}

// Validate checks the session configuration.
func (c *Session) Validate() error {
	v := NewValidator()
	v.ValidateFraction("accuracyThreshold", c.AccuracyThreshold)
	if c.CallTimeout <= 0 {
		v.errors = append(v.errors, ValidationError{
			Field:   "callTimeout",
			Message: "value must be positive",
		})
	}
	return v.Error()
}
