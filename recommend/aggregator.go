// Package recommend collects advisory messages arriving from different
// specialists, possibly concurrently, into one append-only session list.
package recommend

import (
	"sort"
	"sync"
	"time"

	"github.com/sweetpotato0/arborflow/assessment"
)

// Aggregator is a concurrent-safe, append-only recommendation list. Records
// are ordered by arrival (completion time of the producing call, not request
// time) and are never mutated or de-duplicated after append; repeated
// identical messages across steps are preserved for audit fidelity.
type Aggregator struct {
	mu    sync.Mutex
	items []assessment.Recommendation
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Append adds recommendations in arrival order, stamping any missing
// timestamp with the time of arrival.
func (a *Aggregator) Append(recs ...assessment.Recommendation) {
	if len(recs) == 0 {
		return
	}
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range recs {
		if rec.Timestamp.IsZero() {
			rec.Timestamp = now
		}
		a.items = append(a.items, rec)
	}
}

// Error appends a synthetic error record for a failed specialist call.
// Synthetic records are always high priority.
func (a *Aggregator) Error(source, message string) {
	a.Append(assessment.Recommendation{
		Kind:     assessment.RecommendError,
		Message:  message,
		Priority: assessment.PriorityHigh,
		Source:   source,
	})
}

// List returns a copy of the list in arrival order.
func (a *Aggregator) List() []assessment.Recommendation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]assessment.Recommendation(nil), a.items...)
}

// ByPriority returns a copy sorted by descending priority; records of equal
// priority keep their arrival order.
func (a *Aggregator) ByPriority() []assessment.Recommendation {
	out := a.List()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() > out[j].Priority.Rank()
	})
	return out
}

// Len returns the number of records.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Reset clears the list. Only a full session reset may call this.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = nil
}
