package usecases

import (
	"time"

	"github.com/Mortvola/tracker/internal/core/domain"
)

const day = 24 * time.Hour

// FallOffPeriod is how long an incident of the given size may go without
// upstream modification before it is considered over.
func FallOffPeriod(sizeAcres *float64) time.Duration {
	var acres float64
	if sizeAcres != nil {
		acres = *sizeAcres
	}

	switch {
	case acres < 10:
		return 3 * day
	case acres <= 100:
		return 8 * day
	default:
		return 14 * day
	}
}

// ResolveClosingTime derives when an incident that left the current feed
// ended. It prefers containment, then control, then fire-out timestamps and
// falls back to the last modification once the size-dependent fall-off
// period has elapsed at now. It returns false when there is no signal.
func ResolveClosingTime(rec *domain.HistoryRecord, now time.Time) (time.Time, bool) {
	if rec == nil {
		return time.Time{}, false
	}

	for _, t := range []*time.Time{rec.ContainmentAt, rec.ControlAt, rec.OutAt} {
		if t != nil {
			return *t, true
		}
	}

	if rec.ModifiedAt != nil && now.Sub(*rec.ModifiedAt) > FallOffPeriod(rec.Size) {
		return *rec.ModifiedAt, true
	}

	return time.Time{}, false
}
