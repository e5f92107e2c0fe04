package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/Mortvola/tracker/internal/core/domain"
	"github.com/Mortvola/tracker/internal/pkg/metrics"
)

// Refresher runs refresh cycles. It is satisfied by *usecases.IncidentService.
type Refresher interface {
	Refresh(ctx context.Context, at time.Time) (*domain.CycleReport, error)
}

// RefreshActivities holds the activity implementations for the refresh workflow.
type RefreshActivities struct {
	Incidents Refresher
}

// RunRefreshCycle runs one cycle at the given timestamp and records its metrics.
func (a *RefreshActivities) RunRefreshCycle(ctx context.Context, at time.Time) (*domain.CycleReport, error) {
	logger := activity.GetLogger(ctx)
	info := activity.GetInfo(ctx)
	if info.Attempt > 1 {
		logger.Warn("retrying refresh cycle", "attempt", info.Attempt, "at", at)
	}

	start := time.Now()
	report, err := a.Incidents.Refresh(ctx, at)
	metrics.ObserveCycle(report, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("refresh at %s: %w", at.Format(time.RFC3339), err)
	}
	return report, nil
}
