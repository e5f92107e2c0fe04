package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/Mortvola/tracker/internal/core/domain"
)

// RefreshInput is the input for the refresh workflow.
type RefreshInput struct {
	Trail string
}

// RefreshWorkflow runs one refresh cycle. The workflow clock supplies the
// refresh timestamp so a retried activity reuses it.
func RefreshWorkflow(ctx workflow.Context, input RefreshInput) (*domain.CycleReport, error) {
	logger := workflow.GetLogger(ctx)

	at := workflow.Now(ctx).UTC()
	logger.Info("Starting refresh workflow", "trail", input.Trail, "at", at)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 30 * time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var report domain.CycleReport
	if err := workflow.ExecuteActivity(ctx, "RunRefreshCycle", at).Get(ctx, &report); err != nil {
		logger.Error("refresh cycle failed", "error", err)
		return nil, err
	}

	if report.NotificationsFailed > 0 {
		logger.Warn("some change notifications were not delivered", "failed", report.NotificationsFailed)
	}
	logger.Info("Refresh workflow complete",
		"cycle_id", report.CycleID, "added", report.Added, "updated", report.Updated, "closed", report.Closed)
	return &report, nil
}
