package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"

	"github.com/Mortvola/tracker/internal/adapters/arcgis"
	natsadapter "github.com/Mortvola/tracker/internal/adapters/nats"
	"github.com/Mortvola/tracker/internal/adapters/postgres"
	"github.com/Mortvola/tracker/internal/adapters/valkey"
	"github.com/Mortvola/tracker/internal/core/ports"
	"github.com/Mortvola/tracker/internal/core/usecases"
	"github.com/Mortvola/tracker/internal/pkg/config"
	"github.com/Mortvola/tracker/internal/pkg/logging"
	"github.com/Mortvola/tracker/internal/pkg/metrics"
	"github.com/Mortvola/tracker/internal/pkg/telemetry"
	"github.com/Mortvola/tracker/internal/workflows"
)

const usage = "usage: updater [worker|once|poll]"

func main() {
	mode := "worker"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	cfg, err := config.Load("tracker-updater")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	pending, err := postgres.Pending(ctx, db.Pool)
	if err != nil {
		log.Fatalf("migration status: %v", err)
	}
	if len(pending) > 0 {
		log.Fatalf("database has %d pending migrations, run migrate up first", len(pending))
	}

	svc, closeDeps, err := buildIncidentService(ctx, cfg, db)
	if err != nil {
		log.Fatalf("incident service: %v", err)
	}
	defer closeDeps()

	switch mode {
	case "worker":
		runWorker(ctx, cfg, svc)
	case "once":
		if err := refreshOnce(ctx, svc); err != nil {
			log.Fatalf("refresh: %v", err)
		}
	case "poll":
		poll(ctx, cfg.Temporal.Interval, svc)
	default:
		log.Fatal(usage)
	}
}

// buildIncidentService wires the feature source, history store, sink and
// cache. The sink and cache are optional.
func buildIncidentService(ctx context.Context, cfg *config.Config, db *postgres.DB) (*usecases.IncidentService, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var cache ports.CacheService
	if c, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, distance cache disabled", "error", err)
	} else {
		cache = c
		closers = append(closers, c.Close)
	}

	var publisher ports.EventPublisher
	if p, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable, change notifications disabled", "error", err)
	} else {
		publisher = p
		closers = append(closers, p.Close)
	}

	loc, err := cfg.Trail.Location()
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	trails := usecases.NewTrailService(postgres.NewTrailRepo(db), cache)
	idx, err := trails.Index(ctx, cfg.Trail.Name, cfg.Trail.MarginDegrees)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("%w (load it with trailload)", err)
	}

	source := arcgis.NewClient(arcgis.Config{
		LocationsURL:      cfg.Sources.LocationsURL,
		PerimetersURL:     cfg.Sources.PerimetersURL,
		HistoryURL:        cfg.Sources.HistoryURL,
		Timeout:           cfg.Sources.Timeout,
		RequestsPerSecond: cfg.Sources.RequestsPerSecond,
		Burst:             cfg.Sources.Burst,
	})

	svc := usecases.NewIncidentService(source, postgres.NewHistoryStore(db), publisher, cache, idx, usecases.RefreshOptions{
		Workers:          cfg.Refresh.Workers,
		LookupTimeout:    cfg.Refresh.LookupTimeout,
		TrackingRadius:   cfg.Trail.TrackingRadiusMeters,
		DistanceCacheTTL: cfg.Refresh.DistanceCacheTTL,
		Location:         loc,
	})
	return svc, closeAll, nil
}

func refreshOnce(ctx context.Context, svc *usecases.IncidentService) error {
	start := time.Now()
	report, err := svc.Refresh(ctx, start.UTC())
	metrics.ObserveCycle(report, time.Since(start))
	return err
}

// poll runs a cycle immediately and then on every tick, without Temporal.
func poll(ctx context.Context, every time.Duration, svc *usecases.IncidentService) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	slog.Info("polling", "interval", every.String())
	for {
		if err := refreshOnce(ctx, svc); err != nil {
			slog.Error("refresh failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			slog.Info("shutting down poller")
			return
		}
	}
}

func runWorker(ctx context.Context, cfg *config.Config, svc *usecases.IncidentService) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	if err := ensureSchedule(ctx, c, cfg); err != nil {
		log.Fatalf("schedule: %v", err)
	}

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 1,
	})
	w.RegisterWorkflow(workflows.RefreshWorkflow)
	w.RegisterActivity(&workflows.RefreshActivities{Incidents: svc})

	slog.Info("refresh worker started", "task_queue", cfg.Temporal.TaskQueue, "trail", cfg.Trail.Name)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// ensureSchedule creates the refresh schedule unless it already exists.
// Overlapping runs are skipped.
func ensureSchedule(ctx context.Context, c client.Client, cfg *config.Config) error {
	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: cfg.Temporal.ScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: cfg.Temporal.Interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        "incident-refresh-" + cfg.Trail.Name,
			Workflow:  workflows.RefreshWorkflow,
			Args:      []interface{}{workflows.RefreshInput{Trail: cfg.Trail.Name}},
			TaskQueue: cfg.Temporal.TaskQueue,
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	})
	if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		slog.Info("refresh schedule already exists", "schedule_id", cfg.Temporal.ScheduleID)
		return nil
	}
	return err
}
