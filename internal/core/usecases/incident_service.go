package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/Mortvola/tracker/internal/core/domain"
	"github.com/Mortvola/tracker/internal/core/ports"
	"github.com/Mortvola/tracker/internal/pkg/geospatial"
	"github.com/Mortvola/tracker/internal/pkg/telemetry"
)

var tracer = otel.Tracer("github.com/Mortvola/tracker/internal/core/usecases")

// RefreshOptions tunes a refresh cycle.
type RefreshOptions struct {
	Workers          int           // concurrent per-feature tasks
	LookupTimeout    time.Duration // per upstream perimeter or history call
	TrackingRadius   float64       // meters; new incidents farther away are ignored, 0 admits all
	DistanceCacheTTL time.Duration
	Location         *time.Location // calendar day used for distance cache keys
}

func (o RefreshOptions) withDefaults() RefreshOptions {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 20 * time.Second
	}
	if o.DistanceCacheTTL <= 0 {
		o.DistanceCacheTTL = 36 * time.Hour
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// IncidentService runs refresh cycles that keep the incident history in step
// with the upstream feed.
type IncidentService struct {
	source    ports.FeatureSource
	store     ports.HistoryStore
	publisher ports.EventPublisher
	cache     ports.CacheService
	trail     *geospatial.TrailIndex
	distances *distanceCache
	opts      RefreshOptions
}

// NewIncidentService creates a new IncidentService. publisher and cache may be nil.
func NewIncidentService(
	source ports.FeatureSource,
	store ports.HistoryStore,
	publisher ports.EventPublisher,
	cache ports.CacheService,
	trail *geospatial.TrailIndex,
	opts RefreshOptions,
) *IncidentService {
	opts = opts.withDefaults()
	return &IncidentService{
		source:    source,
		store:     store,
		publisher: publisher,
		cache:     cache,
		trail:     trail,
		distances: &distanceCache{
			cache:      cache,
			trail:      trail.Name(),
			trailPrint: trail.Fingerprint(),
			ttl:        opts.DistanceCacheTTL,
			loc:        opts.Location,
		},
		opts:      opts,
	}
}

// cycle carries the state of one refresh pass.
type cycle struct {
	*IncidentService
	at     time.Time
	log    *slog.Logger
	report *domain.CycleReport

	perimeterFailures atomic.Int64
	carryForwards     atomic.Int64
}

// featurePlan is the read-only outcome of processing one fetched incident.
type featurePlan struct {
	feature    *domain.Feature
	prev       *domain.FeatureVersion
	res        resolution
	skipped    bool
	outOfRange bool
}

// resolution is the perimeter and distance decided for a fetched incident.
// pending holds geometry that still has to be stored.
type resolution struct {
	perimeterID *int64
	pending     *domain.PerimeterGeometry
	distance    *float64
}

type closing struct {
	version *domain.FeatureVersion
	end     time.Time
}

// Refresh runs one cycle with at as the refresh timestamp. Version writes for
// the whole cycle commit in one transaction; notifications are sent only
// after the commit succeeds.
func (s *IncidentService) Refresh(ctx context.Context, at time.Time) (*domain.CycleReport, error) {
	ctx, span := tracer.Start(ctx, "incidents.refresh")
	defer span.End()

	c := &cycle{
		IncidentService: s,
		at:              at,
		report:          &domain.CycleReport{CycleID: uuid.NewString(), RefreshedAt: at},
	}
	c.log = slog.Default().With("cycle_id", c.report.CycleID)

	err := c.run(ctx)

	r := c.report
	span.SetAttributes(
		telemetry.AttrCycleID.String(r.CycleID),
		telemetry.AttrFetched.Int(r.Fetched),
		telemetry.AttrAdded.Int(r.Added),
		telemetry.AttrUpdated.Int(r.Updated),
		telemetry.AttrClosed.Int(r.Closed),
		telemetry.AttrSkipped.Int(r.Skipped),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Error("refresh cycle failed", "error", err)
		return nil, err
	}

	c.log.Info("refresh cycle complete",
		"fetched", r.Fetched, "added", r.Added, "updated", r.Updated,
		"unchanged", r.Unchanged, "skipped", r.Skipped, "out_of_range", r.OutOfRange,
		"closed", r.Closed, "left_open", r.LeftOpen)
	return r, nil
}

func (c *cycle) run(ctx context.Context) error {
	features, err := c.source.FetchFeatures(ctx)
	if err != nil {
		return fmt.Errorf("fetch features: %w", err)
	}
	features = dedupeFeatures(features)
	c.report.Fetched = len(features)

	open, err := c.store.Versions().ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open versions: %w", err)
	}
	remaining := make(map[string]*domain.FeatureVersion, len(open))
	for i := range open {
		remaining[open[i].GlobalID] = &open[i]
	}

	plans, err := c.plan(ctx, features, remaining)
	if err != nil {
		return err
	}

	for i := range features {
		delete(remaining, features[i].GlobalID)
	}

	closings, err := c.resolveClosings(ctx, remaining)
	if err != nil {
		return err
	}

	events, err := c.commit(ctx, plans, closings)
	if err != nil {
		return err
	}

	c.evictCurrent(ctx, events, closings)
	c.notify(ctx, events)
	return nil
}

// plan processes every fetched incident concurrently. Failures other than
// cancellation skip the incident for this cycle.
func (c *cycle) plan(ctx context.Context, features []domain.Feature, open map[string]*domain.FeatureVersion) ([]*featurePlan, error) {
	plans := make([]*featurePlan, len(features))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	for i := range features {
		f := &features[i]
		prev := open[f.GlobalID]
		g.Go(func() error {
			p, err := c.planFeature(gctx, f, prev)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.Warn("skipping incident", "global_id", f.GlobalID, "error", err)
				p = &featurePlan{feature: f, skipped: true}
			}
			plans[i] = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("process incidents: %w", err)
	}

	c.report.PerimeterFetchFailures = int(c.perimeterFailures.Load())
	c.report.PerimeterCarryForwards = int(c.carryForwards.Load())

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].feature.GlobalID < plans[j].feature.GlobalID
	})
	return plans, nil
}

func (c *cycle) planFeature(ctx context.Context, f *domain.Feature, prev *domain.FeatureVersion) (*featurePlan, error) {
	geom := f.Perimeter
	if geom == nil && f.IrwinID != "" {
		lctx, cancel := context.WithTimeout(ctx, c.opts.LookupTimeout)
		p, err := c.source.FetchPerimeter(lctx, f.IrwinID)
		cancel()
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			c.perimeterFailures.Add(1)
			c.log.Warn("perimeter fetch failed", "global_id", f.GlobalID, "irwin_id", f.IrwinID, "error", err)
		default:
			geom = p
		}
	}

	res, err := c.resolvePerimeter(ctx, f, geom, prev)
	if err != nil {
		return nil, err
	}

	if prev == nil && !c.withinRadius(res.distance) {
		return &featurePlan{feature: f, outOfRange: true}, nil
	}
	return &featurePlan{feature: f, prev: prev, res: res}, nil
}

// resolvePerimeter reuses the stored perimeter and distance when the fetched
// rings are unchanged, and carries the previous perimeter forward when the
// upstream returned none.
func (c *cycle) resolvePerimeter(ctx context.Context, f *domain.Feature, geom *domain.PerimeterGeometry, prev *domain.FeatureVersion) (resolution, error) {
	hasPrevPerimeter := prev != nil && prev.PerimeterID != nil

	if geom != nil && len(geom.Rings) > 0 {
		if hasPrevPerimeter {
			stored, err := c.store.Perimeters().GetByID(ctx, *prev.PerimeterID)
			if err != nil {
				return resolution{}, fmt.Errorf("load perimeter %d: %w", *prev.PerimeterID, err)
			}
			if domain.PerimetersMatch(stored.Geometry, *geom) {
				return resolution{perimeterID: prev.PerimeterID, distance: prev.Properties.Distance}, nil
			}
		}

		d, err := c.distance(ctx, f.Origin, geom)
		if err != nil {
			return resolution{}, err
		}
		return resolution{pending: geom, distance: d}, nil
	}

	if hasPrevPerimeter {
		stored, err := c.store.Perimeters().GetByID(ctx, *prev.PerimeterID)
		if err != nil {
			return resolution{}, fmt.Errorf("load perimeter %d: %w", *prev.PerimeterID, err)
		}
		c.carryForwards.Add(1)
		c.log.Warn("perimeter missing upstream, carrying previous forward",
			"global_id", f.GlobalID, "perimeter_id", *prev.PerimeterID,
			"version_age", c.at.Sub(prev.StartTimestamp).String())

		d, err := c.distance(ctx, f.Origin, &stored.Geometry)
		if err != nil {
			return resolution{}, err
		}
		return resolution{perimeterID: prev.PerimeterID, distance: d}, nil
	}

	d, err := c.distance(ctx, f.Origin, nil)
	if err != nil {
		return resolution{}, err
	}
	return resolution{distance: d}, nil
}

// distance is the smaller of the origin distance and every ring distance.
func (c *cycle) distance(ctx context.Context, origin domain.Point, geom *domain.PerimeterGeometry) (*float64, error) {
	key := c.distances.key(c.at, origin, geom)
	if d, ok := c.distances.get(ctx, key); ok {
		return d, nil
	}

	best, ok, err := c.trail.DistanceToPoint(origin)
	if err != nil {
		return nil, fmt.Errorf("distance to origin: %w", err)
	}

	if geom != nil {
		for i, ring := range geom.Rings {
			d, found, err := c.trail.DistanceToPolyline(domain.Polyline(ring))
			if err != nil {
				return nil, fmt.Errorf("distance to ring %d: %w", i, err)
			}
			if found && (!ok || d < best) {
				best, ok = d, true
			}
		}
	}

	var result *float64
	if ok {
		result = &best
	}
	c.distances.set(ctx, key, result)
	return result, nil
}

func (c *cycle) withinRadius(d *float64) bool {
	if c.opts.TrackingRadius <= 0 {
		return true
	}
	return d != nil && *d <= c.opts.TrackingRadius
}

// resolveClosings looks up every open incident the feed no longer mentions.
// Lookups that fail or time out leave the version open.
func (c *cycle) resolveClosings(ctx context.Context, remaining map[string]*domain.FeatureVersion) ([]closing, error) {
	if len(remaining) == 0 {
		return nil, nil
	}

	versions := make([]*domain.FeatureVersion, 0, len(remaining))
	for _, v := range remaining {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].GlobalID < versions[j].GlobalID })

	ends := make([]*time.Time, len(versions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	for i, v := range versions {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, c.opts.LookupTimeout)
			rec, err := c.source.LookupHistory(lctx, v.GlobalID)
			cancel()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.Warn("closing lookup failed, leaving version open", "global_id", v.GlobalID, "error", err)
				return nil
			}

			end, ok := ResolveClosingTime(rec, c.at)
			if !ok {
				c.log.Warn("no closing signal, leaving version open", "global_id", v.GlobalID)
				return nil
			}
			if end.Before(v.StartTimestamp) {
				end = v.StartTimestamp
			}
			ends[i] = &end
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve closings: %w", err)
	}

	var closings []closing
	for i, end := range ends {
		if end == nil {
			c.report.LeftOpen++
			continue
		}
		closings = append(closings, closing{version: versions[i], end: *end})
	}
	return closings, nil
}

// commit applies every version change of the cycle in one transaction.
func (c *cycle) commit(ctx context.Context, plans []*featurePlan, closings []closing) ([]*domain.ChangeEvent, error) {
	var (
		events                      []*domain.ChangeEvent
		added, updated, unchanged   int
		skipped, outOfRange, closed int
	)

	err := c.store.WithinTx(ctx, func(tx ports.HistoryStore) error {
		events = nil
		added, updated, unchanged, skipped, outOfRange, closed = 0, 0, 0, 0, 0, 0

		for _, p := range plans {
			switch {
			case p.skipped:
				skipped++
				continue
			case p.outOfRange:
				outOfRange++
				continue
			}

			next := p.nextVersion(c.at)
			if p.res.pending != nil {
				per := &domain.Perimeter{Geometry: *p.res.pending}
				if err := tx.Perimeters().Insert(ctx, per); err != nil {
					return fmt.Errorf("insert perimeter for %s: %w", p.feature.GlobalID, err)
				}
				next.PerimeterID = &per.ID
			}

			d := DiffVersion(p.prev, next)
			switch d.Kind {
			case domain.ChangeNone:
				unchanged++
				continue
			case domain.ChangeUpdated:
				if err := tx.Versions().Close(ctx, p.prev.ID, c.at); err != nil {
					return fmt.Errorf("close version %d: %w", p.prev.ID, err)
				}
				updated++
			case domain.ChangeAdded:
				added++
			}

			if err := tx.Versions().Insert(ctx, next); err != nil {
				return fmt.Errorf("insert version for %s: %w", next.GlobalID, err)
			}
			events = append(events, newChangeEvent(d, next, c.at))
		}

		for _, cl := range closings {
			if err := tx.Versions().Close(ctx, cl.version.ID, cl.end); err != nil {
				return fmt.Errorf("close version %d: %w", cl.version.ID, err)
			}
			closed++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit cycle: %w", err)
	}

	r := c.report
	r.Added, r.Updated, r.Unchanged = added, updated, unchanged
	r.Skipped, r.OutOfRange, r.Closed = skipped, outOfRange, closed
	return events, nil
}

// evictCurrent drops cached current-version reads for every incident the
// cycle changed. Closings publish no event, so this is the only signal
// readers get for them.
func (c *cycle) evictCurrent(ctx context.Context, events []*domain.ChangeEvent, closings []closing) {
	if c.cache == nil {
		return
	}
	ids := make([]string, 0, len(events)+len(closings))
	for _, e := range events {
		ids = append(ids, e.GlobalID)
	}
	for _, cl := range closings {
		ids = append(ids, cl.version.GlobalID)
	}
	for _, id := range ids {
		if err := c.cache.Delete(ctx, currentKey(id)); err != nil {
			c.log.Warn("evict cached incident failed", "global_id", id, "error", err)
		}
	}
}

func (c *cycle) notify(ctx context.Context, events []*domain.ChangeEvent) {
	if c.publisher == nil {
		return
	}
	for _, e := range events {
		if err := c.publisher.PublishChange(ctx, e); err != nil {
			c.report.NotificationsFailed++
			c.log.Warn("publish change failed", "global_id", e.GlobalID, "kind", string(e.Kind), "error", err)
		}
	}
}

func (p *featurePlan) nextVersion(at time.Time) *domain.FeatureVersion {
	props := p.feature.Properties
	props.Lat = p.feature.Origin.Lat()
	props.Lng = p.feature.Origin.Lon()
	props.Distance = p.res.distance

	return &domain.FeatureVersion{
		GlobalID:       p.feature.GlobalID,
		IrwinID:        p.feature.IrwinID,
		PerimeterID:    p.res.perimeterID,
		Properties:     props,
		StartTimestamp: at,
	}
}

// eventNamespace scopes change event ids.
var eventNamespace = uuid.MustParse("6f1c2b7e-4d0a-5c8e-9a3b-2e7d4f6a1c90")

// changeEventID derives the id from the version it announces, so a retried
// cycle with the same refresh timestamp republishes under the same id.
func changeEventID(kind domain.ChangeKind, globalID string, start time.Time) string {
	name := string(kind) + "|" + globalID + "|" + start.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

func newChangeEvent(d Decision, v *domain.FeatureVersion, at time.Time) *domain.ChangeEvent {
	name := v.Properties.Name
	if name == "" {
		name = "Unnamed"
	}
	verb := "added"
	if d.Kind == domain.ChangeUpdated {
		verb = "updated"
	}

	return &domain.ChangeEvent{
		ID:         changeEventID(d.Kind, v.GlobalID, v.StartTimestamp),
		Kind:       d.Kind,
		GlobalID:   v.GlobalID,
		IrwinID:    v.IrwinID,
		Name:       v.Properties.Name,
		Title:      fmt.Sprintf("%s fire %s", name, verb),
		Changes:    d.Changes,
		Distance:   v.Properties.Distance,
		CollapseID: v.GlobalID,
		OccurredAt: at,
	}
}

// dedupeFeatures keeps one record per global id, preferring the most
// recently modified.
func dedupeFeatures(features []domain.Feature) []domain.Feature {
	index := make(map[string]int, len(features))
	out := features[:0:0]
	for _, f := range features {
		if i, ok := index[f.GlobalID]; ok {
			if f.Properties.ModifiedAt.After(out[i].Properties.ModifiedAt) {
				out[i] = f
			}
			continue
		}
		index[f.GlobalID] = len(out)
		out = append(out, f)
	}
	return out
}

// IsNotFound reports whether err wraps domain.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
