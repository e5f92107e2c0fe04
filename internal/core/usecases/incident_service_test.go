package usecases_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Mortvola/tracker/internal/core/domain"
	"github.com/Mortvola/tracker/internal/core/usecases"
	"github.com/Mortvola/tracker/internal/pkg/geospatial"
)

var t0 = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func testTrail(t *testing.T) *geospatial.TrailIndex {
	t.Helper()
	idx, err := geospatial.NewTrailIndex(&domain.Trail{
		Name: "test-trail",
		Segments: []domain.Polyline{{
			domain.NewPoint(0, 0), domain.NewPoint(0, 5), domain.NewPoint(0, 10),
		}},
	}, geospatial.DefaultMargin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return idx
}

func cedar(size, pct float64) domain.Feature {
	return domain.Feature{
		GlobalID: "{CEDAR}",
		IrwinID:  "irwin-cedar",
		Origin:   domain.NewPoint(0.05, 5),
		Properties: domain.IncidentProperties{
			Name:             "Cedar",
			DiscoveredAt:     t0.Add(-48 * time.Hour),
			ModifiedAt:       t0.Add(-time.Hour),
			Category:         "WF",
			Size:             ptr(size),
			PercentContained: ptr(pct),
		},
	}
}

func pointOnly(globalID string, lon, lat float64) domain.Feature {
	return domain.Feature{
		GlobalID: globalID,
		Origin:   domain.NewPoint(lon, lat),
		Properties: domain.IncidentProperties{
			Name:       strings.Trim(globalID, "{}"),
			ModifiedAt: t0.Add(-time.Hour),
			Category:   "WF",
		},
	}
}

func ring(offset float64) *domain.PerimeterGeometry {
	return &domain.PerimeterGeometry{Rings: []domain.Ring{{
		domain.NewPoint(0.02+offset, 4.9),
		domain.NewPoint(0.08+offset, 4.9),
		domain.NewPoint(0.08+offset, 5.1),
		domain.NewPoint(0.02+offset, 5.1),
		domain.NewPoint(0.02+offset, 4.9),
	}}}
}

type harness struct {
	source *mockSource
	store  *memStore
	pub    *mockPublisher
	cache  *memCache
	svc    *usecases.IncidentService
}

func newHarness(t *testing.T, opts usecases.RefreshOptions) *harness {
	t.Helper()
	h := &harness{
		source: &mockSource{
			perimeters: map[string]*domain.PerimeterGeometry{},
			history:    map[string]*domain.HistoryRecord{},
		},
		store: newMemStore(),
		pub:   &mockPublisher{},
		cache: newMemCache(),
	}
	if opts.TrackingRadius == 0 {
		opts.TrackingRadius = 16093.4
	}
	h.svc = usecases.NewIncidentService(h.source, h.store, h.pub, h.cache, testTrail(t), opts)
	return h
}

func (h *harness) refresh(t *testing.T, at time.Time) *domain.CycleReport {
	t.Helper()
	r, err := h.svc.Refresh(context.Background(), at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func TestRefresh_AddsNewIncident(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{cedar(120, 10)}
	h.source.perimeters["irwin-cedar"] = ring(0)

	r := h.refresh(t, t0)
	if r.Added != 1 {
		t.Fatalf("expected 1 added, got %d", r.Added)
	}

	open := h.store.open()
	if len(open) != 1 {
		t.Fatalf("expected 1 open version, got %d", len(open))
	}
	v := open[0]
	if !v.StartTimestamp.Equal(t0) {
		t.Errorf("expected start %v, got %v", t0, v.StartTimestamp)
	}
	if v.PerimeterID == nil {
		t.Fatal("expected perimeter id to be set")
	}
	if v.Properties.Distance == nil {
		t.Fatal("expected distance to be set")
	}
	if v.Properties.Lat != 5 || v.Properties.Lng != 0.05 {
		t.Errorf("expected origin 5/0.05, got %v/%v", v.Properties.Lat, v.Properties.Lng)
	}

	if len(h.pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(h.pub.events))
	}
	e := h.pub.events[0]
	if e.Kind != domain.ChangeAdded {
		t.Errorf("expected ADDED, got %s", e.Kind)
	}
	if e.Title != "Cedar fire added" {
		t.Errorf("expected title 'Cedar fire added', got %q", e.Title)
	}
	if e.CollapseID != "{CEDAR}" {
		t.Errorf("expected collapse id {CEDAR}, got %s", e.CollapseID)
	}
}

func TestRefresh_RingDistanceBeatsOrigin(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{cedar(120, 10)}
	h.source.perimeters["irwin-cedar"] = ring(0)
	h.refresh(t, t0)

	originOnly := geospatial.Haversine(5, 0.05, 5, 0, geospatial.EarthRadius)
	d := h.store.open()[0].Properties.Distance
	if *d >= originOnly {
		t.Errorf("expected ring distance below %.1f, got %.1f", originOnly, *d)
	}
}

func TestRefresh_IsIdempotent(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{cedar(120, 10), pointOnly("{PINE}", 0.1, 3)}
	h.source.perimeters["irwin-cedar"] = ring(0)

	h.refresh(t, t0)
	h.pub.reset()

	r := h.refresh(t, t0.Add(15*time.Minute))
	if r.Unchanged != 2 || r.Added != 0 || r.Updated != 0 {
		t.Errorf("expected 2 unchanged, got %+v", r)
	}
	if n := len(h.store.all()); n != 2 {
		t.Errorf("expected 2 versions, got %d", n)
	}
	if n := h.store.perimeterCount(); n != 1 {
		t.Errorf("expected 1 perimeter, got %d", n)
	}
	if len(h.pub.events) != 0 {
		t.Errorf("expected no events, got %d", len(h.pub.events))
	}
}

func TestRefresh_PercentContainedOnlyChange(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{cedar(120, 10)}
	h.source.perimeters["irwin-cedar"] = ring(0)
	h.refresh(t, t0)
	first := h.store.open()[0]
	h.pub.reset()

	t1 := t0.Add(15 * time.Minute)
	h.source.features = []domain.Feature{cedar(120, 25)}
	r := h.refresh(t, t1)
	if r.Updated != 1 {
		t.Fatalf("expected 1 updated, got %d", r.Updated)
	}

	if len(h.pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(h.pub.events))
	}
	e := h.pub.events[0]
	if e.Title != "Cedar fire updated" {
		t.Errorf("expected title 'Cedar fire updated', got %q", e.Title)
	}
	if len(e.Changes) != 1 || e.Changes[0] != "Percent contained changed from 10% to 25%" {
		t.Errorf("unexpected changes: %v", e.Changes)
	}

	open := h.store.open()
	if len(open) != 1 {
		t.Fatalf("expected 1 open version, got %d", len(open))
	}
	if *open[0].PerimeterID != *first.PerimeterID {
		t.Errorf("expected perimeter %d carried, got %d", *first.PerimeterID, *open[0].PerimeterID)
	}
	if !open[0].StartTimestamp.Equal(t1) {
		t.Errorf("expected start %v, got %v", t1, open[0].StartTimestamp)
	}

	history, _ := h.store.Versions().History(context.Background(), "{CEDAR}")
	if len(history) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(history))
	}
	if history[0].EndTimestamp == nil || !history[0].EndTimestamp.Equal(t1) {
		t.Errorf("expected first version closed at %v, got %v", t1, history[0].EndTimestamp)
	}
}

func TestRefresh_SizeChangeReusesPerimeter(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{cedar(120, 10)}
	h.source.perimeters["irwin-cedar"] = ring(0)
	h.refresh(t, t0)
	first := h.store.open()[0]
	h.pub.reset()

	h.source.features = []domain.Feature{cedar(125, 10)}
	h.source.perimeters["irwin-cedar"] = ring(0)
	h.refresh(t, t0.Add(15*time.Minute))

	if len(h.pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(h.pub.events))
	}
	changes := h.pub.events[0].Changes
	if len(changes) != 1 || changes[0] != "Size changed from 120 acres to 125 acres" {
		t.Errorf("unexpected changes: %v", changes)
	}

	next := h.store.open()[0]
	if *next.PerimeterID != *first.PerimeterID {
		t.Errorf("expected perimeter %d reused, got %d", *first.PerimeterID, *next.PerimeterID)
	}
	if *next.Properties.Distance != *first.Properties.Distance {
		t.Errorf("expected distance %v reused, got %v", *first.Properties.Distance, *next.Properties.Distance)
	}
	if n := h.store.perimeterCount(); n != 1 {
		t.Errorf("expected 1 perimeter, got %d", n)
	}
}

func TestRefresh_NewPerimeterStored(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{cedar(120, 10)}
	h.source.perimeters["irwin-cedar"] = ring(0)
	h.refresh(t, t0)
	h.pub.reset()

	h.source.perimeters["irwin-cedar"] = ring(0.01)
	r := h.refresh(t, t0.Add(15*time.Minute))
	if r.Updated != 1 {
		t.Fatalf("expected 1 updated, got %d", r.Updated)
	}
	if n := h.store.perimeterCount(); n != 2 {
		t.Errorf("expected 2 perimeters, got %d", n)
	}

	found := false
	for _, c := range h.pub.events[0].Changes {
		if c == "Perimeter changed from 1 to 2" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected perimeter change, got %v", h.pub.events[0].Changes)
	}
}

func TestRefresh_CarriesPerimeterForward(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{cedar(120, 10)}
	h.source.perimeters["irwin-cedar"] = ring(0)
	h.refresh(t, t0)
	first := h.store.open()[0]
	h.pub.reset()

	delete(h.source.perimeters, "irwin-cedar")
	r := h.refresh(t, t0.Add(15*time.Minute))
	if r.PerimeterCarryForwards != 1 {
		t.Errorf("expected 1 carry forward, got %d", r.PerimeterCarryForwards)
	}
	if r.Unchanged != 1 {
		t.Errorf("expected 1 unchanged, got %+v", r)
	}
	if len(h.pub.events) != 0 {
		t.Errorf("expected no events, got %d", len(h.pub.events))
	}

	open := h.store.open()[0]
	if open.ID != first.ID {
		t.Errorf("expected version %d to stay open, got %d", first.ID, open.ID)
	}
}

func TestRefresh_PerimeterFetchFailureTreatedAsAbsent(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{cedar(120, 10)}
	h.source.perimeterFn = func(ctx context.Context, irwinID string) (*domain.PerimeterGeometry, error) {
		return nil, errors.New("upstream 503")
	}

	r := h.refresh(t, t0)
	if r.PerimeterFetchFailures != 1 {
		t.Errorf("expected 1 perimeter failure, got %d", r.PerimeterFetchFailures)
	}
	if r.Added != 1 {
		t.Fatalf("expected 1 added, got %d", r.Added)
	}
	if h.store.open()[0].PerimeterID != nil {
		t.Error("expected no perimeter id")
	}
}

func TestRefresh_IgnoresNewIncidentsOutOfRange(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{pointOnly("{FAR}", 3, 5)}

	r := h.refresh(t, t0)
	if r.OutOfRange != 1 {
		t.Errorf("expected 1 out of range, got %d", r.OutOfRange)
	}
	if n := len(h.store.all()); n != 0 {
		t.Errorf("expected no versions, got %d", n)
	}
}

func TestRefresh_TracksIncidentThatMovesAway(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{pointOnly("{PINE}", 0.1, 3)}
	h.refresh(t, t0)

	h.source.features = []domain.Feature{pointOnly("{PINE}", 3, 3)}
	r := h.refresh(t, t0.Add(15*time.Minute))
	if r.OutOfRange != 0 || r.Updated != 1 {
		t.Errorf("expected tracked incident to update, got %+v", r)
	}
}

func TestRefresh_DedupesFeaturesByGlobalID(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	older := pointOnly("{PINE}", 0.1, 3)
	newer := pointOnly("{PINE}", 0.1, 3)
	newer.Properties.ModifiedAt = t0
	newer.Properties.Name = "Pine Ridge"
	h.source.features = []domain.Feature{older, newer}

	r := h.refresh(t, t0)
	if r.Fetched != 1 || r.Added != 1 {
		t.Fatalf("expected one incident, got %+v", r)
	}
	if name := h.store.open()[0].Properties.Name; name != "Pine Ridge" {
		t.Errorf("expected newest record, got %s", name)
	}
}

func TestRefresh_ClosesVanishedIncident(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{pointOnly("{PINE}", 0.1, 3), pointOnly("{OAK}", 0.1, 4)}
	h.refresh(t, t0)
	h.pub.reset()

	contained := t0.Add(10 * time.Minute)
	h.source.features = []domain.Feature{pointOnly("{OAK}", 0.1, 4)}
	h.source.history["{PINE}"] = &domain.HistoryRecord{GlobalID: "{PINE}", ContainmentAt: &contained}

	r := h.refresh(t, t0.Add(time.Hour))
	if r.Closed != 1 {
		t.Fatalf("expected 1 closed, got %d", r.Closed)
	}
	if len(h.source.lookups) != 1 || h.source.lookups[0] != "{PINE}" {
		t.Errorf("expected lookup for {PINE} only, got %v", h.source.lookups)
	}

	history, _ := h.store.Versions().History(context.Background(), "{PINE}")
	if len(history) != 1 {
		t.Fatalf("expected 1 version, got %d", len(history))
	}
	if history[0].EndTimestamp == nil || !history[0].EndTimestamp.Equal(contained) {
		t.Errorf("expected end %v, got %v", contained, history[0].EndTimestamp)
	}
	if len(h.pub.events) != 0 {
		t.Errorf("expected no events for closings, got %d", len(h.pub.events))
	}
}

func TestRefresh_ClosingEvictsCachedCurrent(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	reads := usecases.NewHistoryService(h.store, h.cache, time.UTC)
	ctx := context.Background()

	h.source.features = []domain.Feature{pointOnly("{PINE}", 0.1, 3)}
	h.refresh(t, t0)

	v, err := reads.Current(ctx, "{PINE}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.EndTimestamp != nil {
		t.Fatalf("expected open version, got end %v", v.EndTimestamp)
	}

	contained := t0.Add(10 * time.Minute)
	h.source.features = nil
	h.source.history["{PINE}"] = &domain.HistoryRecord{GlobalID: "{PINE}", ContainmentAt: &contained}
	h.refresh(t, t0.Add(time.Hour))

	v, err = reads.Current(ctx, "{PINE}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.EndTimestamp == nil || !v.EndTimestamp.Equal(contained) {
		t.Errorf("expected closed version ending %v, got %v", contained, v.EndTimestamp)
	}
}

func TestRefresh_ClampsClosingToStart(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{pointOnly("{PINE}", 0.1, 3)}
	h.refresh(t, t0)

	early := t0.Add(-72 * time.Hour)
	h.source.features = nil
	h.source.history["{PINE}"] = &domain.HistoryRecord{OutAt: &early}
	h.refresh(t, t0.Add(time.Hour))

	v := h.store.all()[0]
	if v.EndTimestamp == nil || !v.EndTimestamp.Equal(t0) {
		t.Errorf("expected end clamped to %v, got %v", t0, v.EndTimestamp)
	}
}

func TestRefresh_ClosesStaleIncidentByFallOff(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{pointOnly("{PINE}", 0.1, 3)}
	h.refresh(t, t0)

	modified := t0.Add(48 * time.Hour)
	h.source.features = nil
	h.source.history["{PINE}"] = &domain.HistoryRecord{ModifiedAt: &modified, Size: ptr(50.0)}

	r := h.refresh(t, t0.Add(20*24*time.Hour))
	if r.Closed != 1 {
		t.Fatalf("expected 1 closed, got %d", r.Closed)
	}
	v := h.store.all()[0]
	if !v.EndTimestamp.Equal(modified) {
		t.Errorf("expected end %v, got %v", modified, v.EndTimestamp)
	}
}

func TestRefresh_LeavesOpenWithoutClosingSignal(t *testing.T) {
	tests := []struct {
		name      string
		historyFn func(ctx context.Context, globalID string) (*domain.HistoryRecord, error)
	}{
		{
			name: "unknown incident",
			historyFn: func(ctx context.Context, globalID string) (*domain.HistoryRecord, error) {
				return nil, nil
			},
		},
		{
			name: "recently modified",
			historyFn: func(ctx context.Context, globalID string) (*domain.HistoryRecord, error) {
				m := t0
				return &domain.HistoryRecord{ModifiedAt: &m, Size: ptr(500.0)}, nil
			},
		},
		{
			name: "lookup error",
			historyFn: func(ctx context.Context, globalID string) (*domain.HistoryRecord, error) {
				return nil, errors.New("upstream 500")
			},
		},
		{
			name: "lookup timeout",
			historyFn: func(ctx context.Context, globalID string) (*domain.HistoryRecord, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, usecases.RefreshOptions{LookupTimeout: 20 * time.Millisecond})
			h.source.features = []domain.Feature{pointOnly("{PINE}", 0.1, 3)}
			h.refresh(t, t0)

			h.source.features = nil
			h.source.historyFn = tt.historyFn
			r := h.refresh(t, t0.Add(time.Hour))

			if r.LeftOpen != 1 || r.Closed != 0 {
				t.Errorf("expected version left open, got %+v", r)
			}
			if n := len(h.store.open()); n != 1 {
				t.Errorf("expected 1 open version, got %d", n)
			}
		})
	}
}

func TestRefresh_RollsBackOnWriteFailure(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{cedar(120, 10)}
	h.source.perimeters["irwin-cedar"] = ring(0)
	h.store.insertVersionErr = errors.New("disk full")

	_, err := h.svc.Refresh(context.Background(), t0)
	if err == nil {
		t.Fatal("expected error")
	}
	if n := len(h.store.all()); n != 0 {
		t.Errorf("expected no versions, got %d", n)
	}
	if n := h.store.perimeterCount(); n != 0 {
		t.Errorf("expected perimeter insert rolled back, got %d", n)
	}
	if len(h.pub.events) != 0 {
		t.Errorf("expected no events, got %d", len(h.pub.events))
	}
}

func TestRefresh_NotificationFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{pointOnly("{PINE}", 0.1, 3), pointOnly("{OAK}", 0.1, 4)}
	h.pub.failFor = "{OAK}"

	r := h.refresh(t, t0)
	if r.NotificationsFailed != 1 {
		t.Errorf("expected 1 failed notification, got %d", r.NotificationsFailed)
	}
	if n := len(h.store.open()); n != 2 {
		t.Errorf("expected 2 open versions, got %d", n)
	}
	if len(h.pub.events) != 1 || h.pub.events[0].GlobalID != "{PINE}" {
		t.Errorf("expected {PINE} event only, got %v", h.pub.events)
	}
}

func TestRefresh_FetchFailureAborts(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.fetchErr = errors.New("connection refused")

	if _, err := h.svc.Refresh(context.Background(), t0); err == nil {
		t.Fatal("expected error")
	}
	if h.store.commits != 0 {
		t.Errorf("expected no commit, got %d", h.store.commits)
	}
}

func TestRefresh_CancelledContext(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{pointOnly("{PINE}", 0.1, 3)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Refresh(ctx, t0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := len(h.store.all()); n != 0 {
		t.Errorf("expected no versions, got %d", n)
	}
}

func TestRefresh_CachesDistances(t *testing.T) {
	h := newHarness(t, usecases.RefreshOptions{})
	h.source.features = []domain.Feature{cedar(120, 10)}
	h.source.perimeters["irwin-cedar"] = ring(0)
	h.refresh(t, t0)

	keys := h.cache.keysWithPrefix("distance:test-trail:2026-07-01:")
	if len(keys) != 1 {
		t.Fatalf("expected 1 distance key, got %v", keys)
	}
	if ttl := h.cache.ttls[keys[0]]; ttl != int((36 * time.Hour).Seconds()) {
		t.Errorf("expected 36h ttl, got %d", ttl)
	}
}

func TestRefresh_DistanceCacheFollowsTrailGeometry(t *testing.T) {
	cache := newMemCache()
	opts := usecases.RefreshOptions{TrackingRadius: 200000}
	feature := pointOnly("{FAR}", 1, 5)

	distanceAlong := func(lon float64) float64 {
		t.Helper()
		idx, err := geospatial.NewTrailIndex(&domain.Trail{
			Name:     "test-trail",
			Segments: []domain.Polyline{{domain.NewPoint(lon, 0), domain.NewPoint(lon, 10)}},
		}, geospatial.DefaultMargin)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		store := newMemStore()
		source := &mockSource{features: []domain.Feature{feature}}
		svc := usecases.NewIncidentService(source, store, nil, cache, idx, opts)
		if _, err := svc.Refresh(context.Background(), t0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		open := store.open()
		if len(open) != 1 || open[0].Properties.Distance == nil {
			t.Fatalf("expected 1 open version with a distance, got %+v", open)
		}
		return *open[0].Properties.Distance
	}

	before := distanceAlong(0)
	after := distanceAlong(0.999)

	if before < 100000 {
		t.Fatalf("expected about 111 km to the first trail, got %.0f m", before)
	}
	if after > 1000 {
		t.Errorf("expected about 111 m to the re-imported trail, got %.0f m", after)
	}
	if keys := cache.keysWithPrefix("distance:test-trail:2026-07-01:"); len(keys) != 2 {
		t.Errorf("expected one distance key per trail geometry, got %v", keys)
	}
}

func TestRefresh_EventIDsStableAcrossRetries(t *testing.T) {
	run := func(at time.Time) string {
		t.Helper()
		h := newHarness(t, usecases.RefreshOptions{})
		h.source.features = []domain.Feature{cedar(120, 10)}
		h.refresh(t, at)
		if len(h.pub.events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(h.pub.events))
		}
		return h.pub.events[0].ID
	}

	first := run(t0)
	if first == "" {
		t.Fatal("expected an event id")
	}
	if retry := run(t0); retry != first {
		t.Errorf("expected retried cycle to reuse id %s, got %s", first, retry)
	}
	if later := run(t0.Add(time.Hour)); later == first {
		t.Errorf("expected a new id for a later cycle, got %s again", later)
	}
}
