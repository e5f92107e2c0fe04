package usecases_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Mortvola/tracker/internal/core/domain"
	"github.com/Mortvola/tracker/internal/core/ports"
)

// --- In-memory HistoryStore ---

type memState struct {
	versions        []domain.FeatureVersion
	perimeters      map[int64]domain.Perimeter
	nextVersionID   int64
	nextPerimeterID int64
}

func (s *memState) clone() *memState {
	c := &memState{
		versions:        append([]domain.FeatureVersion(nil), s.versions...),
		perimeters:      make(map[int64]domain.Perimeter, len(s.perimeters)),
		nextVersionID:   s.nextVersionID,
		nextPerimeterID: s.nextPerimeterID,
	}
	for k, v := range s.perimeters {
		c.perimeters[k] = v
	}
	return c
}

type memStore struct {
	mu    *sync.Mutex
	state *memState

	insertVersionErr error
	commits          int
}

func newMemStore() *memStore {
	return &memStore{mu: &sync.Mutex{}, state: &memState{perimeters: map[int64]domain.Perimeter{}}}
}

func (s *memStore) Versions() ports.FeatureVersionRepository { return &memVersions{s} }
func (s *memStore) Perimeters() ports.PerimeterRepository    { return &memPerimeters{s} }

func (s *memStore) WithinTx(ctx context.Context, fn func(tx ports.HistoryStore) error) error {
	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()

	tx := &memStore{mu: &sync.Mutex{}, state: snapshot, insertVersionErr: s.insertVersionErr}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = tx.state
	s.commits++
	s.mu.Unlock()
	return nil
}

func (s *memStore) all() []domain.FeatureVersion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FeatureVersion(nil), s.state.versions...)
}

func (s *memStore) open() []domain.FeatureVersion {
	var out []domain.FeatureVersion
	for _, v := range s.all() {
		if v.EndTimestamp == nil {
			out = append(out, v)
		}
	}
	return out
}

func (s *memStore) perimeterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.perimeters)
}

type memVersions struct{ s *memStore }

func (r *memVersions) ListOpen(ctx context.Context) ([]domain.FeatureVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.FeatureVersion
	for _, v := range r.s.state.versions {
		if v.EndTimestamp == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memVersions) GetOpen(ctx context.Context, globalID string) (*domain.FeatureVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.state.versions {
		if v.GlobalID == globalID && v.EndTimestamp == nil {
			return &v, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memVersions) GetLatest(ctx context.Context, globalID string) (*domain.FeatureVersion, error) {
	h, _ := r.History(ctx, globalID)
	if len(h) == 0 {
		return nil, domain.ErrNotFound
	}
	return &h[len(h)-1], nil
}

func (r *memVersions) History(ctx context.Context, globalID string) ([]domain.FeatureVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.FeatureVersion
	for _, v := range r.s.state.versions {
		if v.GlobalID == globalID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTimestamp.Before(out[j].StartTimestamp) })
	return out, nil
}

func (r *memVersions) ActiveAt(ctx context.Context, at time.Time) ([]domain.FeatureVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.FeatureVersion
	for _, v := range r.s.state.versions {
		if !v.StartTimestamp.After(at) && (v.EndTimestamp == nil || v.EndTimestamp.After(at)) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memVersions) Insert(ctx context.Context, v *domain.FeatureVersion) error {
	if r.s.insertVersionErr != nil {
		return r.s.insertVersionErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.state.versions {
		if existing.GlobalID == v.GlobalID && existing.EndTimestamp == nil {
			return errors.New("duplicate open version for " + v.GlobalID)
		}
	}
	r.s.state.nextVersionID++
	v.ID = r.s.state.nextVersionID
	r.s.state.versions = append(r.s.state.versions, *v)
	return nil
}

func (r *memVersions) Close(ctx context.Context, id int64, end time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.state.versions {
		v := &r.s.state.versions[i]
		if v.ID == id && v.EndTimestamp == nil {
			e := end
			v.EndTimestamp = &e
			return nil
		}
	}
	return domain.ErrNotFound
}

type memPerimeters struct{ s *memStore }

func (r *memPerimeters) GetByID(ctx context.Context, id int64) (*domain.Perimeter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.state.perimeters[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *memPerimeters) Insert(ctx context.Context, p *domain.Perimeter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.state.nextPerimeterID++
	p.ID = r.s.state.nextPerimeterID
	r.s.state.perimeters[p.ID] = *p
	return nil
}

// --- Mock FeatureSource ---

type mockSource struct {
	mu          sync.Mutex
	features    []domain.Feature
	fetchErr    error
	perimeters  map[string]*domain.PerimeterGeometry
	perimeterFn func(ctx context.Context, irwinID string) (*domain.PerimeterGeometry, error)
	history     map[string]*domain.HistoryRecord
	historyFn   func(ctx context.Context, globalID string) (*domain.HistoryRecord, error)
	lookups     []string
}

func (m *mockSource) FetchFeatures(ctx context.Context) ([]domain.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return append([]domain.Feature(nil), m.features...), nil
}

func (m *mockSource) FetchPerimeter(ctx context.Context, irwinID string) (*domain.PerimeterGeometry, error) {
	if m.perimeterFn != nil {
		return m.perimeterFn(ctx, irwinID)
	}
	return m.perimeters[irwinID], nil
}

func (m *mockSource) LookupHistory(ctx context.Context, globalID string) (*domain.HistoryRecord, error) {
	m.mu.Lock()
	m.lookups = append(m.lookups, globalID)
	m.mu.Unlock()
	if m.historyFn != nil {
		return m.historyFn(ctx, globalID)
	}
	return m.history[globalID], nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu      sync.Mutex
	events  []*domain.ChangeEvent
	failFor string
}

func (m *mockPublisher) PublishChange(ctx context.Context, e *domain.ChangeEvent) error {
	if m.failFor != "" && e.GlobalID == m.failFor {
		return errors.New("broker unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *mockPublisher) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttlSeconds
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) keysWithPrefix(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}
