package geospatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mortvola/tracker/internal/core/domain"
)

func pt(lon, lat float64) domain.Point { return domain.NewPoint(lon, lat) }

func TestProjectOntoSegment(t *testing.T) {
	tests := []struct {
		name    string
		a, b, p domain.Point
		want    *domain.Point
		wantT   float64
	}{
		{"midpoint", pt(0, 0), pt(10, 0), pt(5, 3), &domain.Point{5, 0}, 0.5},
		{"endpoint b", pt(0, 0), pt(10, 0), pt(10, -2), &domain.Point{10, 0}, 1},
		{"before a", pt(0, 0), pt(10, 0), pt(-1, 0), nil, -0.1},
		{"past b", pt(0, 0), pt(10, 0), pt(12, 1), nil, 1.2},
		{"degenerate", pt(3, 4), pt(3, 4), pt(9, 9), &domain.Point{3, 4}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, gotT := ProjectOntoSegment(tt.a, tt.b, tt.p)
			assert.InDelta(t, tt.wantT, gotT, 1e-12)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, tt.want[0], got[0], 1e-12)
			assert.InDelta(t, tt.want[1], got[1], 1e-12)
		})
	}
}

func TestNearestPointOnPolyline(t *testing.T) {
	line := domain.Polyline{pt(0, 0), pt(10, 0), pt(10, 10)}

	got, dist, idx, err := NearestPointOnPolyline(line, pt(12, 5))
	require.NoError(t, err)
	assert.Equal(t, pt(10, 5), got)
	assert.InDelta(t, 2, dist, 1e-12)
	assert.Equal(t, 1, idx)
}

func TestNearestPointOnPolyline_ClampsToEndpoints(t *testing.T) {
	line := domain.Polyline{pt(0, 0), pt(10, 0)}

	got, dist, _, err := NearestPointOnPolyline(line, pt(-3, 4))
	require.NoError(t, err)
	assert.Equal(t, pt(0, 0), got)
	assert.InDelta(t, 5, dist, 1e-12)

	got, _, _, err = NearestPointOnPolyline(line, pt(13, 0))
	require.NoError(t, err)
	assert.Equal(t, pt(10, 0), got)
}

func TestNearestPointOnPolyline_NoFartherThanAnyVertex(t *testing.T) {
	line := domain.Polyline{pt(-120.5, 38.1), pt(-120.4, 38.3), pt(-120.1, 38.2), pt(-119.9, 38.6)}
	probes := []domain.Point{
		pt(-120.45, 38.2),  // between vertex 0 and 1
		pt(-120.25, 38.25), // between vertex 1 and 2
		pt(-120.0, 38.4),   // between vertex 2 and 3
	}

	for _, p := range probes {
		_, dist, _, err := NearestPointOnPolyline(line, p)
		require.NoError(t, err)
		for _, v := range line {
			vd := math.Hypot(v[0]-p[0], v[1]-p[1])
			assert.LessOrEqual(t, dist, vd+1e-12)
		}
	}
}

func TestNearestPointOnPolyline_SinglePoint(t *testing.T) {
	got, dist, idx, err := NearestPointOnPolyline(domain.Polyline{pt(1, 1)}, pt(4, 5))
	require.NoError(t, err)
	assert.Equal(t, pt(1, 1), got)
	assert.InDelta(t, 5, dist, 1e-12)
	assert.Equal(t, 0, idx)
}

func TestNearestPointOnPolyline_Empty(t *testing.T) {
	_, _, _, err := NearestPointOnPolyline(nil, pt(0, 0))
	assert.ErrorIs(t, err, domain.ErrEmptyPolyline)
}

func TestHaversine(t *testing.T) {
	// One degree of longitude on the equator.
	assert.InDelta(t, 111319.49, Haversine(0, 0, 0, 1, EarthRadius), 0.01)
	assert.Equal(t, 0.0, Haversine(38.5, -120.2, 38.5, -120.2, EarthRadius))
	// Symmetric.
	assert.InDelta(t,
		Haversine(38.0675, -120.5436, 38.1391, -120.4561, EarthRadius),
		Haversine(38.1391, -120.4561, 38.0675, -120.5436, EarthRadius),
		1e-9)
}

func TestExtentsOf(t *testing.T) {
	e, ok := ExtentsOf(domain.Polyline{pt(-120, 38), pt(-121, 39.5), pt(-119.5, 37)})
	require.True(t, ok)
	assert.Equal(t, domain.Extents{North: 39.5, South: 37, East: -119.5, West: -121}, e)

	_, ok = ExtentsOf(nil)
	assert.False(t, ok)
}

func TestExpandExtents(t *testing.T) {
	e := ExpandExtents(domain.Extents{North: 10, South: 0, East: 5, West: -5}, 0.5)
	assert.Equal(t, domain.Extents{North: 10.5, South: -0.5, East: 5.5, West: -5.5}, e)
}

func TestSegmentIntersectsRectangle(t *testing.T) {
	rectMin, rectMax := pt(0, 0), pt(10, 10)

	tests := []struct {
		name   string
		s1, s2 domain.Point
		want   bool
	}{
		{"both inside", pt(1, 1), pt(2, 2), true},
		{"first inside", pt(5, 5), pt(20, 20), true},
		{"second inside", pt(-5, -5), pt(5, 5), true},
		{"both outside", pt(-5, -5), pt(-1, -1), false},
		{"endpoint on boundary", pt(0, 5), pt(-3, 5), false},
		// Crosses the rectangle with both endpoints outside. Only endpoints
		// are tested, so this is reported as not intersecting.
		{"crossing without endpoint inside", pt(-5, 5), pt(15, 5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SegmentIntersectsRectangle(tt.s1, tt.s2, rectMin, rectMax))
		})
	}
}
