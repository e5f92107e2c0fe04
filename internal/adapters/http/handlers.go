package http

import (
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"

	"github.com/Mortvola/tracker/internal/core/domain"
	"github.com/Mortvola/tracker/internal/pkg/geospatial"
)

// TrailSegment is one trail segment in encoded polyline form.
type TrailSegment struct {
	Points   int            `json:"points"`
	Extents  domain.Extents `json:"extents"`
	Polyline string         `json:"polyline"`
}

// TrailResponse describes a trail without its raw coordinates.
type TrailResponse struct {
	Name     string         `json:"name"`
	Extents  domain.Extents `json:"extents"`
	Segments []TrailSegment `json:"segments"`
}

// newTrailResponse encodes each segment as a Google encoded polyline
// (latitude first, five digits of precision).
func newTrailResponse(t *domain.Trail) (*TrailResponse, error) {
	idx, err := geospatial.NewTrailIndex(t, 0)
	if err != nil {
		return nil, err
	}

	resp := &TrailResponse{Name: t.Name, Extents: idx.Extents()}
	for _, seg := range t.Segments {
		coords := make([][]float64, len(seg))
		for i, p := range seg {
			coords[i] = []float64{p.Lat(), p.Lon()}
		}
		e, _ := geospatial.ExtentsOf(seg)
		resp.Segments = append(resp.Segments, TrailSegment{
			Points:   len(seg),
			Extents:  e,
			Polyline: string(polyline.EncodeCoords(coords)),
		})
	}
	return resp, nil
}

// pathParam returns a decoded route parameter. Global ids arrive braced and
// percent-encoded.
func pathParam(c *fiber.Ctx, key string) string {
	raw := c.Params(key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// GetTrailHandler returns a trail's extents and encoded segments.
func GetTrailHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := pathParam(c, "name")
		if name == "" {
			return errBadRequest(c, "trail name is required")
		}
		t, err := deps.Trails.GetByName(c.UserContext(), name)
		if err != nil {
			return errFromDomain(c, err, "trail")
		}
		resp, err := newTrailResponse(t)
		if err != nil {
			return errFromDomain(c, err, "trail")
		}
		return c.JSON(resp)
	}
}

// ListIncidentsHandler returns the open version of every tracked incident.
func ListIncidentsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		versions, err := deps.History.ListOpen(c.UserContext())
		if err != nil {
			return errFromDomain(c, err, "incidents")
		}

		page, pg := paginate(c, versions, 100, 500)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// ActiveIncidentsHandler returns the versions active at the end of a day.
func ActiveIncidentsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		date := c.Query("date")
		if date == "" {
			return errBadRequest(c, "date query parameter is required")
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return errBadRequest(c, "date must be formatted YYYY-MM-DD")
		}

		versions, err := deps.History.ActiveOn(c.UserContext(), date)
		if err != nil {
			return errFromDomain(c, err, "incidents")
		}
		if versions == nil {
			versions = []domain.FeatureVersion{}
		}
		return c.JSON(versions)
	}
}

// GetIncidentHandler returns the open, or most recent, version of an incident.
func GetIncidentHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := pathParam(c, "globalId")
		if id == "" {
			return errBadRequest(c, "incident id is required")
		}
		v, err := deps.History.Current(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err, "incident")
		}
		return c.JSON(v)
	}
}

// IncidentHistoryHandler returns every version of an incident, oldest first.
func IncidentHistoryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := pathParam(c, "globalId")
		if id == "" {
			return errBadRequest(c, "incident id is required")
		}
		versions, err := deps.History.History(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err, "incident")
		}
		if len(versions) == 0 {
			return errNotFound(c, "incident not found")
		}
		return c.JSON(versions)
	}
}

// GetPerimeterHandler returns a stored perimeter as a GeoJSON Feature.
func GetPerimeterHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || id <= 0 {
			return errBadRequest(c, "perimeter id must be a positive integer")
		}
		p, err := deps.History.Perimeter(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err, "perimeter")
		}

		c.Set(fiber.HeaderContentType, "application/geo+json")
		body, err := perimeterFeature(p).MarshalJSON()
		if err != nil {
			return errInternal(c, "failed to encode perimeter")
		}
		return c.Send(body)
	}
}

// perimeterFeature converts ArcGIS-style rings to a GeoJSON polygon. Each
// ring becomes one polygon ring; ring order is preserved.
func perimeterFeature(p *domain.Perimeter) *geojson.Feature {
	poly := make(orb.Polygon, 0, len(p.Geometry.Rings))
	for _, r := range p.Geometry.Rings {
		ring := make(orb.Ring, len(r))
		for i, pt := range r {
			ring[i] = orb.Point{pt.Lon(), pt.Lat()}
		}
		poly = append(poly, ring)
	}

	f := geojson.NewFeature(poly)
	f.ID = p.ID
	f.Properties["created_at"] = p.CreatedAt.UTC().Format(time.RFC3339)
	return f
}
