package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mortvola/tracker/internal/core/domain"
	"github.com/Mortvola/tracker/internal/pkg/metrics"
)

const servicesRoot = "https://services3.arcgis.com/T4QMspbfLg3qTGWY/arcgis/rest/services"

// Default layer endpoints.
const (
	DefaultLocationsURL  = servicesRoot + "/Current_WildlandFire_Locations/FeatureServer/0/query"
	DefaultPerimetersURL = servicesRoot + "/Current_WildlandFire_Perimeters/FeatureServer/0/query"
	DefaultHistoryURL    = servicesRoot + "/CY_WildlandFire_Locations_ToDate/FeatureServer/0/query"
)

// Config configures the client.
type Config struct {
	LocationsURL      string
	PerimetersURL     string
	HistoryURL        string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	PageSize          int
	UserAgent         string
}

// Client queries the ArcGIS wildland fire layers. It implements
// ports.FeatureSource.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new ArcGIS client. Zero config values fall back to
// the public NIFC layers and conservative pacing.
func NewClient(cfg Config) *Client {
	if cfg.LocationsURL == "" {
		cfg.LocationsURL = DefaultLocationsURL
	}
	if cfg.PerimetersURL == "" {
		cfg.PerimetersURL = DefaultPerimetersURL
	}
	if cfg.HistoryURL == "" {
		cfg.HistoryURL = DefaultHistoryURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 2000
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "tracker/1.0"
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// FetchFeatures returns every current incident. Records that fail
// validation are logged and dropped.
func (c *Client) FetchFeatures(ctx context.Context) ([]domain.Feature, error) {
	params := url.Values{}
	params.Set("where", "1=1")
	params.Set("outFields", locationFields)
	params.Set("outSR", "4326")
	params.Set("f", "json")
	params.Set("orderByFields", "OBJECTID")
	params.Set("resultRecordCount", strconv.Itoa(c.cfg.PageSize))

	var features []domain.Feature
	for offset := 0; ; {
		params.Set("resultOffset", strconv.Itoa(offset))

		set, err := query[locationAttributes, pointGeometry](ctx, c, "locations", c.cfg.LocationsURL, params)
		if err != nil {
			return nil, err
		}

		for _, raw := range set.Features {
			f, reason, err := toFeature(raw)
			if err != nil {
				metrics.UpstreamRejected.WithLabelValues(reason).Inc()
				slog.Warn("rejected upstream incident", "global_id", str(raw.Attributes.GlobalID), "error", err)
				continue
			}
			features = append(features, f)
		}

		if !set.ExceededTransferLimit || len(set.Features) == 0 {
			break
		}
		offset += len(set.Features)
	}

	return features, nil
}

// FetchPerimeter returns the current perimeter of an incident, or nil when
// the perimeter layer has none.
func (c *Client) FetchPerimeter(ctx context.Context, irwinID string) (*domain.PerimeterGeometry, error) {
	params := url.Values{}
	params.Set("where", fmt.Sprintf("irwin_IrwinID='%s'", braced(irwinID)))
	params.Set("outFields", "")
	params.Set("outSR", "4326")
	params.Set("f", "json")

	set, err := query[struct{}, polygonGeometry](ctx, c, "perimeters", c.cfg.PerimetersURL, params)
	if err != nil {
		return nil, err
	}
	if len(set.Features) == 0 || set.Features[0].Geometry == nil {
		return nil, nil
	}

	geom := toPerimeter(set.Features[0].Geometry)
	if len(geom.Rings) == 0 {
		return nil, nil
	}
	return geom, nil
}

// LookupHistory returns the year-to-date record of an incident, or nil when
// the history layer does not know it.
func (c *Client) LookupHistory(ctx context.Context, globalID string) (*domain.HistoryRecord, error) {
	params := url.Values{}
	params.Set("where", fmt.Sprintf("GlobalID='%s'", braced(globalID)))
	params.Set("outFields", historyFields)
	params.Set("returnGeometry", "false")
	params.Set("f", "json")

	set, err := query[historyAttributes, noGeometry](ctx, c, "history", c.cfg.HistoryURL, params)
	if err != nil {
		return nil, err
	}
	if len(set.Features) == 0 {
		return nil, nil
	}

	a := set.Features[0].Attributes
	return &domain.HistoryRecord{
		GlobalID:      globalID,
		ContainmentAt: epochMillis(a.ContainmentDateTime),
		ControlAt:     epochMillis(a.ControlDateTime),
		OutAt:         epochMillis(a.FireOutDateTime),
		ModifiedAt:    epochMillis(a.ModifiedOnDateTime),
		Size:          a.DailyAcres,
	}, nil
}

// query runs one paced GET against a layer and decodes the feature set.
func query[A any, G any](ctx context.Context, c *Client, endpoint, base string, params url.Values) (*featureSet[A, G], error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: wait for rate limiter: %w", endpoint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%s: execute request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	metrics.UpstreamRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: unexpected status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var set featureSet[A, G]
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	if set.Error != nil {
		return nil, fmt.Errorf("%s: arcgis error %d: %s", endpoint, set.Error.Code, set.Error.Message)
	}
	return &set, nil
}

// toFeature validates a raw location record. The returned reason labels
// rejections for metrics.
func toFeature(raw feature[locationAttributes, pointGeometry]) (domain.Feature, string, error) {
	a := raw.Attributes

	globalID := strings.TrimSpace(str(a.GlobalID))
	if globalID == "" {
		return domain.Feature{}, "missing_global_id", fmt.Errorf("%w: missing GlobalID", domain.ErrInvalidFeature)
	}
	if raw.Geometry == nil || raw.Geometry.X == nil || raw.Geometry.Y == nil {
		return domain.Feature{}, "missing_geometry", fmt.Errorf("%w: %s has no geometry", domain.ErrInvalidFeature, globalID)
	}

	origin := domain.NewPoint(*raw.Geometry.X, *raw.Geometry.Y)
	if !origin.Valid() {
		return domain.Feature{}, "invalid_coordinates", fmt.Errorf("%w: %s has coordinates %v", domain.ErrInvalidFeature, globalID, origin)
	}

	props := domain.IncidentProperties{
		Name:                strings.TrimSpace(str(a.IncidentName)),
		Category:            str(a.IncidentTypeCategory),
		Size:                a.DailyAcres,
		PercentContained:    a.PercentContained,
		ContainmentDateTime: epochMillis(a.ContainmentDateTime),
		Lat:                 origin.Lat(),
		Lng:                 origin.Lon(),
	}
	if t := epochMillis(a.FireDiscoveryDateTime); t != nil {
		props.DiscoveredAt = *t
	}
	if t := epochMillis(a.ModifiedOnDateTime); t != nil {
		props.ModifiedAt = *t
	}

	return domain.Feature{
		GlobalID:   globalID,
		IrwinID:    strings.TrimSpace(str(a.IrwinID)),
		Origin:     origin,
		Properties: props,
	}, "", nil
}

// toPerimeter keeps well-formed coordinate pairs and drops empty rings.
func toPerimeter(g *polygonGeometry) *domain.PerimeterGeometry {
	geom := &domain.PerimeterGeometry{}
	for _, raw := range g.Rings {
		ring := make(domain.Ring, 0, len(raw))
		for _, xy := range raw {
			if len(xy) < 2 {
				continue
			}
			p := domain.NewPoint(xy[0], xy[1])
			if !p.Valid() {
				continue
			}
			ring = append(ring, p)
		}
		if len(ring) > 0 {
			geom.Rings = append(geom.Rings, ring)
		}
	}
	return geom
}

// braced normalises an ArcGIS GUID to its "{...}" form, escaped for use
// inside a quoted where clause.
func braced(id string) string {
	id = strings.Trim(strings.TrimSpace(id), "{}")
	return "{" + strings.ReplaceAll(id, "'", "''") + "}"
}
