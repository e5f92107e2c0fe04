package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/Mortvola/tracker/internal/core/domain"
	"github.com/Mortvola/tracker/internal/core/ports"
)

// distanceCache memoises trail distances per calendar day, trail geometry
// and feature geometry. Entries expire after ttl; a nil backing cache
// disables it.
type distanceCache struct {
	cache      ports.CacheService
	trail      string
	trailPrint string
	ttl        time.Duration
	loc        *time.Location
}

type cachedDistance struct {
	Meters *float64 `json:"meters"`
}

func (c *distanceCache) key(at time.Time, origin domain.Point, geom *domain.PerimeterGeometry) string {
	return fmt.Sprintf("distance:%s:%s:%s:%s",
		c.trail, at.In(c.loc).Format("2006-01-02"), c.trailPrint, fingerprint(origin, geom))
}

func (c *distanceCache) get(ctx context.Context, key string) (*float64, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var v cachedDistance
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return v.Meters, true
}

func (c *distanceCache) set(ctx context.Context, key string, meters *float64) {
	if c.cache == nil {
		return
	}
	if data, err := json.Marshal(cachedDistance{Meters: meters}); err == nil {
		_ = c.cache.Set(ctx, key, data, int(c.ttl.Seconds()))
	}
}

// fingerprint hashes the exact coordinates of an origin and its perimeter.
func fingerprint(origin domain.Point, geom *domain.PerimeterGeometry) string {
	buf := make([]byte, 0, 64)
	buf = appendPoint(buf, origin)
	if geom != nil {
		for _, ring := range geom.Rings {
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(ring)))
			for _, p := range ring {
				buf = appendPoint(buf, p)
			}
		}
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:16])
}

func appendPoint(buf []byte, p domain.Point) []byte {
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(p[0]))
	return binary.BigEndian.AppendUint64(buf, math.Float64bits(p[1]))
}
