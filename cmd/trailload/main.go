package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Mortvola/tracker/internal/adapters/postgres"
	"github.com/Mortvola/tracker/internal/adapters/valkey"
	"github.com/Mortvola/tracker/internal/core/ports"
	"github.com/Mortvola/tracker/internal/core/usecases"
	"github.com/Mortvola/tracker/internal/pkg/config"
	"github.com/Mortvola/tracker/internal/pkg/geospatial"
	"github.com/Mortvola/tracker/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("usage: trailload <name> <file.geojson>")
	}
	name, path := os.Args[1], os.Args[2]

	cfg, err := config.Load("tracker-trailload")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, "text")

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	trail, err := geospatial.TrailFromGeoJSON(name, data)
	if err != nil {
		log.Fatalf("%s: %v", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), 1)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// The cache only needs to be reachable so a stale trail is evicted.
	var cache ports.CacheService
	if c, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, cached trail not evicted", "error", err)
	} else {
		defer c.Close()
		cache = c
	}

	svc := usecases.NewTrailService(postgres.NewTrailRepo(db), cache)
	if err := svc.Import(ctx, trail); err != nil {
		log.Fatalf("import: %v", err)
	}

	idx, err := geospatial.NewTrailIndex(trail, 0)
	if err != nil {
		log.Fatalf("index: %v", err)
	}
	e := idx.Extents()
	slog.Info("trail loaded",
		"name", trail.Name, "segments", len(trail.Segments),
		"north", e.North, "south", e.South, "east", e.East, "west", e.West)
}
