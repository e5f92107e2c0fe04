package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Mortvola/tracker/internal/adapters/postgres"
	"github.com/Mortvola/tracker/internal/pkg/config"
	"github.com/Mortvola/tracker/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|status>")
	}

	cfg, err := config.Load("tracker-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), 1)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		if err := postgres.Migrate(ctx, db.Pool); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Println("all migrations applied")
	case "status":
		pending, err := postgres.Pending(ctx, db.Pool)
		if err != nil {
			log.Fatalf("status: %v", err)
		}
		if len(pending) == 0 {
			fmt.Println("up to date")
			return
		}
		for _, name := range pending {
			fmt.Printf("PENDING  %s\n", name)
		}
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
