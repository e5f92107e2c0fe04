package http

import (
	"github.com/nats-io/nats.go"

	"github.com/Mortvola/tracker/internal/adapters/postgres"
	"github.com/Mortvola/tracker/internal/adapters/valkey"
	"github.com/Mortvola/tracker/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Trails    *usecases.TrailService
	History   *usecases.HistoryService
	TrailName string // trail served by GraphQL when no name is given
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
}
