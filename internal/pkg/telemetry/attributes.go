package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys recorded on refresh cycles.
const (
	AttrCycleID  = attribute.Key("cycle.id")
	AttrFetched  = attribute.Key("cycle.fetched")
	AttrAdded    = attribute.Key("cycle.added")
	AttrUpdated  = attribute.Key("cycle.updated")
	AttrClosed   = attribute.Key("cycle.closed")
	AttrSkipped  = attribute.Key("cycle.skipped")
)
