package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would break a uniqueness rule,
	// such as a second open version for one incident.
	ErrConflict = errors.New("conflict")

	// ErrEmptyPolyline is returned by geometry functions given a polyline with no points.
	ErrEmptyPolyline = errors.New("polyline has no points")

	// ErrInvalidFeature marks upstream records rejected at the source boundary.
	ErrInvalidFeature = errors.New("invalid feature")
)
