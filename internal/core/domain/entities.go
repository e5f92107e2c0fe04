package domain

import (
	"time"
)

// IncidentProperties is the tracked property bag of a wildfire incident.
// Every field here takes part in version diffing.
type IncidentProperties struct {
	Name                string     `json:"name"`
	DiscoveredAt        time.Time  `json:"discovered_at"`
	ModifiedAt          time.Time  `json:"modified_at"`
	Category            string     `json:"category"`
	Size                *float64   `json:"size"` // acres
	PercentContained    *float64   `json:"percent_contained"`
	ContainmentDateTime *time.Time `json:"containment_date_time"`
	Lat                 float64    `json:"lat"`
	Lng                 float64    `json:"lng"`
	Distance            *float64   `json:"distance"` // meters to the trail
}

// Feature is a validated incident as returned by the feature source.
type Feature struct {
	GlobalID   string             `json:"global_id"`
	IrwinID    string             `json:"irwin_id,omitempty"`
	Origin     Point              `json:"origin"`
	Properties IncidentProperties `json:"properties"`
	Perimeter  *PerimeterGeometry `json:"perimeter,omitempty"`
}

// FeatureVersion is an immutable snapshot of an incident valid over
// [StartTimestamp, EndTimestamp). A nil EndTimestamp marks the open version.
type FeatureVersion struct {
	ID             int64              `json:"id"`
	GlobalID       string             `json:"global_id"`
	IrwinID        string             `json:"irwin_id,omitempty"`
	PerimeterID    *int64             `json:"perimeter_id"`
	Properties     IncidentProperties `json:"properties"`
	StartTimestamp time.Time          `json:"start_timestamp"`
	EndTimestamp   *time.Time         `json:"end_timestamp"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Open reports whether the version is the current one for its incident.
func (v *FeatureVersion) Open() bool {
	return v.EndTimestamp == nil
}

// ChangeKind is the outcome of diffing a fetched incident against its open version.
type ChangeKind string

const (
	ChangeNone    ChangeKind = "NONE"
	ChangeAdded   ChangeKind = "ADDED"
	ChangeUpdated ChangeKind = "UPDATED"
)

// ChangeEvent is published for every added or updated incident.
type ChangeEvent struct {
	ID         string     `json:"id"`
	Kind       ChangeKind `json:"kind"`
	GlobalID   string     `json:"global_id"`
	IrwinID    string     `json:"irwin_id,omitempty"`
	Name       string     `json:"name"`
	Title      string     `json:"title"`
	Changes    []string   `json:"changes,omitempty"`
	Distance   *float64   `json:"distance,omitempty"`
	CollapseID string     `json:"collapse_id"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// HistoryRecord is the year-to-date record of an incident used to decide
// when a vanished incident ended.
type HistoryRecord struct {
	GlobalID      string     `json:"global_id"`
	ContainmentAt *time.Time `json:"containment_at,omitempty"`
	ControlAt     *time.Time `json:"control_at,omitempty"`
	OutAt         *time.Time `json:"out_at,omitempty"`
	ModifiedAt    *time.Time `json:"modified_at,omitempty"`
	Size          *float64   `json:"size,omitempty"`
}

// CycleReport summarises one refresh cycle.
type CycleReport struct {
	CycleID                string    `json:"cycle_id"`
	RefreshedAt            time.Time `json:"refreshed_at"`
	Fetched                int       `json:"fetched"`
	OutOfRange             int       `json:"out_of_range"`
	Added                  int       `json:"added"`
	Updated                int       `json:"updated"`
	Unchanged              int       `json:"unchanged"`
	Skipped                int       `json:"skipped"`
	Closed                 int       `json:"closed"`
	LeftOpen               int       `json:"left_open"`
	PerimeterFetchFailures int       `json:"perimeter_fetch_failures"`
	PerimeterCarryForwards int       `json:"perimeter_carry_forwards"`
	NotificationsFailed    int       `json:"notifications_failed"`
}
