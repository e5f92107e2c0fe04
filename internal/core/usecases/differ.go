package usecases

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Mortvola/tracker/internal/core/domain"
)

// Decision is the outcome of comparing a candidate version with the open one.
type Decision struct {
	Kind    domain.ChangeKind
	Changes []string
}

// DiffVersion decides whether next opens a new version. A nil prev means the
// incident is not tracked yet.
func DiffVersion(prev, next *domain.FeatureVersion) Decision {
	if prev == nil {
		return Decision{Kind: domain.ChangeAdded}
	}

	changes := DescribeChanges(prev, next)
	if len(changes) == 0 {
		return Decision{Kind: domain.ChangeNone}
	}
	return Decision{Kind: domain.ChangeUpdated, Changes: changes}
}

// DescribeChanges lists one "X changed from A to B" line per tracked field
// that differs between the two versions.
func DescribeChanges(prev, next *domain.FeatureVersion) []string {
	a, b := prev.Properties, next.Properties

	var changes []string
	add := func(label, from, to string) {
		changes = append(changes, fmt.Sprintf("%s changed from %s to %s", label, from, to))
	}

	if a.Name != b.Name {
		add("Name", orUnknown(a.Name), orUnknown(b.Name))
	}
	if !a.DiscoveredAt.Equal(b.DiscoveredAt) {
		add("Discovered", formatTime(a.DiscoveredAt), formatTime(b.DiscoveredAt))
	}
	if !a.ModifiedAt.Equal(b.ModifiedAt) {
		add("Modified", formatTime(a.ModifiedAt), formatTime(b.ModifiedAt))
	}
	if a.Category != b.Category {
		add("Category", orUnknown(a.Category), orUnknown(b.Category))
	}
	if !equalFloat(a.Size, b.Size) {
		add("Size", formatFloat(a.Size, " acres"), formatFloat(b.Size, " acres"))
	}
	if !equalFloat(a.PercentContained, b.PercentContained) {
		add("Percent contained", formatFloat(a.PercentContained, "%"), formatFloat(b.PercentContained, "%"))
	}
	if !equalTime(a.ContainmentDateTime, b.ContainmentDateTime) {
		add("Containment", formatOptTime(a.ContainmentDateTime), formatOptTime(b.ContainmentDateTime))
	}
	if a.Lat != b.Lat {
		add("Latitude", strconv.FormatFloat(a.Lat, 'f', -1, 64), strconv.FormatFloat(b.Lat, 'f', -1, 64))
	}
	if a.Lng != b.Lng {
		add("Longitude", strconv.FormatFloat(a.Lng, 'f', -1, 64), strconv.FormatFloat(b.Lng, 'f', -1, 64))
	}
	if !equalFloat(a.Distance, b.Distance) {
		add("Distance", formatMeters(a.Distance), formatMeters(b.Distance))
	}
	if !equalID(prev.PerimeterID, next.PerimeterID) {
		add("Perimeter", formatID(prev.PerimeterID), formatID(next.PerimeterID))
	}

	return changes
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func equalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptTime(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return formatTime(*t)
}

func formatFloat(v *float64, unit string) string {
	if v == nil {
		return "unknown"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + unit
}

func formatMeters(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.1f m", *v)
}

func formatID(id *int64) string {
	if id == nil {
		return "none"
	}
	return strconv.FormatInt(*id, 10)
}
