package geospatial

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mortvola/tracker/internal/core/domain"
)

func TestStitchSegments(t *testing.T) {
	tests := []struct {
		name  string
		lines []domain.Polyline
		want  []domain.Polyline
	}{
		{
			name:  "forward join",
			lines: []domain.Polyline{{pt(0, 0), pt(0, 1)}, {pt(0, 1), pt(0, 2)}},
			want:  []domain.Polyline{{pt(0, 0), pt(0, 1), pt(0, 2)}},
		},
		{
			name:  "following line reversed",
			lines: []domain.Polyline{{pt(0, 0), pt(0, 1)}, {pt(0, 2), pt(0, 1)}},
			want:  []domain.Polyline{{pt(0, 0), pt(0, 1), pt(0, 2)}},
		},
		{
			name:  "preceding line in order",
			lines: []domain.Polyline{{pt(0, 1), pt(0, 2)}, {pt(0, 0), pt(0, 1)}},
			want:  []domain.Polyline{{pt(0, 0), pt(0, 1), pt(0, 2)}},
		},
		{
			name:  "preceding line reversed",
			lines: []domain.Polyline{{pt(0, 1), pt(0, 2)}, {pt(0, 1), pt(0, 0)}},
			want:  []domain.Polyline{{pt(0, 0), pt(0, 1), pt(0, 2)}},
		},
		{
			name: "chain out of file order",
			lines: []domain.Polyline{
				{pt(0, 2), pt(0, 3)},
				{pt(0, 5), pt(0, 4)},
				{pt(0, 1), pt(0, 2)},
				{pt(0, 3), pt(0, 4)},
				{pt(0, 0), pt(0, 1)},
			},
			want: []domain.Polyline{{pt(0, 0), pt(0, 1), pt(0, 2), pt(0, 3), pt(0, 4), pt(0, 5)}},
		},
		{
			name: "disjoint groups",
			lines: []domain.Polyline{
				{pt(0, 0), pt(0, 1)},
				{pt(5, 5), pt(5, 6)},
				{pt(0, 1), pt(0, 2)},
				{pt(5, 7), pt(5, 6)},
			},
			want: []domain.Polyline{
				{pt(0, 0), pt(0, 1), pt(0, 2)},
				{pt(5, 5), pt(5, 6), pt(5, 7)},
			},
		},
		{
			name:  "empty lines dropped",
			lines: []domain.Polyline{{}, {pt(1, 1), pt(1, 2)}},
			want:  []domain.Polyline{{pt(1, 1), pt(1, 2)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StitchSegments(tt.lines))
		})
	}
}

func TestStitchSegments_DoesNotModifyInput(t *testing.T) {
	lines := []domain.Polyline{{pt(0, 0), pt(0, 1)}, {pt(0, 2), pt(0, 1)}}
	StitchSegments(lines)
	assert.Equal(t, domain.Polyline{pt(0, 2), pt(0, 1)}, lines[1])
}
