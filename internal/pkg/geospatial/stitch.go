package geospatial

import "github.com/Mortvola/tracker/internal/core/domain"

// StitchSegments joins lines that share an exact endpoint into contiguous
// polylines. Starting from the first remaining line, it repeatedly prepends a
// line ending (or starting) at the group's first point, then appends a line
// starting (or ending) at the group's last point, reversing lines as needed.
// The shared joint point is kept once. Input slices are not modified.
func StitchSegments(lines []domain.Polyline) []domain.Polyline {
	pending := make([]domain.Polyline, 0, len(lines))
	for _, l := range lines {
		if len(l) > 0 {
			pending = append(pending, l)
		}
	}

	var groups []domain.Polyline
	for len(pending) > 0 {
		group := append(domain.Polyline(nil), pending[0]...)
		pending = pending[1:]

		for len(pending) > 0 {
			i, reverse := findTouching(pending, group[0], true)
			if i < 0 {
				break
			}
			prev := pending[i]
			if reverse {
				prev = reversed(prev)
			}
			pending = removeAt(pending, i)
			group = append(append(domain.Polyline(nil), prev[:len(prev)-1]...), group...)
		}

		for len(pending) > 0 {
			i, reverse := findTouching(pending, group[len(group)-1], false)
			if i < 0 {
				break
			}
			next := pending[i]
			if reverse {
				next = reversed(next)
			}
			pending = removeAt(pending, i)
			group = append(group, next[1:]...)
		}

		groups = append(groups, group)
	}
	return groups
}

// findTouching returns the first candidate with an endpoint at p. For a
// preceding line p must end up last, for a following line first; reverse
// reports whether the candidate has to be flipped for that.
func findTouching(candidates []domain.Polyline, p domain.Point, preceding bool) (int, bool) {
	for i, c := range candidates {
		first, last := c[0], c[len(c)-1]
		if first != p && last != p {
			continue
		}
		if preceding {
			return i, last != p
		}
		return i, first != p
	}
	return -1, false
}

func reversed(l domain.Polyline) domain.Polyline {
	out := make(domain.Polyline, len(l))
	for i, p := range l {
		out[len(l)-1-i] = p
	}
	return out
}

func removeAt(lines []domain.Polyline, i int) []domain.Polyline {
	out := make([]domain.Polyline, 0, len(lines)-1)
	out = append(out, lines[:i]...)
	return append(out, lines[i+1:]...)
}
