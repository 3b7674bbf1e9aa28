package parser

import (
	"math"

	"github.com/tactile-graphics/backend/internal/models"
)

// resolveViewBox determines the drawing's coordinate frame from the root
// tag. Resolution order: explicit viewBox attribute, then width/height,
// then the fixed default. Anything unreadable falls through silently.
func resolveViewBox(rootTag string) models.ViewBox {
	if rootTag == "" {
		return models.DefaultViewBox()
	}

	raw, ok := attrValue(rootTag, "viewBox")
	if !ok {
		// Hand-written markup often gets the casing wrong.
		raw, ok = attrValue(rootTag, "viewbox")
	}
	if ok {
		nums := parseCoords(raw)
		if len(nums) >= 4 && nums[2] >= 0 && nums[3] >= 0 {
			return models.ViewBox{MinX: nums[0], MinY: nums[1], Width: nums[2], Height: nums[3]}
		}
	}

	w := floatAttr(rootTag, "width", 0)
	h := floatAttr(rootTag, "height", 0)
	if w > 0 && h > 0 {
		return models.ViewBox{MinX: 0, MinY: 0, Width: w, Height: h}
	}

	return models.DefaultViewBox()
}

// segKey is the canonical identity of a segment for deduplication:
// endpoints ordered lexicographically and snapped to a 0.01 grid, so a
// segment and its reverse collide on the same key.
type segKey struct {
	x1, y1, x2, y2 int64
}

func gridCoord(v float64) int64 {
	return int64(math.Round(v * 100))
}

func canonicalKey(l rawLine) segKey {
	x1, y1 := gridCoord(l.x1), gridCoord(l.y1)
	x2, y2 := gridCoord(l.x2), gridCoord(l.y2)
	if x2 < x1 || (x2 == x1 && y2 < y1) {
		x1, y1, x2, y2 = x2, y2, x1, y1
	}
	return segKey{x1: x1, y1: y1, x2: x2, y2: y2}
}

// dedupeSegments drops later duplicates of a segment, including reversed
// copies. The first occurrence keeps its original direction.
func dedupeSegments(lines []rawLine) []rawLine {
	if len(lines) < 2 {
		return lines
	}
	seen := make(map[segKey]struct{}, len(lines))
	out := lines[:0]
	for _, l := range lines {
		key := canonicalKey(l)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}

// dropDegenerate removes segments shorter than minLength. These are
// extraction noise, not diagram content.
func dropDegenerate(lines []rawLine, minLength float64) []rawLine {
	out := lines[:0]
	for _, l := range lines {
		dx := l.x2 - l.x1
		dy := l.y2 - l.y1
		if math.Sqrt(dx*dx+dy*dy) < minLength {
			continue
		}
		out = append(out, l)
	}
	return out
}
