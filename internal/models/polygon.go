package models

import (
	"fmt"
	"math"
)

// Polygon is an enclosed shape detected from a cycle in the vertex graph.
// Points is the ordered boundary; SegmentIDs lists the component segments.
type Polygon struct {
	ID         string   `json:"id"`
	Points     []Point  `json:"points"`
	Filled     bool     `json:"filled"`
	Label      string   `json:"label,omitempty"`
	SegmentIDs []string `json:"segmentIds,omitempty"`
	TypeName   string   `json:"typeName,omitempty"`
}

// Area returns the absolute enclosed area via the shoelace formula.
// Zero for fewer than three boundary points.
func (p Polygon) Area() float64 {
	if len(p.Points) < 3 {
		return 0
	}
	var sum float64
	n := len(p.Points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += p.Points[i].X*p.Points[j].Y - p.Points[j].X*p.Points[i].Y
	}
	return math.Abs(sum) / 2
}

// Bounds returns the bounding box of the boundary points.
func (p Polygon) Bounds() BBox {
	if len(p.Points) == 0 {
		return BBox{}
	}
	b := BBox{MinX: p.Points[0].X, MinY: p.Points[0].Y, MaxX: p.Points[0].X, MaxY: p.Points[0].Y}
	for _, pt := range p.Points[1:] {
		b.MinX = math.Min(b.MinX, pt.X)
		b.MinY = math.Min(b.MinY, pt.Y)
		b.MaxX = math.Max(b.MaxX, pt.X)
		b.MaxY = math.Max(b.MaxY, pt.Y)
	}
	return b
}

// PolygonTypeName returns the display name for a polygon with n corners.
func PolygonTypeName(n int) string {
	switch n {
	case 3:
		return "triangle"
	case 4:
		return "quadrilateral"
	case 5:
		return "pentagon"
	case 6:
		return "hexagon"
	case 7:
		return "heptagon"
	case 8:
		return "octagon"
	default:
		return fmt.Sprintf("%d-sided polygon", n)
	}
}
