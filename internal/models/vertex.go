package models

// Vertex is a merged endpoint in the connectivity graph. All raw points
// within the snap tolerance collapse into one vertex; SegmentIDs lists every
// segment terminating here.
type Vertex struct {
	ID         string   `json:"id"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	SegmentIDs []string `json:"segmentIds"`
	Index      int      `json:"index"` // ordinal for human-facing numbering
}

// Position returns the vertex location as a Point.
func (v Vertex) Position() Point {
	return Point{X: v.X, Y: v.Y}
}

// Touches reports whether the given segment terminates at this vertex.
func (v Vertex) Touches(segmentID string) bool {
	for _, id := range v.SegmentIDs {
		if id == segmentID {
			return true
		}
	}
	return false
}
