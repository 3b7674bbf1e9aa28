package models

// Label is a finished text annotation, usually a measurement such as "50 ft".
// The associator may have merged several raw fragments into one label and
// moved its anchor; SegmentID is empty when no segment qualified.
type Label struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Text      string  `json:"text"`
	SegmentID string  `json:"segmentId,omitempty"`
	Width     float64 `json:"width"`  // estimated glyph-box width
	Height    float64 `json:"height"` // estimated glyph-box height
}

// Position returns the label anchor as a Point.
func (l Label) Position() Point {
	return Point{X: l.X, Y: l.Y}
}

// Bounds returns the estimated glyph box centered on the anchor.
func (l Label) Bounds() BBox {
	return BBox{
		MinX: l.X - l.Width/2,
		MinY: l.Y - l.Height/2,
		MaxX: l.X + l.Width/2,
		MaxY: l.Y + l.Height/2,
	}
}
