package models

import "math"

// Orientation classifies a segment's direction for association and feedback.
type Orientation string

const (
	OrientationHorizontal Orientation = "horizontal"
	OrientationVertical   Orientation = "vertical"
	OrientationDiagonal   Orientation = "diagonal"
)

// Angular window around the axes that still counts as axis-aligned, in degrees.
const orientationWindow = 15.0

// LineSegment is a straight touchable stroke in the scene.
// Segments are read-only after assembly; attaching a label goes through
// WithLabel, which returns a new value.
type LineSegment struct {
	ID          string  `json:"id"`
	X1          float64 `json:"x1"`
	Y1          float64 `json:"y1"`
	X2          float64 `json:"x2"`
	Y2          float64 `json:"y2"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Label       string  `json:"label,omitempty"`
}

// Start returns the first endpoint.
func (s LineSegment) Start() Point {
	return Point{X: s.X1, Y: s.Y1}
}

// End returns the second endpoint.
func (s LineSegment) End() Point {
	return Point{X: s.X2, Y: s.Y2}
}

// Midpoint returns the segment's middle point.
func (s LineSegment) Midpoint() Point {
	return Point{X: (s.X1 + s.X2) / 2, Y: (s.Y1 + s.Y2) / 2}
}

// Length returns the segment length.
func (s LineSegment) Length() float64 {
	return s.Start().Distance(s.End())
}

// Angle returns the segment direction in degrees in (-180, 180].
func (s LineSegment) Angle() float64 {
	return math.Atan2(s.Y2-s.Y1, s.X2-s.X1) * 180 / math.Pi
}

// Orientation classifies the segment against the axes. Angles within 15
// degrees of 0/180 are horizontal, within 15 degrees of 90/270 vertical,
// anything else diagonal. Boundary angles land on the axis-aligned side.
func (s LineSegment) Orientation() Orientation {
	a := s.Angle()
	if a < 0 {
		a += 180
	}
	switch {
	case a <= orientationWindow || a >= 180-orientationWindow:
		return OrientationHorizontal
	case a >= 90-orientationWindow && a <= 90+orientationWindow:
		return OrientationVertical
	default:
		return OrientationDiagonal
	}
}

// WithLabel returns a copy of the segment carrying the resolved label text.
func (s LineSegment) WithLabel(text string) LineSegment {
	s.Label = text
	return s
}
