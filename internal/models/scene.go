package models

// ViewBox is the source coordinate frame of a diagram.
type ViewBox struct {
	MinX   float64 `json:"minX"`
	MinY   float64 `json:"minY"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultViewBox is substituted when the markup declares no usable frame.
func DefaultViewBox() ViewBox {
	return ViewBox{MinX: 0, MinY: 0, Width: 800, Height: 600}
}

// Scene is the complete touchable form of one diagram. It is assembled once
// by the converter and read-only afterwards; hit-testing and rendering
// consult it without mutation. The Scene owns all contained primitives and
// primitives never reference the Scene back.
type Scene struct {
	ID           string        `json:"id"`
	Segments     []LineSegment `json:"segments"`
	Polygons     []Polygon     `json:"polygons"`
	Vertices     []Vertex      `json:"vertices"`
	Labels       []Label       `json:"labels"`
	ViewBox      ViewBox       `json:"viewBox"`
	Transform    Matrix        `json:"transform"`
	Title        string        `json:"title,omitempty"`
	Descriptions []string      `json:"descriptions,omitempty"`
}

// NewScene creates an empty scene with the default frame and identity
// transform.
func NewScene(id string) *Scene {
	return &Scene{
		ID:        id,
		Segments:  make([]LineSegment, 0),
		Polygons:  make([]Polygon, 0),
		Vertices:  make([]Vertex, 0),
		Labels:    make([]Label, 0),
		ViewBox:   DefaultViewBox(),
		Transform: IdentityMatrix(),
	}
}

// IsEmpty reports whether the scene contains no primitives at all.
// An empty scene is informational, not an error: unparseable markup
// degrades to this rather than failing the caller.
func (s *Scene) IsEmpty() bool {
	return len(s.Segments) == 0 && len(s.Polygons) == 0 &&
		len(s.Vertices) == 0 && len(s.Labels) == 0
}

// PrimitiveCount returns the total number of touchable primitives.
func (s *Scene) PrimitiveCount() int {
	return len(s.Segments) + len(s.Polygons) + len(s.Vertices) + len(s.Labels)
}

// SegmentByID returns the segment with the given id, if present.
func (s *Scene) SegmentByID(id string) (LineSegment, bool) {
	for _, seg := range s.Segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return LineSegment{}, false
}

// VertexByID returns the vertex with the given id, if present.
func (s *Scene) VertexByID(id string) (Vertex, bool) {
	for _, v := range s.Vertices {
		if v.ID == id {
			return v, true
		}
	}
	return Vertex{}, false
}

// SceneStats summarizes a scene for status endpoints.
type SceneStats struct {
	SegmentCount int    `json:"segmentCount"`
	VertexCount  int    `json:"vertexCount"`
	PolygonCount int    `json:"polygonCount"`
	LabelCount   int    `json:"labelCount"`
	Title        string `json:"title,omitempty"`
}

// Stats returns the per-kind primitive counts.
func (s *Scene) Stats() SceneStats {
	return SceneStats{
		SegmentCount: len(s.Segments),
		VertexCount:  len(s.Vertices),
		PolygonCount: len(s.Polygons),
		LabelCount:   len(s.Labels),
		Title:        s.Title,
	}
}
