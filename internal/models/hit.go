package models

// HitKind categorizes which primitive kind a query point resolved to.
type HitKind string

const (
	HitKindLine    HitKind = "line"
	HitKindVertex  HitKind = "vertex"
	HitKindPolygon HitKind = "polygon"
	HitKindLabel   HitKind = "label"
)

// HitResult describes what a touch/query point landed on. Results are
// produced transiently per query and never stored in the Scene.
type HitResult struct {
	Kind     HitKind `json:"kind"`
	TargetID string  `json:"targetId"`
	Distance float64 `json:"distance"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	// Progress is the clamped position along a segment in [0,1].
	// Only meaningful for line hits; feedback engines use it to vary
	// intensity along a stroke.
	Progress float64 `json:"progress,omitempty"`
	// Text carries the label text or polygon type name when relevant,
	// so audio feedback does not need a second lookup.
	Text string `json:"text,omitempty"`
}
