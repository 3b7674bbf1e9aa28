package parser

// Tolerances collects every empirically tuned distance the conversion
// pipeline depends on. The defaults below were calibrated against scanned
// geometry worksheets; diagram corpora with different glyph sizes or DPI
// override them through a calibration profile rather than code changes.
type Tolerances struct {
	// VertexSnap is the per-axis distance within which two endpoints
	// collapse into one vertex.
	VertexSnap float64 `yaml:"vertexSnap" json:"vertexSnap"`
	// MinSegmentLength is the length under which a segment is treated as
	// extraction noise and dropped. Close-path commands shorter than this
	// are no-ops.
	MinSegmentLength float64 `yaml:"minSegmentLength" json:"minSegmentLength"`
	// BandTolerance is the vertical distance within which text fragments
	// count as sitting on the same line.
	BandTolerance float64 `yaml:"bandTolerance" json:"bandTolerance"`
	// MergeGap is the horizontal distance within which same-band fragments
	// merge into one label.
	MergeGap float64 `yaml:"mergeGap" json:"mergeGap"`
	// UnitMergeGap relaxes MergeGap when one side is a bare unit token,
	// which renderers tend to place with a wider gap from its number.
	UnitMergeGap float64 `yaml:"unitMergeGap" json:"unitMergeGap"`
	// CrossPairRadius is the search radius of the second pass that pairs a
	// leftover bare number with a leftover bare unit across bands.
	CrossPairRadius float64 `yaml:"crossPairRadius" json:"crossPairRadius"`
	// AxisAssocDistance is the maximum perpendicular distance for
	// associating a label with a horizontal or vertical segment.
	AxisAssocDistance float64 `yaml:"axisAssocDistance" json:"axisAssocDistance"`
	// DiagAssocDistance is the looser limit for diagonal segments.
	DiagAssocDistance float64 `yaml:"diagAssocDistance" json:"diagAssocDistance"`
	// AssocOverhang extends the segment span so labels slightly past an
	// endpoint still qualify.
	AssocOverhang float64 `yaml:"assocOverhang" json:"assocOverhang"`
	// TieBreakWindow is the distance band within which association
	// candidates are re-ranked by the secondary plausibility score.
	TieBreakWindow float64 `yaml:"tieBreakWindow" json:"tieBreakWindow"`
	// AmbiguousDistance marks a label as sitting too close to its segment;
	// only such labels get their position corrected.
	AmbiguousDistance float64 `yaml:"ambiguousDistance" json:"ambiguousDistance"`
	// CorrectedOffset is where an ambiguous label is re-anchored, measured
	// from the segment along its normal.
	CorrectedOffset float64 `yaml:"correctedOffset" json:"correctedOffset"`
	// MaxCycleLength bounds polygon cycle enumeration.
	MaxCycleLength int `yaml:"maxCycleLength" json:"maxCycleLength"`
	// VertexHitRadius, LineHitTolerance and LabelHitPadding are the
	// per-primitive touch tolerances. Vertices are the tightest target,
	// labels the loosest.
	VertexHitRadius  float64 `yaml:"vertexHitRadius" json:"vertexHitRadius"`
	LineHitTolerance float64 `yaml:"lineHitTolerance" json:"lineHitTolerance"`
	LabelHitPadding  float64 `yaml:"labelHitPadding" json:"labelHitPadding"`
}

// DefaultTolerances returns the calibration used when no profile is loaded.
func DefaultTolerances() Tolerances {
	return Tolerances{
		VertexSnap:        8.0,
		MinSegmentLength:  1.0,
		BandTolerance:     10.0,
		MergeGap:          50.0,
		UnitMergeGap:      65.0,
		CrossPairRadius:   350.0,
		AxisAssocDistance: 30.0,
		DiagAssocDistance: 45.0,
		AssocOverhang:     10.0,
		TieBreakWindow:    5.0,
		AmbiguousDistance: 8.0,
		CorrectedOffset:   16.0,
		MaxCycleLength:    8,
		VertexHitRadius:   10.0,
		LineHitTolerance:  15.0,
		LabelHitPadding:   25.0,
	}
}
