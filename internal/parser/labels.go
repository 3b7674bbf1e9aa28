package parser

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tactile-graphics/backend/internal/models"
)

// Label association runs as a two-phase pipeline: first build finished label
// candidates from the raw fragments (band merge, cross-band pairing, noise
// suppression), then resolve segment association once over the finished set.
// No candidate is mutated while its band is still being scanned, which keeps
// the result independent of input ordering quirks.

// labelCandidate is a text fragment, possibly already merged from several
// raw fragments.
type labelCandidate struct {
	x, y     float64
	text     string
	fontSize float64
}

// Measurement unit tokens recognized during merging. A trailing period is
// tolerated ("ft." renders often in scanned worksheets).
var unitTokens = map[string]struct{}{
	"in": {}, "ft": {}, "yd": {}, "m": {}, "cm": {}, "mm": {}, "mi": {},
}

// Fused digit-unit runs are a common OCR glitch: "35in" or "12FT." with the
// separating space lost.
var fusedUnitRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([A-Za-z]+)\.?$`)

// normalizeUnitToken strips a trailing period and lower-cases the token,
// reporting whether it is a recognized unit.
func normalizeUnitToken(s string) (string, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	s = strings.ToLower(s)
	_, ok := unitTokens[s]
	return s, ok
}

func isUnitToken(s string) bool {
	_, ok := normalizeUnitToken(s)
	return ok
}

// isNumericText reports whether s is a bare number (digits with at most one
// decimal point).
func isNumericText(s string) bool {
	if s == "" {
		return false
	}
	digits := false
	dot := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = true
		case c == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits
}

func endsWithDigitOrDot(s string) bool {
	if s == "" {
		return false
	}
	c := s[len(s)-1]
	return (c >= '0' && c <= '9') || c == '.'
}

// canonicalizeFragment repairs fused digit-unit runs, inserting the lost
// space and lower-casing the unit.
func canonicalizeFragment(text string) string {
	m := fusedUnitRe.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	unit, ok := normalizeUnitToken(m[2])
	if !ok {
		return text
	}
	return m[1] + " " + unit
}

// estimateGlyphBox sizes a label for hit-testing from its glyph count and
// font size. Crude, but labels only need a touch target, not typography.
func estimateGlyphBox(text string, fontSize float64) (w, h float64) {
	if fontSize <= 0 {
		fontSize = defaultFontSize
	}
	return 0.6 * fontSize * float64(utf8.RuneCountInString(text)), fontSize
}

// buildLabels turns raw text fragments into finished labels and associates
// each with its nearest qualifying segment. Returns the labels and the
// segments updated with attached label text.
func buildLabels(texts []rawText, segments []models.LineSegment, tol Tolerances) ([]models.Label, []models.LineSegment) {
	cands := combineFragments(texts, tol)
	return associateLabels(cands, segments, tol)
}

// combineFragments runs band merging, cross-band pairing and suppression.
func combineFragments(texts []rawText, tol Tolerances) []labelCandidate {
	cands := make([]labelCandidate, 0, len(texts))
	for _, t := range texts {
		text := canonicalizeFragment(strings.TrimSpace(t.text))
		if text == "" {
			continue
		}
		cands = append(cands, labelCandidate{x: t.x, y: t.y, text: text, fontSize: t.fontSize})
	}
	if len(cands) == 0 {
		return cands
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].y != cands[j].y {
			return cands[i].y < cands[j].y
		}
		return cands[i].x < cands[j].x
	})

	merged := mergeBands(cands, tol)
	merged = crossPair(merged, tol)

	// A unit token that never found a number is meaningless on its own and
	// is never shown standalone.
	out := merged[:0]
	for _, c := range merged {
		if isUnitToken(c.text) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// mergeBands groups fragments into horizontal bands and merges each band
// left to right.
func mergeBands(cands []labelCandidate, tol Tolerances) []labelCandidate {
	merged := make([]labelCandidate, 0, len(cands))
	used := make([]bool, len(cands))

	for i := range cands {
		if used[i] {
			continue
		}
		band := []int{i}
		used[i] = true
		baseY := cands[i].y
		for j := i + 1; j < len(cands); j++ {
			if used[j] {
				continue
			}
			if cands[j].y-baseY > tol.BandTolerance {
				break
			}
			band = append(band, j)
			used[j] = true
		}

		sort.SliceStable(band, func(a, b int) bool {
			return cands[band[a]].x < cands[band[b]].x
		})

		cur := cands[band[0]]
		for _, bj := range band[1:] {
			next := cands[bj]
			gap := next.x - cur.x
			limit := tol.MergeGap
			if isUnitToken(cur.text) || isUnitToken(next.text) {
				limit = tol.UnitMergeGap
			}
			if gap <= limit {
				cur = mergeCandidates(cur, next)
			} else {
				merged = append(merged, cur)
				cur = next
			}
		}
		merged = append(merged, cur)
	}
	return merged
}

// mergeCandidates combines two adjacent fragments into one. The anchor stays
// at the numeric fragment's original position so the finished label keeps
// its visual alignment with the measured feature.
func mergeCandidates(cur, next labelCandidate) labelCandidate {
	// A bare "0" directly after a number that already ends in a digit or a
	// decimal point is almost always a misread period from OCR. Dropping it
	// here loses nothing: a genuinely lone "0" never reaches this merge.
	if next.text == "0" && endsWithDigitOrDot(cur.text) {
		return cur
	}

	if isUnitToken(cur.text) && isNumericText(next.text) {
		unit, _ := normalizeUnitToken(cur.text)
		return labelCandidate{
			x: next.x, y: next.y, fontSize: next.fontSize,
			text: next.text + " " + unit,
		}
	}

	nextText := next.text
	if unit, ok := normalizeUnitToken(nextText); ok {
		nextText = unit
	}
	cur.text = cur.text + " " + nextText
	return cur
}

// crossPair matches leftover bare numbers with leftover bare units across
// bands. Coarse grid bucketing at the search radius bounds the pass on
// pathological inputs with very many fragments.
func crossPair(cands []labelCandidate, tol Tolerances) []labelCandidate {
	var numIdx, unitIdx []int
	for i, c := range cands {
		switch {
		case isNumericText(c.text):
			numIdx = append(numIdx, i)
		case isUnitToken(c.text):
			unitIdx = append(unitIdx, i)
		}
	}
	if len(numIdx) == 0 || len(unitIdx) == 0 {
		return cands
	}

	cell := tol.CrossPairRadius
	if cell <= 0 {
		cell = 1
	}
	cellKey := func(x, y float64) [2]int {
		return [2]int{int(math.Floor(x / cell)), int(math.Floor(y / cell))}
	}

	buckets := make(map[[2]int][]int, len(unitIdx))
	for _, ui := range unitIdx {
		k := cellKey(cands[ui].x, cands[ui].y)
		buckets[k] = append(buckets[k], ui)
	}

	consumed := make(map[int]bool, len(unitIdx))
	for _, ni := range numIdx {
		n := cands[ni]
		k := cellKey(n.x, n.y)
		best := -1
		bestDist := tol.CrossPairRadius
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, ui := range buckets[[2]int{k[0] + dx, k[1] + dy}] {
					if consumed[ui] {
						continue
					}
					u := cands[ui]
					d := math.Hypot(n.x-u.x, n.y-u.y)
					if d <= bestDist && (best == -1 || d < bestDist) {
						best = ui
						bestDist = d
					}
				}
			}
		}
		if best >= 0 {
			consumed[best] = true
			unit, _ := normalizeUnitToken(cands[best].text)
			cands[ni].text = n.text + " " + unit
		}
	}

	out := cands[:0]
	for i, c := range cands {
		if consumed[i] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// lineProjection returns the perpendicular distance from (px,py) to the
// segment's infinite line, the raw projection parameter (unclamped), and
// the segment length.
func lineProjection(px, py float64, seg models.LineSegment) (perp, tRaw, segLen float64) {
	dx := seg.X2 - seg.X1
	dy := seg.Y2 - seg.Y1
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(px-seg.X1, py-seg.Y1), 0, 0
	}
	segLen = math.Sqrt(lenSq)
	tRaw = ((px-seg.X1)*dx + (py-seg.Y1)*dy) / lenSq
	perp = math.Abs((py-seg.Y1)*dx-(px-seg.X1)*dy) / segLen
	return perp, tRaw, segLen
}

// assocMatch is one qualifying label-to-segment pairing.
type assocMatch struct {
	idx     int
	perp    float64
	overrun float64
	tRaw    float64
}

// nearestSegment finds the best segment for a label anchor. Qualification
// is joint: perpendicular distance under the orientation-dependent limit,
// and projection within the span plus the overhang margin. Near-tied
// candidates re-rank by perp+overrun, which penalizes a label hanging past
// an endpoint without excluding it.
func nearestSegment(x, y float64, segments []models.LineSegment, tol Tolerances) (assocMatch, bool) {
	var matches []assocMatch
	for i, seg := range segments {
		perp, tRaw, segLen := lineProjection(x, y, seg)
		if segLen == 0 {
			continue
		}

		limit := tol.DiagAssocDistance
		if seg.Orientation() != models.OrientationDiagonal {
			limit = tol.AxisAssocDistance
		}
		if perp > limit {
			continue
		}

		s := tRaw * segLen
		var overrun float64
		if s < 0 {
			overrun = -s
		} else if s > segLen {
			overrun = s - segLen
		}
		if overrun > tol.AssocOverhang {
			continue
		}

		matches = append(matches, assocMatch{idx: i, perp: perp, overrun: overrun, tRaw: tRaw})
	}
	if len(matches) == 0 {
		return assocMatch{}, false
	}

	best := matches[0]
	for _, m := range matches[1:] {
		if m.perp < best.perp {
			best = m
		}
	}

	chosen := best
	bestScore := best.perp + best.overrun
	for _, m := range matches {
		if m.perp > best.perp+tol.TieBreakWindow {
			continue
		}
		if score := m.perp + m.overrun; score < bestScore {
			chosen = m
			bestScore = score
		}
	}
	return chosen, true
}

// associateLabels resolves each candidate against the segment set and
// applies position correction where the placement is ambiguous.
func associateLabels(cands []labelCandidate, segments []models.LineSegment, tol Tolerances) ([]models.Label, []models.LineSegment) {
	labels := make([]models.Label, 0, len(cands))
	for i, c := range cands {
		w, h := estimateGlyphBox(c.text, c.fontSize)
		lbl := models.Label{
			ID:     fmt.Sprintf("label%d", i),
			X:      c.x,
			Y:      c.y,
			Text:   c.text,
			Width:  w,
			Height: h,
		}

		if m, ok := nearestSegment(c.x, c.y, segments, tol); ok {
			seg := segments[m.idx]
			lbl.SegmentID = seg.ID
			if seg.Label == "" {
				segments[m.idx] = seg.WithLabel(c.text)
			}
			// Only a label sitting on or nearly on its segment gets moved;
			// a comfortable placement is author intent and stays.
			if m.perp < tol.AmbiguousDistance {
				lbl.X, lbl.Y = correctedPosition(seg, m.tRaw, c.x, c.y, tol)
			}
		}

		labels = append(labels, lbl)
	}
	return labels, segments
}

// correctedPosition re-anchors an ambiguous label a fixed offset from the
// segment along its normal, on the side the label already occupies. A label
// exactly on the stroke goes to the upper side.
func correctedPosition(seg models.LineSegment, tRaw, x, y float64, tol Tolerances) (float64, float64) {
	t := tRaw
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	nx := seg.X1 + t*(seg.X2-seg.X1)
	ny := seg.Y1 + t*(seg.Y2-seg.Y1)

	dx := seg.X2 - seg.X1
	dy := seg.Y2 - seg.Y1
	l := math.Hypot(dx, dy)
	if l == 0 {
		return x, y
	}
	ux := -dy / l
	uy := dx / l

	side := (x-nx)*ux + (y-ny)*uy
	if side < 0 || (side == 0 && uy > 0) {
		ux, uy = -ux, -uy
	}
	return nx + ux*tol.CorrectedOffset, ny + uy*tol.CorrectedOffset
}
