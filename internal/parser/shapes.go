package parser

import (
	"strings"

	"github.com/tactile-graphics/backend/internal/models"
)

// Raw extraction records. Geometry logic never touches markup directly:
// extractors turn tags into these typed records first, so each stage stays
// testable on its own.
type rawLine struct {
	x1, y1, x2, y2 float64
	strokeWidth    float64
}

type rawMarker struct {
	x, y, r float64
}

type rawText struct {
	x, y     float64
	fontSize float64
	text     string
}

type rawShapes struct {
	lines   []rawLine
	markers []rawMarker
	texts   []rawText
	title   string
	descs   []string
}

// Stroke width substituted when the attribute is missing or unreadable.
const defaultStrokeWidth = 2.0

// Font size substituted when the attribute is missing or unreadable.
const defaultFontSize = 16.0

// scanTags returns the attribute portion of every <name ...> occurrence,
// case-insensitively, without the angle brackets. A '>' inside a quoted
// attribute does not terminate the tag.
func scanTags(markup, name string) []string {
	var tags []string
	lower := strings.ToLower(markup)
	needle := "<" + strings.ToLower(name)

	for i := 0; i < len(lower); {
		j := strings.Index(lower[i:], needle)
		if j < 0 {
			break
		}
		start := i + j
		after := start + len(needle)
		// The tag name must end here, otherwise <line> would match <linearGradient>.
		if after < len(lower) {
			c := lower[after]
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' && c != '>' && c != '/' {
				i = start + 1
				continue
			}
		}

		end := after
		var quote byte
		for end < len(markup) {
			c := markup[end]
			if quote != 0 {
				if c == quote {
					quote = 0
				}
			} else if c == '"' || c == '\'' {
				quote = c
			} else if c == '>' {
				break
			}
			end++
		}
		if end >= len(markup) {
			// Truncated tag at end of input: take what is there.
			tags = append(tags, markup[start+1:])
			break
		}
		tags = append(tags, markup[start+1:end])
		i = end + 1
	}
	return tags
}

// element pairs a tag's attribute portion with its inner content.
type element struct {
	tag     string
	content string
}

// scanElements returns every <name ...>inner</name> occurrence. Self-closing
// tags yield empty content. A missing close tag consumes to end of input
// rather than being dropped, since garbled markup is the normal case here.
func scanElements(markup, name string) []element {
	var elems []element
	lower := strings.ToLower(markup)
	lname := strings.ToLower(name)
	needle := "<" + lname
	closeNeedle := "</" + lname

	for i := 0; i < len(lower); {
		j := strings.Index(lower[i:], needle)
		if j < 0 {
			break
		}
		start := i + j
		after := start + len(needle)
		if after < len(lower) {
			c := lower[after]
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' && c != '>' && c != '/' {
				i = start + 1
				continue
			}
		}

		end := after
		var quote byte
		for end < len(markup) {
			c := markup[end]
			if quote != 0 {
				if c == quote {
					quote = 0
				}
			} else if c == '"' || c == '\'' {
				quote = c
			} else if c == '>' {
				break
			}
			end++
		}
		if end >= len(markup) {
			elems = append(elems, element{tag: markup[start+1:]})
			break
		}

		tag := markup[start+1 : end]
		if strings.HasSuffix(strings.TrimSpace(tag), "/") {
			elems = append(elems, element{tag: tag})
			i = end + 1
			continue
		}

		closeIdx := strings.Index(lower[end+1:], closeNeedle)
		if closeIdx < 0 {
			elems = append(elems, element{tag: tag, content: markup[end+1:]})
			break
		}
		contentEnd := end + 1 + closeIdx
		elems = append(elems, element{tag: tag, content: markup[end+1 : contentEnd]})

		skip := strings.IndexByte(markup[contentEnd:], '>')
		if skip < 0 {
			break
		}
		i = contentEnd + skip + 1
	}
	return elems
}

// stripNestedTags removes any nested markup from a text run, keeping the
// character data. OCR exports wrap glyph runs in tspans; only the glyphs
// matter here.
func stripNestedTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '<':
			depth++
		case s[i] == '>':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// findRootTag returns the root element's attribute portion, or "" when the
// markup has no recognizable root.
func findRootTag(markup string) string {
	tags := scanTags(markup, "svg")
	if len(tags) == 0 {
		return ""
	}
	return tags[0]
}

// extractShapes runs every tag-family extractor over the markup. Nothing in
// here fails: unreadable tags contribute nothing and extraction moves on.
func extractShapes(markup string, tol Tolerances) rawShapes {
	var out rawShapes

	out.lines = append(out.lines, extractLines(markup)...)
	out.lines = append(out.lines, extractRects(markup)...)
	out.lines = append(out.lines, extractPolygons(markup)...)
	out.lines = append(out.lines, extractPolylines(markup)...)
	out.lines = append(out.lines, extractPaths(markup, tol)...)
	out.markers = extractMarkers(markup)
	out.texts = extractTexts(markup)
	out.title, out.descs = extractMetadata(markup)

	return out
}

func extractLines(markup string) []rawLine {
	var lines []rawLine
	for _, tag := range scanTags(markup, "line") {
		lines = append(lines, rawLine{
			x1:          floatAttr(tag, "x1", 0),
			y1:          floatAttr(tag, "y1", 0),
			x2:          floatAttr(tag, "x2", 0),
			y2:          floatAttr(tag, "y2", 0),
			strokeWidth: floatAttr(tag, "stroke-width", defaultStrokeWidth),
		})
	}
	return lines
}

// extractMarkers reads circles and ellipses as explicit point markers.
// A zero radius still marks a point; it is just not an error.
func extractMarkers(markup string) []rawMarker {
	var markers []rawMarker
	for _, tag := range scanTags(markup, "circle") {
		markers = append(markers, rawMarker{
			x: floatAttr(tag, "cx", 0),
			y: floatAttr(tag, "cy", 0),
			r: floatAttr(tag, "r", 0),
		})
	}
	for _, tag := range scanTags(markup, "ellipse") {
		markers = append(markers, rawMarker{
			x: floatAttr(tag, "cx", 0),
			y: floatAttr(tag, "cy", 0),
			r: floatAttr(tag, "rx", 0),
		})
	}
	return markers
}

func extractTexts(markup string) []rawText {
	var texts []rawText
	for _, el := range scanElements(markup, "text") {
		content := strings.TrimSpace(decodeEntities(stripNestedTags(el.content)))
		if content == "" {
			continue
		}
		texts = append(texts, rawText{
			x:        floatAttr(el.tag, "x", 0),
			y:        floatAttr(el.tag, "y", 0),
			fontSize: floatAttr(el.tag, "font-size", defaultFontSize),
			text:     content,
		})
	}
	return texts
}

func extractRects(markup string) []rawLine {
	var lines []rawLine
	for _, tag := range scanTags(markup, "rect") {
		x := floatAttr(tag, "x", 0)
		y := floatAttr(tag, "y", 0)
		w := floatAttr(tag, "width", 0)
		h := floatAttr(tag, "height", 0)
		sw := floatAttr(tag, "stroke-width", defaultStrokeWidth)
		if w <= 0 || h <= 0 {
			continue
		}
		lines = append(lines,
			rawLine{x1: x, y1: y, x2: x + w, y2: y, strokeWidth: sw},
			rawLine{x1: x + w, y1: y, x2: x + w, y2: y + h, strokeWidth: sw},
			rawLine{x1: x + w, y1: y + h, x2: x, y2: y + h, strokeWidth: sw},
			rawLine{x1: x, y1: y + h, x2: x, y2: y, strokeWidth: sw},
		)
	}
	return lines
}

func extractPolygons(markup string) []rawLine {
	var lines []rawLine
	for _, tag := range scanTags(markup, "polygon") {
		pts := parsePointsList(stringAttr(tag, "points"))
		sw := floatAttr(tag, "stroke-width", defaultStrokeWidth)
		lines = append(lines, connectPoints(pts, sw, true)...)
	}
	return lines
}

func extractPolylines(markup string) []rawLine {
	var lines []rawLine
	for _, tag := range scanTags(markup, "polyline") {
		pts := parsePointsList(stringAttr(tag, "points"))
		sw := floatAttr(tag, "stroke-width", defaultStrokeWidth)
		lines = append(lines, connectPoints(pts, sw, false)...)
	}
	return lines
}

func extractPaths(markup string, tol Tolerances) []rawLine {
	var lines []rawLine
	for _, tag := range scanTags(markup, "path") {
		d := stringAttr(tag, "d")
		if d == "" {
			continue
		}
		sw := floatAttr(tag, "stroke-width", defaultStrokeWidth)
		lines = append(lines, interpretPath(d, sw, tol.MinSegmentLength)...)
	}
	return lines
}

func extractMetadata(markup string) (string, []string) {
	var title string
	var descs []string
	if els := scanElements(markup, "title"); len(els) > 0 {
		title = strings.TrimSpace(decodeEntities(stripNestedTags(els[0].content)))
	}
	for _, el := range scanElements(markup, "desc") {
		if d := strings.TrimSpace(decodeEntities(stripNestedTags(el.content))); d != "" {
			descs = append(descs, d)
		}
	}
	return title, descs
}

// parsePointsList reads a polygon/polyline points attribute. The number
// matcher keeps fused pairs like "10-20" intact.
func parsePointsList(s string) []models.Point {
	coords := parseCoords(s)
	if len(coords) < 2 {
		return nil
	}
	pts := make([]models.Point, 0, len(coords)/2)
	for i := 0; i+1 < len(coords); i += 2 {
		pts = append(pts, models.Point{X: coords[i], Y: coords[i+1]})
	}
	return pts
}

// connectPoints turns a point list into consecutive segments, optionally
// closing the loop back to the first point.
func connectPoints(pts []models.Point, strokeWidth float64, closed bool) []rawLine {
	if len(pts) < 2 {
		return nil
	}
	lines := make([]rawLine, 0, len(pts))
	for i := 0; i+1 < len(pts); i++ {
		lines = append(lines, rawLine{
			x1: pts[i].X, y1: pts[i].Y,
			x2: pts[i+1].X, y2: pts[i+1].Y,
			strokeWidth: strokeWidth,
		})
	}
	if closed && len(pts) >= 3 {
		lines = append(lines, rawLine{
			x1: pts[len(pts)-1].X, y1: pts[len(pts)-1].Y,
			x2: pts[0].X, y2: pts[0].Y,
			strokeWidth: strokeWidth,
		})
	}
	return lines
}
