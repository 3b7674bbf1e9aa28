package parser

import (
	"regexp"
	"strconv"
)

// The path mini-language: move, line, horizontal/vertical line and close in
// absolute and relative form. Curves and arcs are recognized so their
// arguments are consumed and the pen position stays correct, but they emit
// no segments; a curved edge simply does not become touchable. That is a
// deliberate approximation, not an error.

var (
	pathCmdRe = regexp.MustCompile(`(?i)([mlhvzcsqta])([^mlhvzcsqta]*)`)
	numberRe  = regexp.MustCompile(`-?[0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?`)
)

// parseCoords extracts every number in a command's argument blob. The
// matcher splits fused runs like "10-5.5" correctly, which naive splitting
// on separators does not.
func parseCoords(args string) []float64 {
	matches := numberRe.FindAllString(args, -1)
	if len(matches) == 0 {
		return nil
	}
	coords := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		coords = append(coords, v)
	}
	return coords
}

// interpretPath expands a path command string into straight-line segments.
// minSegment is the close-path threshold: a Z whose gap back to the subpath
// start is shorter than this is a no-op.
func interpretPath(d string, strokeWidth, minSegment float64) []rawLine {
	var lines []rawLine
	var curX, curY float64
	var startX, startY float64
	started := false

	emit := func(x1, y1, x2, y2 float64) {
		lines = append(lines, rawLine{x1: x1, y1: y1, x2: x2, y2: y2, strokeWidth: strokeWidth})
	}

	for _, m := range pathCmdRe.FindAllStringSubmatch(d, -1) {
		cmd := m[1]
		coords := parseCoords(m[2])

		switch cmd {
		case "M", "m":
			if len(coords) < 2 {
				continue
			}
			if cmd == "m" && started {
				curX += coords[0]
				curY += coords[1]
			} else {
				curX = coords[0]
				curY = coords[1]
			}
			startX, startY = curX, curY
			started = true
			// Additional pairs after a move are implicit line-tos.
			for i := 2; i+1 < len(coords); i += 2 {
				nx, ny := coords[i], coords[i+1]
				if cmd == "m" {
					nx += curX
					ny += curY
				}
				emit(curX, curY, nx, ny)
				curX, curY = nx, ny
			}

		case "L", "l":
			for i := 0; i+1 < len(coords); i += 2 {
				nx, ny := coords[i], coords[i+1]
				if cmd == "l" {
					nx += curX
					ny += curY
				}
				emit(curX, curY, nx, ny)
				curX, curY = nx, ny
			}

		case "H", "h":
			for _, v := range coords {
				nx := v
				if cmd == "h" {
					nx += curX
				}
				emit(curX, curY, nx, curY)
				curX = nx
			}

		case "V", "v":
			for _, v := range coords {
				ny := v
				if cmd == "v" {
					ny += curY
				}
				emit(curX, curY, curX, ny)
				curY = ny
			}

		case "Z", "z":
			dx := curX - startX
			dy := curY - startY
			if dx*dx+dy*dy > minSegment*minSegment {
				emit(curX, curY, startX, startY)
			}
			curX, curY = startX, startY

		case "C", "c":
			curX, curY = consumeCurve(coords, 6, cmd == "c", curX, curY)
		case "S", "s":
			curX, curY = consumeCurve(coords, 4, cmd == "s", curX, curY)
		case "Q", "q":
			curX, curY = consumeCurve(coords, 4, cmd == "q", curX, curY)
		case "T", "t":
			curX, curY = consumeCurve(coords, 2, cmd == "t", curX, curY)
		case "A", "a":
			curX, curY = consumeCurve(coords, 7, cmd == "a", curX, curY)
		}
	}

	return lines
}

// consumeCurve advances the pen across unsupported curve/arc groups of
// argsPerGroup arguments whose final two values are the group endpoint.
func consumeCurve(coords []float64, argsPerGroup int, relative bool, curX, curY float64) (float64, float64) {
	for i := 0; i+argsPerGroup <= len(coords); i += argsPerGroup {
		ex := coords[i+argsPerGroup-2]
		ey := coords[i+argsPerGroup-1]
		if relative {
			ex += curX
			ey += curY
		}
		curX, curY = ex, ey
	}
	return curX, curY
}
