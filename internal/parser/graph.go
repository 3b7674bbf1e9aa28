package parser

import (
	"fmt"
	"math"

	"github.com/tactile-graphics/backend/internal/models"
)

// graphBuilder accumulates the vertex graph. Every segment endpoint and
// every explicit point marker is snapped onto an existing vertex when one
// lies within the snap tolerance on both axes; otherwise a new vertex is
// created. The first vertex found within tolerance wins; there is no
// distance minimization across candidates, which is adequate at normal
// diagram density.
type graphBuilder struct {
	snap     float64
	vertices []models.Vertex
}

func newGraphBuilder(snap float64) *graphBuilder {
	return &graphBuilder{
		snap:     snap,
		vertices: make([]models.Vertex, 0, 16),
	}
}

// findOrCreate returns the index of the vertex covering p, creating one
// when none qualifies. Worst case every point becomes its own vertex,
// which is still a valid graph.
func (b *graphBuilder) findOrCreate(p models.Point) int {
	for i := range b.vertices {
		if math.Abs(b.vertices[i].X-p.X) <= b.snap && math.Abs(b.vertices[i].Y-p.Y) <= b.snap {
			return i
		}
	}
	idx := len(b.vertices)
	b.vertices = append(b.vertices, models.Vertex{
		ID:         fmt.Sprintf("vertex%d", idx),
		X:          p.X,
		Y:          p.Y,
		SegmentIDs: make([]string, 0, 2),
		Index:      idx,
	})
	return idx
}

// addSegment snaps both endpoints and records the segment on each vertex.
func (b *graphBuilder) addSegment(seg models.LineSegment) {
	i := b.findOrCreate(seg.Start())
	b.attach(i, seg.ID)
	j := b.findOrCreate(seg.End())
	if j != i {
		b.attach(j, seg.ID)
	}
}

// addMarker snaps an explicit point marker into the graph. Markers carry
// no segment of their own; they exist so authored corner dots survive as
// touchable vertices even when no line terminates exactly there.
func (b *graphBuilder) addMarker(p models.Point) {
	b.findOrCreate(p)
}

func (b *graphBuilder) attach(idx int, segmentID string) {
	b.vertices[idx].SegmentIDs = appendUnique(b.vertices[idx].SegmentIDs, segmentID)
}

// build returns the accumulated vertices. Re-running the builder over its
// own output changes nothing: each vertex finds itself within tolerance.
func (b *graphBuilder) build() []models.Vertex {
	return b.vertices
}

// buildVertexGraph constructs the vertex set for the given segments and
// markers.
func buildVertexGraph(segments []models.LineSegment, markers []rawMarker, tol Tolerances) []models.Vertex {
	b := newGraphBuilder(tol.VertexSnap)
	for _, seg := range segments {
		b.addSegment(seg)
	}
	for _, m := range markers {
		b.addMarker(models.Point{X: m.x, Y: m.y})
	}
	return b.build()
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
