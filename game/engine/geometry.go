package engine

import "math"

// PointToSegmentDistance returns the distance from p to the closest point of segment ab.
// A degenerate segment collapses to the distance to a.
func PointToSegmentDistance(p, a, b Point) float64 {
	ab := b.Sub(a)
	lenSq := ab.Dot(ab)
	if lenSq == 0 {
		return p.DistanceTo(a)
	}
	t := p.Sub(a).Dot(ab) / lenSq
	t = math.Max(0, math.Min(1, t))
	return p.DistanceTo(a.Lerp(b, t))
}

// normalize maps a canvas point into [0,1] city space
func normalize(p Point, canvasW, canvasH float64) Point {
	return Point{X: p.X / canvasW, Y: p.Y / canvasH}
}
