// Package geom implements the 2-D shapes, AABBs, and analytic collision
// tests that every other simulation package builds on.
package geom

import "math"

// Point is a 2-D world-space coordinate, in world points.
type Point struct {
	X, Y float64
}

func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

func (p Point) DistanceSquared(q Point) float64 {
	dx, dy := p.X-q.X, p.Y-q.Y
	return dx*dx + dy*dy
}

// Kind tags which variant a Shape holds.
type Kind int

const (
	KindPoint Kind = iota
	KindCircle
	KindRoundedTube
)

// Shape is a tagged union of {Point, Circle, RoundedTube}. Values are
// immutable; MoveCenter/SetRotation return a new Shape rather than mutating.
type Shape struct {
	kind     Kind
	center   Point   // Point, Circle center
	radius   float64 // Circle, RoundedTube
	p1, p2   Point   // RoundedTube endpoints, relative to center, at the shape's current rotation
	halfLen  float64 // RoundedTube: half the segment length (construction-time, immutable)
	baseAng  float64 // RoundedTube: the segment's angle at construction (rotation=0 baseline)
}

func NewPoint(at Point) Shape {
	return Shape{kind: KindPoint, center: at}
}

func NewCircle(center Point, radius float64) Shape {
	return Shape{kind: KindCircle, center: center, radius: radius}
}

// NewRoundedTube builds a capsule shape between p1 and p2 with the given
// radius. Per spec.md §9 (open question), a degenerate tube with
// p1 == p2 is equivalent to a Circle of the same radius and is stored
// as one to keep downstream code (AABB, collides) from special-casing it.
func NewRoundedTube(p1, p2 Point, radius float64) Shape {
	if p1 == p2 {
		return NewCircle(p1, radius)
	}
	mid := Point{(p1.X + p2.X) / 2, (p1.Y + p2.Y) / 2}
	rel := p2.Sub(mid)
	return Shape{
		kind:    KindRoundedTube,
		center:  mid,
		radius:  radius,
		p1:      p1.Sub(mid),
		p2:      rel,
		halfLen: rel.Distance(Point{}),
		baseAng: math.Atan2(rel.Y, rel.X),
	}
}

func (s Shape) Kind() Kind      { return s.kind }
func (s Shape) Radius() float64 { return s.radius }
func (s Shape) Center() Point   { return s.center }

// Endpoints returns the absolute tube endpoints. Only valid for KindRoundedTube.
func (s Shape) Endpoints() (Point, Point) {
	return s.center.Add(s.p1), s.center.Add(s.p2)
}

// MoveCenter returns a copy of s translated so its center is at p.
func (s Shape) MoveCenter(p Point) Shape {
	s.center = p
	return s
}

// SetRotation returns a copy of s with its tube endpoints rotated to the
// absolute angle theta (radians), measured from the same baseline used at
// construction. No-op for Point and Circle, which are rotation-invariant.
func (s Shape) SetRotation(theta float64) Shape {
	if s.kind != KindRoundedTube {
		return s
	}
	ang := s.baseAng + theta
	cosT, sinT := math.Cos(ang), math.Sin(ang)
	rot := Point{cosT * s.halfLen, sinT * s.halfLen}
	s.p1 = Point{-rot.X, -rot.Y}
	s.p2 = rot
	return s
}

// AABB is a tight axis-aligned bounding rectangle.
type AABB struct {
	Min, Max Point
}

// Intersects reports whether a and b overlap (inclusive of shared edges).
func (a AABB) Intersects(b AABB) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y
}

// Contains reports whether p falls within the AABB.
func (a AABB) Contains(p Point) bool {
	return p.X >= a.Min.X && p.X <= a.Max.X && p.Y >= a.Min.Y && p.Y <= a.Max.Y
}

func (s Shape) AABB() AABB {
	switch s.kind {
	case KindPoint:
		return AABB{Min: s.center, Max: s.center}
	case KindCircle:
		r := Point{s.radius, s.radius}
		return AABB{Min: s.center.Sub(r), Max: s.center.Add(r)}
	case KindRoundedTube:
		p1, p2 := s.Endpoints()
		minX, maxX := math.Min(p1.X, p2.X), math.Max(p1.X, p2.X)
		minY, maxY := math.Min(p1.Y, p2.Y), math.Max(p1.Y, p2.Y)
		return AABB{
			Min: Point{minX - s.radius, minY - s.radius},
			Max: Point{maxX + s.radius, maxY + s.radius},
		}
	}
	return AABB{}
}

// Collides performs the analytic collision test from spec.md §3:
// circle-vs-circle by center distance, circle-vs-tube by clamped segment
// projection, tube-vs-tube by the four endpoint-circle tests.
func (a Shape) Collides(b Shape) bool {
	switch {
	case a.kind == KindRoundedTube && b.kind == KindRoundedTube:
		return tubeVsTube(a, b)
	case a.kind == KindRoundedTube:
		return circleVsTube(b, a)
	case b.kind == KindRoundedTube:
		return circleVsTube(a, b)
	default:
		return circleVsCircle(a, b)
	}
}

func circleVsCircle(a, b Shape) bool {
	rSum := a.radius + b.radius
	return a.center.DistanceSquared(b.center) <= rSum*rSum
}

// closestPointOnSegment projects p onto segment [p1,p2], clamped to [0,1].
func closestPointOnSegment(p, p1, p2 Point) Point {
	seg := p2.Sub(p1)
	lenSq := seg.X*seg.X + seg.Y*seg.Y
	if lenSq == 0 {
		return p1
	}
	t := ((p.X-p1.X)*seg.X + (p.Y-p1.Y)*seg.Y) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return Point{p1.X + seg.X*t, p1.Y + seg.Y*t}
}

func circleVsTube(circle, tube Shape) bool {
	p1, p2 := tube.Endpoints()
	closest := closestPointOnSegment(circle.center, p1, p2)
	rSum := circle.radius + tube.radius
	return circle.center.DistanceSquared(closest) <= rSum*rSum
}

func tubeVsTube(a, b Shape) bool {
	ap1, ap2 := a.Endpoints()
	bp1, bp2 := b.Endpoints()
	endpoints := []struct{ c Shape; seg1, seg2 Point; segR float64 }{
		{NewCircle(ap1, a.radius), bp1, bp2, b.radius},
		{NewCircle(ap2, a.radius), bp1, bp2, b.radius},
		{NewCircle(bp1, b.radius), ap1, ap2, a.radius},
		{NewCircle(bp2, b.radius), ap1, ap2, a.radius},
	}
	for _, e := range endpoints {
		tubeShape := Shape{kind: KindRoundedTube, center: Point{(e.seg1.X + e.seg2.X) / 2, (e.seg1.Y + e.seg2.Y) / 2}, radius: e.segR}
		mid := tubeShape.center
		tubeShape.p1 = e.seg1.Sub(mid)
		tubeShape.p2 = e.seg2.Sub(mid)
		if circleVsTube(e.c, tubeShape) {
			return true
		}
	}
	return false
}
