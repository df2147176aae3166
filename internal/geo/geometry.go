package geo

import "math"

// Bounds is an axis-aligned box on the plane
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Contains reports whether p lies inside the box (edges included)
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Expand grows the box by margin meters on every side
func (b Bounds) Expand(margin float64) Bounds {
	return Bounds{MinX: b.MinX - margin, MinY: b.MinY - margin, MaxX: b.MaxX + margin, MaxY: b.MaxY + margin}
}

// BoundsOf returns the smallest box containing all points
func BoundsOf(points ...Point) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}
	b := Bounds{MinX: points[0].X, MinY: points[0].Y, MaxX: points[0].X, MaxY: points[0].Y}
	for _, p := range points[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// Distance returns the Euclidean distance between two plane points
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Bearing returns the bearing from one point to another in radians [0, 2π), clockwise from north
func Bearing(from, to Point) float64 {
	theta := math.Atan2(to.X-from.X, to.Y-from.Y)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	if theta >= 2*math.Pi {
		theta = 0
	}
	return theta
}

// Translate moves a point by distance meters along a bearing in radians
func Translate(p Point, bearing, distance float64) Point {
	return Point{
		X: p.X + distance*math.Sin(bearing),
		Y: p.Y + distance*math.Cos(bearing),
	}
}

// SegmentProjection describes where a point falls relative to the segment a→b
type SegmentProjection struct {
	Along  float64 // signed distance from a along a→b, unclamped
	Cross  float64 // perpendicular distance to the infinite line, always >= 0
	Side   float64 // +1 right of a→b, -1 left, 0 on the line
	Length float64 // length of a→b
}

// ProjectOnSegment projects p onto the line through a and b
func ProjectOnSegment(p, a, b Point) SegmentProjection {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return SegmentProjection{Cross: Distance(p, a)}
	}
	ux, uy := dx/length, dy/length
	px, py := p.X-a.X, p.Y-a.Y

	along := px*ux + py*uy
	// z component of u × p; negative means p is to the right of a→b
	cross := ux*py - uy*px

	side := 0.0
	switch {
	case cross < 0:
		side = 1
	case cross > 0:
		side = -1
	}

	return SegmentProjection{Along: along, Cross: math.Abs(cross), Side: side, Length: length}
}

// DistanceToSegment returns the distance from p to the closest point of segment a-b
func DistanceToSegment(p, a, b Point) float64 {
	proj := ProjectOnSegment(p, a, b)
	switch {
	case proj.Length == 0:
		return Distance(p, a)
	case proj.Along < 0:
		return Distance(p, a)
	case proj.Along > proj.Length:
		return Distance(p, b)
	}
	return proj.Cross
}

// SegmentIntersection returns the crossing point of segments a1-a2 and b1-b2
func SegmentIntersection(a1, a2, b1, b2 Point) (Point, bool) {
	d := (a2.X-a1.X)*(b2.Y-b1.Y) - (a2.Y-a1.Y)*(b2.X-b1.X)
	if math.Abs(d) < 1e-9 {
		return Point{}, false
	}
	t := ((b1.X-a1.X)*(b2.Y-b1.Y) - (b1.Y-a1.Y)*(b2.X-b1.X)) / d
	u := ((b1.X-a1.X)*(a2.Y-a1.Y) - (b1.Y-a1.Y)*(a2.X-a1.X)) / d
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return Point{}, false
	}
	return Point{X: a1.X + t*(a2.X-a1.X), Y: a1.Y + t*(a2.Y-a1.Y)}, true
}

// AngleDifference returns the absolute difference of two bearings in radians, in [0, π]
func AngleDifference(a, b float64) float64 {
	diff := math.Mod(math.Abs(a-b), 2*math.Pi)
	if diff > math.Pi {
		diff = 2*math.Pi - diff
	}
	return diff
}

// InSector reports whether p lies in the annulus [inner, outer] around center and within
// halfAngle radians of the axis bearing. Bounds are inclusive.
func InSector(p, center Point, inner, outer, axis, halfAngle float64) bool {
	d := Distance(center, p)
	if d < inner || d > outer {
		return false
	}
	if d == 0 {
		return inner == 0
	}
	return AngleDifference(Bearing(center, p), axis) <= halfAngle
}

// InRectangle reports whether p lies in a rectangle of the given length and width centered on
// center and rotated so that its length runs along bearing
func InRectangle(p, center Point, length, width, bearing float64) bool {
	dx, dy := p.X-center.X, p.Y-center.Y
	along := dx*math.Sin(bearing) + dy*math.Cos(bearing)
	across := dx*math.Cos(bearing) - dy*math.Sin(bearing)
	return math.Abs(along) <= length/2 && math.Abs(across) <= width/2
}
