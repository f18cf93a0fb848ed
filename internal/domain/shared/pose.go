// Package shared holds value types used by more than one bounded context.
package shared

import "math"

// Position is a point in the installation's map frame, in metres.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Orientation is a unit quaternion.
type Orientation struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
	W float64 `json:"w" yaml:"w"`
}

// Pose is a position plus orientation.
type Pose struct {
	Position    Position    `json:"position" yaml:"position"`
	Orientation Orientation `json:"orientation" yaml:"orientation"`
}

// DefaultPose faces along the x axis at the origin.
func DefaultPose() Pose { return Pose{Orientation: Orientation{W: 1}} }

// DistanceTo returns the euclidean distance between two positions.
func (p Position) DistanceTo(o Position) float64 {
	dx, dy, dz := p.X-o.X, p.Y-o.Y, p.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// WithinTolerance reports whether every component of p is within tol of o.
func (p Pose) WithinTolerance(o Pose, tol float64) bool {
	a := [...]float64{
		p.Position.X, p.Position.Y, p.Position.Z,
		p.Orientation.X, p.Orientation.Y, p.Orientation.Z, p.Orientation.W,
	}
	b := [...]float64{
		o.Position.X, o.Position.Y, o.Position.Z,
		o.Orientation.X, o.Orientation.Y, o.Orientation.Z, o.Orientation.W,
	}
	for i := range a {
		if !NearlyEqual(a[i], b[i], tol) {
			return false
		}
	}
	return true
}

// NearlyEqual reports whether |a-b| <= tol.
func NearlyEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

// Bounds is an axis-aligned box in the map frame.
type Bounds struct {
	X1 float64 `json:"x1" yaml:"x1"`
	Y1 float64 `json:"y1" yaml:"y1"`
	X2 float64 `json:"x2" yaml:"x2"`
	Y2 float64 `json:"y2" yaml:"y2"`
}

// MapMetadata names the map a mission was planned against.
type MapMetadata struct {
	MapName string `json:"map_name" yaml:"map_name"`
	Bounds  Bounds `json:"bounds" yaml:"bounds"`
}
