package common

import (
	"fmt"
	"math"
)

// Vector3 is a position or velocity in sector space
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

func (p Vector3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// DistanceTo calculates distance between two positions
func (p Vector3) DistanceTo(o Vector3) float64 {
	return p.Sub(o).Length()
}

// Length returns the euclidean norm
func (p Vector3) Length() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Sub calculates Vector3 p - Vector3 o
func (p Vector3) Sub(o Vector3) Vector3 {
	return Vector3{p.X - o.X, p.Y - o.Y, p.Z - o.Z}
}

// Add calculates Vector3 p + Vector3 o
func (p Vector3) Add(o Vector3) Vector3 {
	return Vector3{p.X + o.X, p.Y + o.Y, p.Z + o.Z}
}

// Mul calculates Vector3 p * m
func (p Vector3) Mul(m float64) Vector3 {
	return Vector3{p.X * m, p.Y * m, p.Z * m}
}

// Cross calculates the cross product p x o
func (p Vector3) Cross(o Vector3) Vector3 {
	return Vector3{
		p.Y*o.Z - p.Z*o.Y,
		p.Z*o.X - p.X*o.Z,
		p.X*o.Y - p.Y*o.X,
	}
}

// Normalized returns the unit vector of p, or zero if p is zero
func (p Vector3) Normalized() Vector3 {
	d := p.Length()
	if d == 0 {
		return Vector3{}
	}
	return p.Mul(1 / d)
}

// ClampLength returns p scaled down so that its length is at most max
func (p Vector3) ClampLength(max float64) Vector3 {
	l := p.Length()
	if l <= max || l == 0 {
		return p
	}
	return p.Mul(max / l)
}
