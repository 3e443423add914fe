package core

import (
	"math"

	"github.com/signalsfoundry/membership-globe/model"
)

// Vec3 is a position in globe scene units.
type Vec3 struct {
	X, Y, Z float64
}

// PointVec returns the scene position of a projected country.
func PointVec(p model.Point3D) Vec3 {
	return Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}
