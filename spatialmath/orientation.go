package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Orientation is an interface used to express the orientation of a rigid object or a frame of
// reference in 3D Euclidean space.
type Orientation interface {
	Quaternion() quat.Number
}

type quaternion quat.Number

// NewZeroOrientation returns an orientation which signifies no rotation.
func NewZeroOrientation() Orientation {
	return &quaternion{1, 0, 0, 0}
}

// NewOrientationFromQuaternion normalizes the given quaternion into an Orientation. A zero
// quaternion is treated as no rotation.
func NewOrientationFromQuaternion(q quat.Number) Orientation {
	norm := quat.Abs(q)
	if norm == 0 || math.IsNaN(norm) {
		return NewZeroOrientation()
	}
	normalized := quaternion(quat.Scale(1/norm, q))
	return &normalized
}

// Quaternion returns the orientation as a unit quaternion.
func (q *quaternion) Quaternion() quat.Number {
	return quat.Number(*q)
}

// OrientationAlmostEqual will return a bool describing whether 2 poses have approximately the same orientation.
func OrientationAlmostEqual(o1, o2 Orientation) bool {
	return QuaternionAlmostEqual(o1.Quaternion(), o2.Quaternion(), 1e-5)
}

// QuaternionAlmostEqual is an equality test for all the float components of a quaternion. Quaternions have double coverage, q == -q,
// and this function will *not* account for this.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	return math.Abs(a.Real-b.Real) < tol &&
		math.Abs(a.Imag-b.Imag) < tol &&
		math.Abs(a.Jmag-b.Jmag) < tol &&
		math.Abs(a.Kmag-b.Kmag) < tol
}
