// Package spatialmath defines the poses the tester sends to and reads back from the navigation stack.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// DefaultForwardZ is the height given to forward poses built from planar coordinates.
const DefaultForwardZ = 0.01

// Pose represents a 6dof pose, position and orientation, with respect to the origin.
// Poses are immutable once constructed.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

type basicPose struct {
	point       r3.Vector
	orientation Orientation
}

// NewZeroPose returns a pose at (0,0,0) with no rotation.
func NewZeroPose() Pose {
	return NewPoseFromPoint(r3.Vector{})
}

// NewPose returns a pose at the given point with the given orientation.
func NewPose(p r3.Vector, o Orientation) Pose {
	if o == nil {
		o = NewZeroOrientation()
	}
	return &basicPose{point: p, orientation: o}
}

// NewPoseFromPoint returns a pose at the given point with no rotation.
func NewPoseFromPoint(p r3.Vector) Pose {
	return NewPose(p, NewZeroOrientation())
}

// NewForwardPose builds a pose facing forward, identity orientation, at the given planar
// coordinates and the default height.
func NewForwardPose(x, y float64) Pose {
	return NewForwardPoseZ(x, y, DefaultForwardZ)
}

// NewForwardPoseZ is NewForwardPose with an explicit height.
func NewForwardPoseZ(x, y, z float64) Pose {
	return NewPoseFromPoint(r3.Vector{X: x, Y: y, Z: z})
}

func (p *basicPose) Point() r3.Vector {
	return p.point
}

func (p *basicPose) Orientation() Orientation {
	return p.orientation
}

func (p *basicPose) String() string {
	return fmt.Sprintf("{X:%.3f Y:%.3f Z:%.3f}", p.point.X, p.point.Y, p.point.Z)
}

// PlanarDistance returns the distance between the two poses in the XY plane, ignoring height.
func PlanarDistance(a, b Pose) float64 {
	dx := a.Point().X - b.Point().X
	dy := a.Point().Y - b.Point().Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PoseAlmostEqual will return a bool describing whether 2 poses are approximately the same.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostCoincident(a, b) && OrientationAlmostEqual(a.Orientation(), b.Orientation())
}

// PoseAlmostCoincident will return a bool describing whether 2 poses approximately are at the same 3D coordinates.
func PoseAlmostCoincident(a, b Pose) bool {
	const epsilon = 1e-8
	return R3VectorAlmostEqual(a.Point(), b.Point(), epsilon)
}

// R3VectorAlmostEqual compares two r3.Vector objects and returns if the all elementwise differences are less than epsilon.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon && math.Abs(a.Z-b.Z) < epsilon
}
