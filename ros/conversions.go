package ros

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/navtester/referenceframe"
	"go.viam.com/navtester/spatialmath"
)

// PoseFromSpatial converts a pose into its geometry_msgs form.
func PoseFromSpatial(p spatialmath.Pose) Pose {
	pt := p.Point()
	q := p.Orientation().Quaternion()
	return Pose{
		Position:    Point{X: pt.X, Y: pt.Y, Z: pt.Z},
		Orientation: Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real},
	}
}

// ToSpatial converts a geometry_msgs pose into a pose.
func (p Pose) ToSpatial() spatialmath.Pose {
	return spatialmath.NewPose(
		p.Position.ToR3(),
		spatialmath.NewOrientationFromQuaternion(quat.Number{
			Real: p.Orientation.W,
			Imag: p.Orientation.X,
			Jmag: p.Orientation.Y,
			Kmag: p.Orientation.Z,
		}),
	)
}

// ToR3 converts a geometry_msgs point into a vector.
func (p Point) ToR3() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// PointFromR3 converts a vector into a geometry_msgs point.
func PointFromR3(v r3.Vector) Point {
	return Point{X: v.X, Y: v.Y, Z: v.Z}
}

// PoseStampedFromFrame converts a framed pose into a PoseStamped. A nil pose yields the zero message.
func PoseStampedFromFrame(pif *referenceframe.PoseInFrame) PoseStamped {
	if pif == nil {
		return PoseStamped{}
	}
	return PoseStamped{
		Header: Header{FrameID: pif.FrameName()},
		Pose:   PoseFromSpatial(pif.Pose()),
	}
}

// ToFrame converts a PoseStamped into a framed pose.
func (ps PoseStamped) ToFrame() *referenceframe.PoseInFrame {
	return referenceframe.NewPoseInFrame(ps.Header.FrameID, ps.Pose.ToSpatial())
}

// ToFrames converts every pose along the path.
func (p Path) ToFrames() []*referenceframe.PoseInFrame {
	return lo.Map(p.Poses, func(ps PoseStamped, _ int) *referenceframe.PoseInFrame {
		return ps.ToFrame()
	})
}

// PathFromFrames builds a path in the given frame from framed poses.
func PathFromFrames(frame string, poses []*referenceframe.PoseInFrame) Path {
	return Path{
		Header: Header{FrameID: frame},
		Poses:  lo.Map(poses, func(pif *referenceframe.PoseInFrame, _ int) PoseStamped { return PoseStampedFromFrame(pif) }),
	}
}

// NewInitialPose builds the PoseWithCovarianceStamped published as an initial pose estimate.
func NewInitialPose(pif *referenceframe.PoseInFrame) PoseWithCovarianceStamped {
	return PoseWithCovarianceStamped{
		Header: Header{FrameID: pif.FrameName()},
		Pose:   PoseWithCovariance{Pose: PoseFromSpatial(pif.Pose())},
	}
}

// ToDuration converts a builtin_interfaces duration.
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d.Sec)*time.Second + time.Duration(d.Nanosec)
}

// DurationFrom converts a duration into builtin_interfaces form.
func DurationFrom(d time.Duration) Duration {
	return Duration{Sec: int32(d / time.Second), Nanosec: uint32(d % time.Second)}
}
