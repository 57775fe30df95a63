// Package referenceframe attaches frame labels to poses.
package referenceframe

import (
	"fmt"

	"go.viam.com/navtester/spatialmath"
)

// Map is the fixed frame every request pose is expressed in.
const Map = "map"

// PoseInFrame is a data structure that packages a pose with the name of the
// frame in which it was observed.
type PoseInFrame struct {
	frame string
	pose  spatialmath.Pose
}

// FrameName returns the name of the frame in which the pose was observed.
func (pF *PoseInFrame) FrameName() string {
	return pF.frame
}

// Pose returns the pose that was observed.
func (pF *PoseInFrame) Pose() spatialmath.Pose {
	return pF.pose
}

// AlmostEqual reports whether both poses share a frame and are approximately the same.
func (pF *PoseInFrame) AlmostEqual(other *PoseInFrame) bool {
	if other == nil {
		return false
	}
	return pF.frame == other.frame && spatialmath.PoseAlmostEqual(pF.pose, other.pose)
}

func (pF *PoseInFrame) String() string {
	return fmt.Sprintf("%s@%v", pF.frame, pF.pose)
}

// NewPoseInFrame generates a new PoseInFrame.
func NewPoseInFrame(frame string, pose spatialmath.Pose) *PoseInFrame {
	return &PoseInFrame{
		frame: frame,
		pose:  pose,
	}
}

// Stamp wraps a pose in the map frame.
func Stamp(pose spatialmath.Pose) *PoseInFrame {
	return NewPoseInFrame(Map, pose)
}
