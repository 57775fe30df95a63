// Package session holds the state shared between the tester's test routines and the callbacks
// feeding them: the poses of the current run and the queue of pending route feedback.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"go.viam.com/navtester/logging"
	"go.viam.com/navtester/referenceframe"
	"go.viam.com/navtester/services/route"
	"go.viam.com/navtester/spatialmath"
)

// A Session is one run of the tester from an initial pose to a goal pose. Pose estimates and
// feedback are written only through OnPose and OnFeedback.
type Session struct {
	id      uuid.UUID
	initial *referenceframe.PoseInFrame
	goal    *referenceframe.PoseInFrame
	logger  logging.Logger

	mu                  sync.Mutex
	current             *referenceframe.PoseInFrame
	initialPoseReceived bool
	poseArrived         chan struct{}

	feedback FeedbackQueue
}

// New makes a new session.
func New(initial, goal *referenceframe.PoseInFrame, logger logging.Logger) *Session {
	return NewWithID(uuid.New(), initial, goal, logger)
}

// NewWithID makes a new session with an ID.
func NewWithID(id uuid.UUID, initial, goal *referenceframe.PoseInFrame, logger logging.Logger) *Session {
	return &Session{
		id:          id,
		initial:     initial,
		goal:        goal,
		logger:      logger,
		current:     initial,
		poseArrived: make(chan struct{}),
	}
}

// ID returns the id of this session.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// InitialPose returns the pose the robot starts from.
func (s *Session) InitialPose() *referenceframe.PoseInFrame {
	return s.initial
}

// GoalPose returns the pose the robot is sent to.
func (s *Session) GoalPose() *referenceframe.PoseInFrame {
	return s.goal
}

// OnPose records a pose estimate from the localizer.
func (s *Session) OnPose(pose *referenceframe.PoseInFrame) {
	s.logger.Debugw("Received amcl_pose", "pose", pose)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = pose
	s.initialPoseReceived = true
	close(s.poseArrived)
	s.poseArrived = make(chan struct{})
}

// OnFeedback queues a feedback event for the tracking test.
func (s *Session) OnFeedback(event route.FeedbackEvent) {
	s.feedback.Push(event)
}

// Feedback returns the session's feedback queue.
func (s *Session) Feedback() *FeedbackQueue {
	return &s.feedback
}

// ResetInitialPose forgets any received estimate and assumes the robot sits at the initial
// pose until the localizer says otherwise.
func (s *Session) ResetInitialPose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.initial
	s.initialPoseReceived = false
}

// InitialPoseReceived reports whether the localizer published an estimate since the last reset.
func (s *Session) InitialPoseReceived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialPoseReceived
}

// CurrentPose returns the latest pose estimate.
func (s *Session) CurrentPose() *referenceframe.PoseInFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// WaitForPose waits up to timeout for an estimate to have been received since the last reset.
func (s *Session) WaitForPose(ctx context.Context, clk clock.Clock, timeout time.Duration) bool {
	timer := clk.Timer(timeout)
	defer timer.Stop()
	for {
		s.mu.Lock()
		received := s.initialPoseReceived
		arrived := s.poseArrived
		s.mu.Unlock()
		if received {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return s.InitialPoseReceived()
		case <-arrived:
		}
	}
}

// DistanceFromGoal returns the planar distance between the latest estimate and the goal.
func (s *Session) DistanceFromGoal() float64 {
	distance := spatialmath.PlanarDistance(s.CurrentPose().Pose(), s.goal.Pose())
	s.logger.Infof("Distance from goal is: %v", distance)
	return distance
}
