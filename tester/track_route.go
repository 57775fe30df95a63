package tester

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/navtester/action"
	"go.viam.com/navtester/gateway"
	"go.viam.com/navtester/services/route"
)

// Messages reported when the feedback stream or the robot's final pose is wrong.
const (
	MsgNotTrackingInOrder = "Feedback state is not tracking in order!"
	MsgMissingEdgeInfo    = "Feedback state does not contain the proper edge info!"
	MsgTerminalIncorrect  = "Terminal feedback state is not correct!"
	MsgNoFeedback         = "No feedback received"
	MsgMissedGoal         = "Did not make it to the goal pose!"
)

type trackState int

const (
	stateAwaitingAcceptance trackState = iota
	stateTracking
	stateDone
)

func (s trackState) String() string {
	switch s {
	case stateAwaitingAcceptance:
		return "awaiting acceptance"
	case stateTracking:
		return "tracking"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// feedbackValidator checks a stream of feedback events in arrival order.
type feedbackValidator struct {
	operation string
	last      *route.FeedbackEvent
	seen      int
}

// validate checks one event on its own and against the previous distinct event.
func (v *feedbackValidator) validate(event route.FeedbackEvent) error {
	if err := event.Validate(v.operation); err != nil {
		return errors.Wrap(err, "invalid feedback")
	}
	if prev := v.last; prev != nil && !prev.Rerouted && !route.EventsEqual(*prev, event) {
		if prev.NextNodeID != event.LastNodeID {
			return errors.New(MsgNotTrackingInOrder)
		}
		if event.CurrentEdgeID == 0 {
			return errors.New(MsgMissingEdgeInfo)
		}
	}
	v.last = &event
	v.seen++
	return nil
}

// terminal checks that the stream ended pointing at the result route's final node.
func (v *feedbackValidator) terminal(result route.Result) error {
	if v.last == nil {
		return errors.New(MsgNoFeedback)
	}
	final, ok := result.Route.LastNode()
	if !ok || final.ID != v.last.NextNodeID {
		return errors.New(MsgTerminalIncorrect)
	}
	return nil
}

// RunTrackRouteTest sends the robot to the session's goal from wherever it is and follows the
// feedback until the goal finishes. Feedback is drained between bounded status polls.
func (t *Tester) RunTrackRouteTest(ctx context.Context) Report {
	logger := t.logger.Sublogger(TrackRouteTest)
	logger.Info("Waiting for 'ComputeAndTrackRoute' action server")
	if err := gateway.WaitUntilAvailable(ctx, t.routes, route.ComputeAndTrackRouteAction, t.opts.Availability, logger); err != nil {
		return t.callFailed(TrackRouteTest, err)
	}

	req := route.Request{
		Goal:     t.session.GoalPose(),
		UseStart: false,
		UsePoses: true,
	}
	queue := t.session.Feedback()
	if stale := queue.Drain(); len(stale) > 0 {
		logger.Debugw("discarding feedback from an earlier goal", "events", len(stale))
	}

	state := stateAwaitingAcceptance
	logger.Infow("Sending ComputeAndTrackRoute goal request...", "state", state)
	handle, failed := t.submit(ctx, TrackRouteTest, func(ctx context.Context) (*action.Handle[route.Result], error) {
		return t.routes.ComputeAndTrackRoute(ctx, req, t.session.OnFeedback)
	})
	if failed != nil {
		return *failed
	}

	state = stateTracking
	logger.Infow("Waiting for 'ComputeAndTrackRoute' action to complete", "state", state)
	validator := &feedbackValidator{operation: t.opts.ReroutingService}
	for state == stateTracking {
		status, err := handle.Wait(ctx, t.clk, t.opts.StatusPollTimeout)
		if err != nil {
			return t.callFailed(TrackRouteTest, err)
		}
		switch status {
		case action.StatusCanceled, action.StatusAborted:
			logger.Infof(msgGoalFailedFormat, int8(status))
			return t.fail(TrackRouteTest, statusOutcome(status), fmt.Sprintf(msgGoalFailedFormat, int8(status)))
		case action.StatusSucceeded:
			state = stateDone
		}

		for _, event := range queue.Drain() {
			if err := validator.validate(event); err != nil {
				return t.fail(TrackRouteTest, OutcomeInvariantViolation, err.Error())
			}
		}
	}
	logger.Debugw("feedback stream finished", "events", validator.seen, "state", state)

	result, _, _ := handle.Result()
	if err := validator.terminal(result); err != nil {
		return t.fail(TrackRouteTest, OutcomeInvariantViolation, err.Error())
	}

	logger.Info("Action completed! Checking validity of terminal condition...")
	if !(t.session.DistanceFromGoal() < t.opts.GoalTolerance) {
		return t.fail(TrackRouteTest, OutcomeInvariantViolation, MsgMissedGoal)
	}
	logger.Info("Goal succeeded!")
	return Report{Test: TrackRouteTest, Outcome: OutcomeSucceeded}
}
