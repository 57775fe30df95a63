package tester

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/navtester/action"
	"go.viam.com/navtester/gateway"
	"go.viam.com/navtester/services/route"
)

// Messages reported when a goal does not run to success.
const (
	MsgGoalRejected     = "Goal rejected"
	msgGoalFailedFormat = "Goal failed with status code: %d"
)

func statusOutcome(status action.Status) Outcome {
	switch status {
	case action.StatusCanceled:
		return OutcomeCanceled
	case action.StatusAborted:
		return OutcomeAborted
	case action.StatusSucceeded:
		return OutcomeSucceeded
	}
	return OutcomeCallFailed
}

// submit sends a goal and waits for the server to accept it. A non-nil report means the goal
// never started.
func (t *Tester) submit(
	ctx context.Context,
	test string,
	send func(ctx context.Context) (*action.Handle[route.Result], error),
) (*action.Handle[route.Result], *Report) {
	handle, err := gateway.Call(ctx, test, send)
	if err != nil {
		r := t.callFailed(test, err)
		return nil, &r
	}
	if err := handle.WaitAccepted(ctx); err != nil {
		var r Report
		if errors.Is(err, action.ErrGoalRejected) {
			r = t.fail(test, OutcomeRejected, MsgGoalRejected)
		} else {
			r = t.callFailed(test, err)
		}
		return nil, &r
	}
	t.logger.Info("Goal accepted")
	return handle, nil
}

// RunComputeRouteTest asks for a route between the session's initial and goal poses and checks
// that the result is a well-formed route.
func (t *Tester) RunComputeRouteTest(ctx context.Context) Report {
	logger := t.logger.Sublogger(ComputeRouteTest)
	logger.Info("Waiting for 'ComputeRoute' action server")
	if err := gateway.WaitUntilAvailable(ctx, t.routes, route.ComputeRouteAction, t.opts.Availability, logger); err != nil {
		return t.callFailed(ComputeRouteTest, err)
	}

	req := route.Request{
		Start:    t.session.InitialPose(),
		Goal:     t.session.GoalPose(),
		UseStart: true,
		UsePoses: true,
	}
	logger.Info("Sending ComputeRoute goal request...")
	handle, failed := t.submit(ctx, ComputeRouteTest, func(ctx context.Context) (*action.Handle[route.Result], error) {
		return t.routes.ComputeRoute(ctx, req)
	})
	if failed != nil {
		return *failed
	}

	logger.Info("Waiting for 'ComputeRoute' action to complete")
	result, status, err := handle.Await(ctx)
	if err != nil {
		return t.callFailed(ComputeRouteTest, err)
	}
	if status != action.StatusSucceeded {
		return t.fail(ComputeRouteTest, statusOutcome(status), fmt.Sprintf(msgGoalFailedFormat, int8(status)))
	}

	logger.Info("Action completed! Checking validity of results...")
	if err := result.Validate(); err != nil {
		return t.fail(ComputeRouteTest, OutcomeInvariantViolation, err.Error())
	}
	logger.Info("Goal succeeded!")
	return Report{Test: ComputeRouteTest, Outcome: OutcomeSucceeded}
}
