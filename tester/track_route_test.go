package tester

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/navtester/action"
	"go.viam.com/navtester/gateway"
	"go.viam.com/navtester/logging"
	"go.viam.com/navtester/referenceframe"
	"go.viam.com/navtester/services/route"
	"go.viam.com/navtester/services/route/fake"
	"go.viam.com/navtester/session"
	"go.viam.com/navtester/spatialmath"
	"go.viam.com/navtester/testutils/inject"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Availability = gateway.RetryPolicy{Interval: time.Millisecond}
	opts.StatePoll = gateway.RetryPolicy{Interval: time.Millisecond}
	opts.StatusPollTimeout = 5 * time.Millisecond
	opts.InitialPoseWait = 10 * time.Millisecond
	opts.StartupDelay = 0
	opts.ShutdownTimeout = time.Second
	return opts
}

func fastStackConfig() fake.Config {
	cfg := fake.DefaultConfig()
	cfg.StepInterval = time.Millisecond
	return cfg
}

func newSession(t *testing.T) *session.Session {
	return session.New(
		referenceframe.Stamp(spatialmath.NewForwardPose(0, 0)),
		referenceframe.Stamp(spatialmath.NewForwardPose(5, 0)),
		logging.NewTestLogger(t),
	)
}

// newFakeStack starts a fake stack whose pose estimates feed sess.
func newFakeStack(t *testing.T, cfg fake.Config, sess *session.Session) *fake.NavigationStack {
	t.Helper()
	stack := fake.NewNavigationStack(cfg, clock.New(), logging.NewTestLogger(t))
	t.Cleanup(func() { stack.Close() })
	unsubscribe, err := stack.SubscribePose(context.Background(), sess.OnPose)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(unsubscribe)
	return stack
}

func newRouteTester(t *testing.T, sess *session.Session, routes route.Service) *Tester {
	return New(sess, routes, nil, nil, testOptions(), logging.NewTestLogger(t))
}

func path() []*referenceframe.PoseInFrame {
	return []*referenceframe.PoseInFrame{
		referenceframe.Stamp(spatialmath.NewForwardPose(0, 0)),
		referenceframe.Stamp(spatialmath.NewForwardPose(5, 0)),
	}
}

func graph() route.Graph {
	return route.Graph{
		Nodes:   []route.Node{{ID: 0}, {ID: 1, Position: r3.Vector{X: 2.5}}, {ID: 2, Position: r3.Vector{X: 5}}},
		EdgeIDs: []uint16{100, 101},
		Cost:    5,
	}
}

func feedback(last, next, edge uint16) route.FeedbackEvent {
	return route.FeedbackEvent{
		Path:                path(),
		Route:               graph(),
		OperationsTriggered: []string{route.ReroutingService},
		LastNodeID:          last,
		NextNodeID:          next,
		CurrentEdgeID:       edge,
	}
}

// scriptedRoutes is a route service that delivers events then resolves the goal before the
// handle is returned.
func scriptedRoutes(events []route.FeedbackEvent, status action.Status, result route.Result) *inject.RouteService {
	return &inject.RouteService{
		AvailableFunc: func(context.Context, string) (bool, error) { return true, nil },
		ComputeAndTrackRouteFunc: func(
			ctx context.Context,
			req route.Request,
			onFeedback func(route.FeedbackEvent),
		) (*action.Handle[route.Result], error) {
			handle := action.NewHandle[route.Result]("scripted")
			handle.Accept()
			for _, e := range events {
				onFeedback(e)
			}
			handle.Resolve(status, result)
			return handle, nil
		},
	}
}

func TestFeedbackValidator(t *testing.T) {
	t.Run("chained", func(t *testing.T) {
		v := &feedbackValidator{operation: route.ReroutingService}
		test.That(t, v.validate(feedback(0, 1, 100)), test.ShouldBeNil)
		test.That(t, v.validate(feedback(1, 2, 101)), test.ShouldBeNil)
		test.That(t, v.terminal(route.Result{Route: graph()}), test.ShouldBeNil)
		test.That(t, v.seen, test.ShouldEqual, 2)
	})

	t.Run("repeated event is not a step", func(t *testing.T) {
		v := &feedbackValidator{operation: route.ReroutingService}
		test.That(t, v.validate(feedback(0, 1, 100)), test.ShouldBeNil)
		test.That(t, v.validate(feedback(0, 1, 100)), test.ShouldBeNil)
		test.That(t, v.validate(feedback(1, 2, 101)), test.ShouldBeNil)
	})

	t.Run("gap", func(t *testing.T) {
		v := &feedbackValidator{operation: route.ReroutingService}
		test.That(t, v.validate(feedback(0, 1, 100)), test.ShouldBeNil)
		test.That(t, v.validate(feedback(2, 3, 102)).Error(), test.ShouldEqual, MsgNotTrackingInOrder)
	})

	t.Run("missing edge", func(t *testing.T) {
		v := &feedbackValidator{operation: route.ReroutingService}
		test.That(t, v.validate(feedback(0, 1, 100)), test.ShouldBeNil)
		test.That(t, v.validate(feedback(1, 2, 0)).Error(), test.ShouldEqual, MsgMissingEdgeInfo)
	})

	t.Run("first event needs no edge", func(t *testing.T) {
		v := &feedbackValidator{operation: route.ReroutingService}
		test.That(t, v.validate(feedback(0, 1, 0)), test.ShouldBeNil)
	})

	t.Run("after a reroute", func(t *testing.T) {
		v := &feedbackValidator{operation: route.ReroutingService}
		rerouted := feedback(0, 1, 0)
		rerouted.Rerouted = true
		test.That(t, v.validate(rerouted), test.ShouldBeNil)
		test.That(t, v.validate(feedback(4, 5, 0)), test.ShouldBeNil)
	})

	t.Run("structure", func(t *testing.T) {
		v := &feedbackValidator{operation: route.ReroutingService}
		bad := feedback(0, 1, 100)
		bad.OperationsTriggered = append(bad.OperationsTriggered, "Other")
		err := v.validate(bad)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "invalid feedback")
		test.That(t, v.last, test.ShouldBeNil)
	})

	t.Run("terminal", func(t *testing.T) {
		v := &feedbackValidator{operation: route.ReroutingService}
		test.That(t, v.terminal(route.Result{Route: graph()}).Error(), test.ShouldEqual, MsgNoFeedback)
		test.That(t, v.validate(feedback(0, 1, 100)), test.ShouldBeNil)
		test.That(t, v.terminal(route.Result{Route: graph()}).Error(), test.ShouldEqual, MsgTerminalIncorrect)
		test.That(t, v.terminal(route.Result{}).Error(), test.ShouldEqual, MsgTerminalIncorrect)
	})
}

func TestTrackRouteAgainstFakeStack(t *testing.T) {
	// robot at (0,0) driven to (5,0): feedback chains node by node and it ends on the goal
	sess := newSession(t)
	stack := newFakeStack(t, fastStackConfig(), sess)
	test.That(t, stack.SetInitialPose(context.Background(), sess.InitialPose()), test.ShouldBeNil)

	report := newRouteTester(t, sess, stack).RunTrackRouteTest(context.Background())
	test.That(t, report.Outcome, test.ShouldEqual, OutcomeSucceeded)
	test.That(t, report.Passed(), test.ShouldBeTrue)
	test.That(t, sess.DistanceFromGoal(), test.ShouldBeLessThan, 0.5)
}

func TestTrackRouteFakeStackFaults(t *testing.T) {
	for _, tc := range []struct {
		name    string
		mutate  func(*fake.Config)
		outcome Outcome
		message string
	}{
		{"rerouted midway", func(c *fake.Config) { c.RerouteAt = 2 }, OutcomeSucceeded, ""},
		{"skipped node", func(c *fake.Config) { c.SkipNodeAt = 3 }, OutcomeInvariantViolation, MsgNotTrackingInOrder},
		{"dropped edge", func(c *fake.Config) { c.DropEdgeAt = 2 }, OutcomeInvariantViolation, MsgMissingEdgeInfo},
		{"stopped short", func(c *fake.Config) { c.StopShort = 1 }, OutcomeInvariantViolation, MsgMissedGoal},
		{"canceled", func(c *fake.Config) { c.CancelAfter = 2 }, OutcomeCanceled, "Goal failed with status code: 5"},
		{"rejected", func(c *fake.Config) { c.Reject = []string{route.ComputeAndTrackRouteAction} }, OutcomeRejected, MsgGoalRejected},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := fastStackConfig()
			tc.mutate(&cfg)
			sess := newSession(t)
			stack := newFakeStack(t, cfg, sess)
			test.That(t, stack.SetInitialPose(context.Background(), sess.InitialPose()), test.ShouldBeNil)

			report := newRouteTester(t, sess, stack).RunTrackRouteTest(context.Background())
			test.That(t, report.Test, test.ShouldEqual, TrackRouteTest)
			test.That(t, report.Outcome, test.ShouldEqual, tc.outcome)
			test.That(t, report.Message, test.ShouldEqual, tc.message)
		})
	}
}

func TestTrackRouteMissingEdgeInfo(t *testing.T) {
	// an event without an edge following a regular event
	sess := newSession(t)
	routes := scriptedRoutes(
		[]route.FeedbackEvent{feedback(0, 1, 100), feedback(1, 2, 0)},
		action.StatusSucceeded,
		route.Result{Path: path(), Route: graph()},
	)
	report := newRouteTester(t, sess, routes).RunTrackRouteTest(context.Background())
	test.That(t, report.Outcome, test.ShouldEqual, OutcomeInvariantViolation)
	test.That(t, report.Message, test.ShouldEqual, MsgMissingEdgeInfo)
}

func TestTrackRouteAborted(t *testing.T) {
	// aborted mid-tracking: fails at once and leaves the queued feedback alone
	sess := newSession(t)
	routes := scriptedRoutes(
		[]route.FeedbackEvent{feedback(0, 1, 100), feedback(1, 2, 101), feedback(9, 9, 0)},
		action.StatusAborted,
		route.Result{ErrorCode: route.ErrorCodeOperationFailed},
	)
	report := newRouteTester(t, sess, routes).RunTrackRouteTest(context.Background())
	test.That(t, report.Outcome, test.ShouldEqual, OutcomeAborted)
	test.That(t, report.Message, test.ShouldEqual, "Goal failed with status code: 6")
	test.That(t, sess.Feedback().Len(), test.ShouldEqual, 3)
}

func TestTrackRouteRejected(t *testing.T) {
	// rejected at submission: no further calls for the test
	sess := newSession(t)
	var availability, sends atomic.Int32
	routes := &inject.RouteService{
		AvailableFunc: func(context.Context, string) (bool, error) {
			availability.Add(1)
			return true, nil
		},
		ComputeAndTrackRouteFunc: func(
			context.Context, route.Request, func(route.FeedbackEvent),
		) (*action.Handle[route.Result], error) {
			sends.Add(1)
			handle := action.NewHandle[route.Result]("rejected")
			handle.Reject()
			return handle, nil
		},
	}
	report := newRouteTester(t, sess, routes).RunTrackRouteTest(context.Background())
	test.That(t, report.Outcome, test.ShouldEqual, OutcomeRejected)
	test.That(t, report.Message, test.ShouldEqual, "Goal rejected")
	test.That(t, availability.Load(), test.ShouldEqual, 1)
	test.That(t, sends.Load(), test.ShouldEqual, 1)
}

func TestTrackRouteSendsLiveStartRequest(t *testing.T) {
	sess := newSession(t)
	sess.OnPose(referenceframe.Stamp(spatialmath.NewForwardPose(4.9, 0)))
	requests := make(chan route.Request, 1)
	routes := scriptedRoutes([]route.FeedbackEvent{feedback(1, 2, 101)}, action.StatusSucceeded, route.Result{Route: graph()})
	send := routes.ComputeAndTrackRouteFunc
	routes.ComputeAndTrackRouteFunc = func(
		ctx context.Context, req route.Request, onFeedback func(route.FeedbackEvent),
	) (*action.Handle[route.Result], error) {
		requests <- req
		return send(ctx, req, onFeedback)
	}

	report := newRouteTester(t, sess, routes).RunTrackRouteTest(context.Background())
	test.That(t, report.Outcome, test.ShouldEqual, OutcomeSucceeded)
	req := <-requests
	test.That(t, req.UseStart, test.ShouldBeFalse)
	test.That(t, req.UsePoses, test.ShouldBeTrue)
	test.That(t, req.Goal, test.ShouldEqual, sess.GoalPose())
}

func TestTrackRouteTerminalChecks(t *testing.T) {
	t.Run("terminal mismatch", func(t *testing.T) {
		sess := newSession(t)
		routes := scriptedRoutes([]route.FeedbackEvent{feedback(0, 1, 100)}, action.StatusSucceeded, route.Result{Route: graph()})
		report := newRouteTester(t, sess, routes).RunTrackRouteTest(context.Background())
		test.That(t, report.Message, test.ShouldEqual, MsgTerminalIncorrect)
	})

	t.Run("no feedback", func(t *testing.T) {
		sess := newSession(t)
		routes := scriptedRoutes(nil, action.StatusSucceeded, route.Result{Route: graph()})
		report := newRouteTester(t, sess, routes).RunTrackRouteTest(context.Background())
		test.That(t, report.Outcome, test.ShouldEqual, OutcomeInvariantViolation)
		test.That(t, report.Message, test.ShouldEqual, MsgNoFeedback)
	})

	t.Run("missed goal", func(t *testing.T) {
		sess := newSession(t)
		routes := scriptedRoutes([]route.FeedbackEvent{feedback(1, 2, 101)}, action.StatusSucceeded, route.Result{Route: graph()})
		report := newRouteTester(t, sess, routes).RunTrackRouteTest(context.Background())
		test.That(t, report.Message, test.ShouldEqual, MsgMissedGoal)
	})
}

func TestTrackRouteCallFailures(t *testing.T) {
	t.Run("send fails", func(t *testing.T) {
		sess := newSession(t)
		routes := &inject.RouteService{
			AvailableFunc: func(context.Context, string) (bool, error) { return true, nil },
			ComputeAndTrackRouteFunc: func(
				context.Context, route.Request, func(route.FeedbackEvent),
			) (*action.Handle[route.Result], error) {
				return nil, errors.New("broken pipe")
			},
		}
		report := newRouteTester(t, sess, routes).RunTrackRouteTest(context.Background())
		test.That(t, report.Outcome, test.ShouldEqual, OutcomeCallFailed)
		test.That(t, report.Message, test.ShouldContainSubstring, "broken pipe")
	})

	t.Run("goal fails mid-flight", func(t *testing.T) {
		sess := newSession(t)
		routes := &inject.RouteService{
			AvailableFunc: func(context.Context, string) (bool, error) { return true, nil },
			ComputeAndTrackRouteFunc: func(
				context.Context, route.Request, func(route.FeedbackEvent),
			) (*action.Handle[route.Result], error) {
				handle := action.NewHandle[route.Result]("failing")
				handle.Accept()
				handle.Fail(errors.New("connection lost"))
				return handle, nil
			},
		}
		report := newRouteTester(t, sess, routes).RunTrackRouteTest(context.Background())
		test.That(t, report.Outcome, test.ShouldEqual, OutcomeCallFailed)
		test.That(t, report.Message, test.ShouldEqual, "connection lost")
	})

	t.Run("canceled context while waiting for the server", func(t *testing.T) {
		sess := newSession(t)
		routes := &inject.RouteService{
			AvailableFunc: func(context.Context, string) (bool, error) { return false, nil },
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		report := newRouteTester(t, sess, routes).RunTrackRouteTest(ctx)
		test.That(t, report.Outcome, test.ShouldEqual, OutcomeCallFailed)
	})
}

func TestOutcomeString(t *testing.T) {
	test.That(t, OutcomeInvariantViolation.String(), test.ShouldEqual, "invariant violation")
	test.That(t, Outcome(42).String(), test.ShouldEqual, "outcome(42)")
	test.That(t, Report{Test: TrackRouteTest, Outcome: OutcomeRejected, Message: MsgGoalRejected}.String(),
		test.ShouldEqual, "compute_and_track_route: rejected (Goal rejected)")
	test.That(t, trackState(9).String(), test.ShouldEqual, "state(9)")
}

func TestFormatReports(t *testing.T) {
	out := FormatReports([]Report{
		{Test: ComputeRouteTest, Outcome: OutcomeSucceeded},
		{Test: TrackRouteTest, Outcome: OutcomeInvariantViolation, Message: MsgMissingEdgeInfo},
	})
	test.That(t, out, test.ShouldContainSubstring, "compute_and_track_route")
	test.That(t, out, test.ShouldContainSubstring, "invariant violation")
	test.That(t, out, test.ShouldContainSubstring, MsgMissingEdgeInfo)
	test.That(t, out, test.ShouldContainSubstring, "1/2 PASSED")
}
