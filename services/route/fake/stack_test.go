package fake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/navtester/action"
	"go.viam.com/navtester/logging"
	"go.viam.com/navtester/referenceframe"
	"go.viam.com/navtester/services/lifecycle"
	"go.viam.com/navtester/services/route"
	"go.viam.com/navtester/spatialmath"
)

func goal(x, y float64) *referenceframe.PoseInFrame {
	return referenceframe.Stamp(spatialmath.NewForwardPose(x, y))
}

type recorder struct {
	mu     sync.Mutex
	events []route.FeedbackEvent
}

func (r *recorder) onFeedback(e route.FeedbackEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) get() []route.FeedbackEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]route.FeedbackEvent(nil), r.events...)
}

// track runs a tracking goal to completion on a mock clock.
func track(t *testing.T, cfg Config) (*NavigationStack, route.Result, action.Status, []route.FeedbackEvent) {
	t.Helper()
	mock := clock.NewMock()
	stack := NewNavigationStack(cfg, mock, logging.NewTestLogger(t))
	t.Cleanup(func() { stack.Close() })

	var rec recorder
	handle, err := stack.ComputeAndTrackRoute(context.Background(), route.Request{Goal: goal(5, 0), UsePoses: true}, rec.onFeedback)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, handle.WaitAccepted(context.Background()), test.ShouldBeNil)
	for {
		select {
		case <-handle.Done():
			result, status, err := handle.Result()
			test.That(t, err, test.ShouldBeNil)
			return stack, result, status, rec.get()
		default:
			mock.Add(cfg.StepInterval)
		}
	}
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg, test.ShouldResemble, DefaultConfig())

	cfg, err = NewConfig(map[string]interface{}{
		"node_spacing":  2.5,
		"step_interval": "10ms",
		"reject":        []interface{}{route.ComputeRouteAction},
		"drop_edge_at":  "2",
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.NodeSpacing, test.ShouldEqual, 2.5)
	test.That(t, cfg.StepInterval, test.ShouldEqual, 10*time.Millisecond)
	test.That(t, cfg.Reject, test.ShouldResemble, []string{route.ComputeRouteAction})
	test.That(t, cfg.DropEdgeAt, test.ShouldEqual, 2)

	_, err = NewConfig(map[string]interface{}{"warp_speed": true})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewConfig(map[string]interface{}{"node_spacing": 0})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "node_spacing")
}

func TestComputeRoute(t *testing.T) {
	stack := NewNavigationStack(DefaultConfig(), clock.New(), logging.NewTestLogger(t))
	defer stack.Close()
	ctx := context.Background()

	handle, err := stack.ComputeRoute(ctx, route.Request{Start: goal(0, 0), Goal: goal(5, 0), UseStart: true, UsePoses: true})
	test.That(t, err, test.ShouldBeNil)
	result, status, err := handle.Await(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, action.StatusSucceeded)
	test.That(t, result.Validate(), test.ShouldBeNil)
	test.That(t, len(result.Route.Nodes), test.ShouldEqual, 6)
	test.That(t, result.Route.EdgeIDs, test.ShouldResemble, []uint16{100, 101, 102, 103, 104})
	test.That(t, result.Route.Cost, test.ShouldAlmostEqual, 5)
	test.That(t, len(result.Path), test.ShouldEqual, 6)

	t.Run("short route still has two nodes", func(t *testing.T) {
		handle, err := stack.ComputeRoute(ctx, route.Request{Start: goal(0, 0), Goal: goal(0.2, 0), UseStart: true})
		test.That(t, err, test.ShouldBeNil)
		result, _, _ := handle.Await(ctx)
		test.That(t, len(result.Route.Nodes), test.ShouldEqual, 2)
		test.That(t, len(result.Route.EdgeIDs), test.ShouldEqual, 1)
	})

	t.Run("too many edges", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.NodeSpacing = 0.0001
		dense := NewNavigationStack(cfg, clock.New(), logging.NewTestLogger(t))
		defer dense.Close()
		handle, err := dense.ComputeRoute(ctx, route.Request{Start: goal(0, 0), Goal: goal(10, 0), UseStart: true})
		test.That(t, err, test.ShouldBeNil)
		result, status, _ := handle.Await(ctx)
		test.That(t, status, test.ShouldEqual, action.StatusAborted)
		test.That(t, result.ErrorCode, test.ShouldEqual, route.ErrorCodeNoValidRoute)
		test.That(t, result.ErrorMsg, test.ShouldContainSubstring, "edge ids")
	})

	t.Run("coinciding start and goal", func(t *testing.T) {
		handle, err := stack.ComputeRoute(ctx, route.Request{Start: goal(1, 1), Goal: goal(1, 1), UseStart: true})
		test.That(t, err, test.ShouldBeNil)
		result, status, _ := handle.Await(ctx)
		test.That(t, status, test.ShouldEqual, action.StatusAborted)
		test.That(t, result.ErrorCode, test.ShouldEqual, route.ErrorCodeNoValidRoute)
	})
}

func TestComputeRouteRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reject = []string{route.ComputeRouteAction}
	stack := NewNavigationStack(cfg, clock.New(), logging.NewTestLogger(t))
	defer stack.Close()

	handle, err := stack.ComputeRoute(context.Background(), route.Request{Goal: goal(5, 0)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, errors.Is(handle.WaitAccepted(context.Background()), action.ErrGoalRejected), test.ShouldBeTrue)
	test.That(t, stack.Goals(), test.ShouldEqual, 1)
}

func TestTrack(t *testing.T) {
	stack, result, status, events := track(t, DefaultConfig())
	test.That(t, status, test.ShouldEqual, action.StatusSucceeded)
	test.That(t, len(events), test.ShouldEqual, 5)
	for i, e := range events {
		test.That(t, e.Validate(route.ReroutingService), test.ShouldBeNil)
		test.That(t, e.LastNodeID, test.ShouldEqual, uint16(i))
		test.That(t, e.NextNodeID, test.ShouldEqual, uint16(i+1))
		test.That(t, e.CurrentEdgeID, test.ShouldEqual, uint16(100+i))
	}
	last, ok := result.Route.LastNode()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, events[len(events)-1].NextNodeID, test.ShouldEqual, last.ID)
	test.That(t, spatialmath.PlanarDistance(stack.Pose().Pose(), goal(5, 0).Pose()), test.ShouldBeLessThan, 1e-9)
}

func TestTrackFaults(t *testing.T) {
	t.Run("abort", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AbortAfter = 2
		_, result, status, events := track(t, cfg)
		test.That(t, status, test.ShouldEqual, action.StatusAborted)
		test.That(t, result.ErrorCode, test.ShouldEqual, route.ErrorCodeOperationFailed)
		test.That(t, len(events), test.ShouldEqual, 2)
	})

	t.Run("cancel", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.CancelAfter = 1
		_, _, status, events := track(t, cfg)
		test.That(t, status, test.ShouldEqual, action.StatusCanceled)
		test.That(t, len(events), test.ShouldEqual, 1)
	})

	t.Run("dropped edge and skipped node", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DropEdgeAt = 2
		cfg.SkipNodeAt = 4
		_, _, status, events := track(t, cfg)
		test.That(t, status, test.ShouldEqual, action.StatusSucceeded)
		test.That(t, events[1].CurrentEdgeID, test.ShouldEqual, uint16(0))
		test.That(t, events[3].LastNodeID, test.ShouldNotEqual, events[2].NextNodeID)
	})

	t.Run("reroute", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RerouteAt = 3
		_, _, _, events := track(t, cfg)
		test.That(t, len(events), test.ShouldEqual, 6)
		test.That(t, events[2].Rerouted, test.ShouldBeTrue)
		test.That(t, route.EventsEqual(events[2], events[3]), test.ShouldBeFalse)
	})

	t.Run("stop short", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.StopShort = 1.5
		stack, _, status, _ := track(t, cfg)
		test.That(t, status, test.ShouldEqual, action.StatusSucceeded)
		test.That(t, spatialmath.PlanarDistance(stack.Pose().Pose(), goal(5, 0).Pose()), test.ShouldAlmostEqual, 1.5)
	})
}

func TestLocalizerAndLifecycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConvergeAfter = 1
	cfg.ActivateAfter = 2
	cfg.FailShutdown = []string{lifecycle.LocalizationManager}
	stack := NewNavigationStack(cfg, clock.New(), logging.NewTestLogger(t))
	defer stack.Close()
	ctx := context.Background()

	poses := make(chan *referenceframe.PoseInFrame, 2)
	unsubscribe, err := stack.SubscribePose(ctx, func(pif *referenceframe.PoseInFrame) { poses <- pif })
	test.That(t, err, test.ShouldBeNil)

	initial := goal(1, 2)
	test.That(t, stack.SetInitialPose(ctx, initial), test.ShouldBeNil)
	test.That(t, len(poses), test.ShouldEqual, 0)
	test.That(t, stack.SetInitialPose(ctx, initial), test.ShouldBeNil)
	test.That(t, <-poses, test.ShouldEqual, initial)
	test.That(t, stack.Pose(), test.ShouldEqual, initial)

	unsubscribe()
	test.That(t, stack.SetInitialPose(ctx, goal(3, 3)), test.ShouldBeNil)
	test.That(t, len(poses), test.ShouldEqual, 0)

	for i := 0; i < 2; i++ {
		state, err := stack.GetState(ctx, lifecycle.LocalizerNode)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, state, test.ShouldEqual, "inactive")
	}
	state, err := stack.GetState(ctx, lifecycle.LocalizerNode)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, lifecycle.StateActive)

	ok, err := stack.Manage(ctx, lifecycle.NavigationManager, lifecycle.CommandShutdown)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	_, err = stack.Manage(ctx, lifecycle.LocalizationManager, lifecycle.CommandShutdown)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, stack.Commands(), test.ShouldResemble, []string{
		"lifecycle_manager_navigation SHUTDOWN",
		"lifecycle_manager_localization SHUTDOWN",
	})
}
