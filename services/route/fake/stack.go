// Package fake is an in-process navigation stack: a route server that plans straight-line
// routes over evenly spaced nodes and drives a simulated robot along them, a localizer that
// reports the robot's pose, and lifecycle nodes and managers. It can be scripted through Config
// to misbehave.
package fake

import (
	"context"
	"math"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/navtester/action"
	"go.viam.com/navtester/logging"
	"go.viam.com/navtester/referenceframe"
	"go.viam.com/navtester/services/lifecycle"
	"go.viam.com/navtester/services/localization"
	"go.viam.com/navtester/services/route"
	"go.viam.com/navtester/spatialmath"
	"go.viam.com/navtester/utils"
)

const firstEdgeID = 100

// maxEdges keeps node and edge ids within uint16.
const maxEdges = math.MaxUint16 - firstEdgeID

var (
	_ = route.Service(&NavigationStack{})
	_ = lifecycle.Service(&NavigationStack{})
	_ = localization.Service(&NavigationStack{})
)

// NavigationStack is a simulated navigation stack.
type NavigationStack struct {
	cfg     Config
	clk     clock.Clock
	logger  logging.Logger
	workers *utils.StoppableWorkers

	mu             sync.Mutex
	pose           *referenceframe.PoseInFrame
	subscribers    map[int]func(*referenceframe.PoseInFrame)
	nextSubscriber int
	probes         int
	initialPoses   int
	stateQueries   map[string]int
	commands       []string
	goals          int
}

// NewNavigationStack returns a stack with the robot at the origin.
func NewNavigationStack(cfg Config, clk clock.Clock, logger logging.Logger) *NavigationStack {
	return &NavigationStack{
		cfg:          cfg,
		clk:          clk,
		logger:       logger,
		workers:      utils.NewStoppableWorkers(),
		pose:         referenceframe.Stamp(spatialmath.NewZeroPose()),
		subscribers:  map[int]func(*referenceframe.PoseInFrame){},
		stateQueries: map[string]int{},
	}
}

// Close stops any goal still executing.
func (s *NavigationStack) Close() error {
	s.workers.Stop()
	return nil
}

// Pose returns the simulated robot's true pose.
func (s *NavigationStack) Pose() *referenceframe.PoseInFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose
}

// Commands returns every lifecycle command received, as "<manager> <COMMAND>".
func (s *NavigationStack) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Goals returns the number of route goals received.
func (s *NavigationStack) Goals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goals
}

// Available answers both action server and service availability.
func (s *NavigationStack) Available(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes++
	return s.probes > s.cfg.AvailableAfter, nil
}

// GetState reports a node inactive for its first ActivateAfter queries.
func (s *NavigationStack) GetState(ctx context.Context, node string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateQueries[node]++
	if s.stateQueries[node] > s.cfg.ActivateAfter {
		return lifecycle.StateActive, nil
	}
	return "inactive", nil
}

// Manage records the command.
func (s *NavigationStack) Manage(ctx context.Context, manager string, command lifecycle.Command) (bool, error) {
	s.mu.Lock()
	s.commands = append(s.commands, manager+" "+command.String())
	s.mu.Unlock()
	if lo.Contains(s.cfg.FailShutdown, manager) && command == lifecycle.CommandShutdown {
		return false, errors.Errorf("%s did not respond", lifecycle.ManageNodesService(manager))
	}
	return true, nil
}

// SetInitialPose teleports the robot. The localizer answers once ConvergeAfter estimates were
// ignored.
func (s *NavigationStack) SetInitialPose(ctx context.Context, pose *referenceframe.PoseInFrame) error {
	if pose == nil {
		return errors.New("initial pose is required")
	}
	s.mu.Lock()
	s.initialPoses++
	converged := s.initialPoses > s.cfg.ConvergeAfter
	if converged {
		s.pose = pose
	}
	s.mu.Unlock()
	if converged {
		s.publishPose(pose)
	}
	return nil
}

// SubscribePose registers onPose for every pose the localizer publishes.
func (s *NavigationStack) SubscribePose(ctx context.Context, onPose func(*referenceframe.PoseInFrame)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubscriber
	s.nextSubscriber++
	s.subscribers[id] = onPose
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}, nil
}

func (s *NavigationStack) publishPose(pose *referenceframe.PoseInFrame) {
	s.mu.Lock()
	subscribers := lo.Values(s.subscribers)
	s.mu.Unlock()
	for _, onPose := range subscribers {
		onPose(pose)
	}
}

func (s *NavigationStack) moveTo(point r3.Vector) {
	pose := referenceframe.Stamp(spatialmath.NewForwardPoseZ(point.X, point.Y, point.Z))
	s.mu.Lock()
	s.pose = pose
	s.mu.Unlock()
	s.publishPose(pose)
}

func (s *NavigationStack) newGoal(actionName string) (*action.Handle[route.Result], bool) {
	s.mu.Lock()
	s.goals++
	s.mu.Unlock()
	handle := action.NewHandle[route.Result](uuid.NewString())
	if lo.Contains(s.cfg.Reject, actionName) {
		s.logger.Infow("rejecting goal", "action", actionName, "goal", handle.ID())
		handle.Reject()
		return handle, false
	}
	handle.Accept()
	return handle, true
}

// plan lays nodes from start to goal, at most NodeSpacing apart, always at least two.
func (s *NavigationStack) plan(req route.Request) (route.Graph, []*referenceframe.PoseInFrame, error) {
	if req.Goal == nil {
		return route.Graph{}, nil, errors.New("goal pose is required")
	}
	start := s.Pose()
	if req.UseStart && req.Start != nil {
		start = req.Start
	}
	from, to := start.Pose().Point(), req.Goal.Pose().Point()
	length := spatialmath.PlanarDistance(start.Pose(), req.Goal.Pose())
	if length == 0 {
		return route.Graph{}, nil, errors.New("start and goal coincide")
	}

	edges := int(math.Max(1, math.Ceil(length/s.cfg.NodeSpacing)))
	if edges > maxEdges {
		return route.Graph{}, nil, errors.Errorf("route of %d edges exceeds the %d edge ids available", edges, maxEdges)
	}
	graph := route.Graph{Cost: length}
	path := make([]*referenceframe.PoseInFrame, 0, edges+1)
	for i := 0; i <= edges; i++ {
		point := from.Add(to.Sub(from).Mul(float64(i) / float64(edges)))
		graph.Nodes = append(graph.Nodes, route.Node{ID: uint16(i), Position: point})
		path = append(path, referenceframe.Stamp(spatialmath.NewForwardPoseZ(point.X, point.Y, point.Z)))
		if i < edges {
			graph.EdgeIDs = append(graph.EdgeIDs, uint16(firstEdgeID+i))
		}
	}
	return graph, path, nil
}

// ComputeRoute plans a route and resolves the goal before returning.
func (s *NavigationStack) ComputeRoute(ctx context.Context, req route.Request) (*action.Handle[route.Result], error) {
	handle, ok := s.newGoal(route.ComputeRouteAction)
	if !ok {
		return handle, nil
	}
	graph, path, err := s.plan(req)
	if err != nil {
		handle.Resolve(action.StatusAborted, route.Result{ErrorCode: route.ErrorCodeNoValidRoute, ErrorMsg: err.Error()})
		return handle, nil
	}
	handle.Resolve(action.StatusSucceeded, route.Result{Path: path, Route: graph, Duration: s.cfg.StepInterval})
	return handle, nil
}

// ComputeAndTrackRoute plans a route and drives the robot along it in the background, one
// edge per StepInterval, sending feedback after each edge.
func (s *NavigationStack) ComputeAndTrackRoute(
	ctx context.Context,
	req route.Request,
	onFeedback func(route.FeedbackEvent),
) (*action.Handle[route.Result], error) {
	handle, ok := s.newGoal(route.ComputeAndTrackRouteAction)
	if !ok {
		return handle, nil
	}
	graph, path, err := s.plan(req)
	if err != nil {
		handle.Resolve(action.StatusAborted, route.Result{ErrorCode: route.ErrorCodeNoValidRoute, ErrorMsg: err.Error()})
		return handle, nil
	}
	if onFeedback == nil {
		onFeedback = func(route.FeedbackEvent) {}
	}
	s.workers.Add(func(ctx context.Context) {
		s.track(ctx, handle, graph, path, req.Goal, onFeedback)
	})
	return handle, nil
}

func (s *NavigationStack) track(
	ctx context.Context,
	handle *action.Handle[route.Result],
	graph route.Graph,
	path []*referenceframe.PoseInFrame,
	goal *referenceframe.PoseInFrame,
	onFeedback func(route.FeedbackEvent),
) {
	handle.SetStatus(action.StatusExecuting)
	started := s.clk.Now()
	ticker := s.clk.Ticker(s.cfg.StepInterval)
	defer ticker.Stop()

	event := func(edge int) route.FeedbackEvent {
		return route.FeedbackEvent{
			Path:                path,
			Route:               graph,
			OperationsTriggered: []string{route.ReroutingService},
			LastNodeID:          graph.Nodes[edge].ID,
			NextNodeID:          graph.Nodes[edge+1].ID,
			CurrentEdgeID:       graph.EdgeIDs[edge],
		}
	}

	sent := 0
	for edge := range graph.EdgeIDs {
		select {
		case <-ctx.Done():
			handle.Resolve(action.StatusCanceled, route.Result{})
			return
		case <-ticker.C:
		}

		next := graph.Nodes[edge+1].Position
		if edge == len(graph.EdgeIDs)-1 && s.cfg.StopShort > 0 {
			heading := next.Sub(graph.Nodes[0].Position)
			heading.Z = 0
			next = next.Sub(heading.Normalize().Mul(s.cfg.StopShort))
		}
		s.moveTo(next)

		if s.cfg.RerouteAt == sent+1 {
			rerouted := event(edge)
			rerouted.Rerouted = true
			onFeedback(rerouted)
		}
		e := event(edge)
		sent++
		if s.cfg.DropEdgeAt == sent {
			e.CurrentEdgeID = 0
		}
		if s.cfg.SkipNodeAt == sent {
			e.LastNodeID += uint16(len(graph.Nodes))
		}
		onFeedback(e)

		switch sent {
		case s.cfg.AbortAfter:
			s.logger.Infow("aborting goal", "goal", handle.ID(), "feedback_sent", sent)
			handle.Resolve(action.StatusAborted, route.Result{ErrorCode: route.ErrorCodeOperationFailed})
			return
		case s.cfg.CancelAfter:
			s.logger.Infow("canceling goal", "goal", handle.ID(), "feedback_sent", sent)
			handle.Resolve(action.StatusCanceled, route.Result{})
			return
		}
	}

	s.logger.Debugw("goal reached", "goal", handle.ID(), "target", goal)
	handle.Resolve(action.StatusSucceeded, route.Result{
		Path:     path,
		Route:    graph,
		Duration: s.clk.Since(started),
	})
}
