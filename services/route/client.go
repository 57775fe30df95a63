package route

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/navtester/action"
	"go.viam.com/navtester/logging"
	"go.viam.com/navtester/referenceframe"
	"go.viam.com/navtester/ros"
	"go.viam.com/navtester/ros/rosbridge"
)

// Client talks to a route server through rosbridge.
type Client struct {
	bridge    *rosbridge.Client
	namespace string
	logger    logging.Logger
}

var _ Service = (*Client)(nil)

// NewClient returns a route client resolving action names under namespace.
func NewClient(bridge *rosbridge.Client, namespace string, logger logging.Logger) *Client {
	return &Client{bridge: bridge, namespace: namespace, logger: logger}
}

// Available reports whether the action server is listed by rosapi.
func (c *Client) Available(ctx context.Context, actionName string) (bool, error) {
	return c.bridge.ActionAvailable(ctx, rosbridge.ResolveName(c.namespace, actionName))
}

// ComputeRoute sends a compute_route goal.
func (c *Client) ComputeRoute(ctx context.Context, req Request) (*action.Handle[Result], error) {
	return c.send(ctx, ComputeRouteAction, ros.TypeComputeRoute, req, nil, decodeComputeRouteResult)
}

// ComputeAndTrackRoute sends a compute_and_track_route goal with feedback.
func (c *Client) ComputeAndTrackRoute(
	ctx context.Context,
	req Request,
	onFeedback func(FeedbackEvent),
) (*action.Handle[Result], error) {
	return c.send(ctx, ComputeAndTrackRouteAction, ros.TypeComputeAndTrackRoute, req, onFeedback, decodeTrackRouteResult)
}

func (c *Client) send(
	ctx context.Context,
	actionName, actionType string,
	req Request,
	onFeedback func(FeedbackEvent),
	decode func(json.RawMessage) (Result, error),
) (*action.Handle[Result], error) {
	name := rosbridge.ResolveName(c.namespace, actionName)
	id := rosbridge.NewGoalID()
	handle := action.NewHandle[Result](id)

	handler := rosbridge.GoalHandler{
		OnFeedback: func(values json.RawMessage) {
			var msg ros.ComputeAndTrackRouteFeedback
			if err := json.Unmarshal(values, &msg); err != nil {
				c.logger.Warnw("dropping undecodable feedback", "action", name, "goal", id, "error", err)
				return
			}
			handle.SetStatus(action.StatusExecuting)
			if onFeedback != nil {
				onFeedback(FeedbackEventFromROS(msg))
			}
		},
		OnResult: func(r rosbridge.ActionResult) {
			c.resolve(handle, name, r, decode)
		},
	}
	if err := c.bridge.SendActionGoal(ctx, id, name, actionType, RequestToROS(req), handler); err != nil {
		return nil, err
	}
	return handle, nil
}

func (c *Client) resolve(
	handle *action.Handle[Result],
	name string,
	r rosbridge.ActionResult,
	decode func(json.RawMessage) (Result, error),
) {
	switch {
	case errors.Is(r.Err, action.ErrGoalRejected):
		handle.Reject()
		return
	case r.Err != nil && !(r.Status == action.StatusCanceled || r.Status == action.StatusAborted):
		handle.Fail(r.Err)
		return
	}

	result, err := decode(r.Values)
	if err != nil && r.Err == nil {
		handle.Fail(errors.Wrapf(err, "decoding %s result", name))
		return
	}
	status := r.Status
	if status == action.StatusUnknown && r.Err == nil {
		status = action.StatusSucceeded
	}
	if !status.Terminal() {
		handle.Fail(errors.Errorf("%s result carried non-terminal status %v", name, status))
		return
	}
	c.logger.Debugw("goal finished", "action", name, "goal", handle.ID(), "status", status)
	handle.Resolve(status, result)
}

func decodeComputeRouteResult(values json.RawMessage) (Result, error) {
	var msg ros.ComputeRouteResult
	if err := json.Unmarshal(values, &msg); err != nil {
		return Result{}, err
	}
	return Result{
		Path:      msg.Path.ToFrames(),
		Route:     GraphFromROS(msg.Route),
		ErrorCode: ErrorCode(msg.ErrorCode),
		ErrorMsg:  msg.ErrorMsg,
		Duration:  msg.PlanningTime.ToDuration(),
	}, nil
}

func decodeTrackRouteResult(values json.RawMessage) (Result, error) {
	var msg ros.ComputeAndTrackRouteResult
	if err := json.Unmarshal(values, &msg); err != nil {
		return Result{}, err
	}
	return Result{
		Path:      msg.Path.ToFrames(),
		Route:     GraphFromROS(msg.Route),
		ErrorCode: ErrorCode(msg.ErrorCode),
		ErrorMsg:  msg.ErrorMsg,
		Duration:  msg.ExecutionDuration.ToDuration(),
	}, nil
}

// RequestToROS converts a request to its goal message.
func RequestToROS(req Request) ros.ComputeRouteGoal {
	return ros.ComputeRouteGoal{
		StartID:  req.StartID,
		GoalID:   req.GoalID,
		Start:    ros.PoseStampedFromFrame(req.Start),
		Goal:     ros.PoseStampedFromFrame(req.Goal),
		UseStart: req.UseStart,
		UsePoses: req.UsePoses,
	}
}

// RequestFromROS converts a goal message to a request.
func RequestFromROS(goal ros.ComputeRouteGoal) Request {
	return Request{
		Start:    goal.Start.ToFrame(),
		Goal:     goal.Goal.ToFrame(),
		StartID:  goal.StartID,
		GoalID:   goal.GoalID,
		UseStart: goal.UseStart,
		UsePoses: goal.UsePoses,
	}
}

// GraphFromROS converts a route message.
func GraphFromROS(r ros.Route) Graph {
	return Graph{
		Nodes: lo.Map(r.Nodes, func(n ros.RouteNode, _ int) Node {
			return Node{ID: n.NodeID, Position: n.Position.ToR3()}
		}),
		EdgeIDs: r.EdgeIDs,
		Cost:    r.RouteCost,
	}
}

// GraphToROS converts a route to its message.
func GraphToROS(g Graph) ros.Route {
	return ros.Route{
		Header:    ros.Header{FrameID: referenceframe.Map},
		RouteCost: g.Cost,
		Nodes: lo.Map(g.Nodes, func(n Node, _ int) ros.RouteNode {
			return ros.RouteNode{NodeID: n.ID, Position: ros.PointFromR3(n.Position)}
		}),
		EdgeIDs: g.EdgeIDs,
	}
}

// FeedbackEventFromROS converts a feedback message.
func FeedbackEventFromROS(msg ros.ComputeAndTrackRouteFeedback) FeedbackEvent {
	return FeedbackEvent{
		Path:                msg.Path.ToFrames(),
		Route:               GraphFromROS(msg.Route),
		OperationsTriggered: msg.OperationsTriggered,
		LastNodeID:          msg.LastNodeID,
		NextNodeID:          msg.NextNodeID,
		CurrentEdgeID:       msg.CurrentEdgeID,
		Rerouted:            msg.Rerouted,
	}
}

// FeedbackEventToROS converts a feedback event to its message.
func FeedbackEventToROS(e FeedbackEvent) ros.ComputeAndTrackRouteFeedback {
	return ros.ComputeAndTrackRouteFeedback{
		LastNodeID:          e.LastNodeID,
		NextNodeID:          e.NextNodeID,
		CurrentEdgeID:       e.CurrentEdgeID,
		Route:               GraphToROS(e.Route),
		Path:                ros.PathFromFrames(referenceframe.Map, e.Path),
		OperationsTriggered: e.OperationsTriggered,
		Rerouted:            e.Rerouted,
	}
}

// ResultToROS converts a result to a compute_and_track_route result message.
func ResultToROS(r Result) ros.ComputeAndTrackRouteResult {
	return ros.ComputeAndTrackRouteResult{
		ExecutionDuration: ros.DurationFrom(r.Duration),
		Path:              ros.PathFromFrames(referenceframe.Map, r.Path),
		Route:             GraphToROS(r.Route),
		ErrorCode:         uint16(r.ErrorCode),
		ErrorMsg:          r.ErrorMsg,
	}
}
