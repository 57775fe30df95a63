// Package route contains the route server's request, result and feedback types, the checks a
// well-formed result or feedback event must pass, and a client for the compute-route and
// compute-and-track-route actions.
package route

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/navtester/action"
	"go.viam.com/navtester/referenceframe"
)

// Action names served by the route server.
const (
	ComputeRouteAction         = "compute_route"
	ComputeAndTrackRouteAction = "compute_and_track_route"
)

// ReroutingService is the operation the route tracker reports on every feedback event.
const ReroutingService = "ReroutingService"

// ErrorCode is the error code a route server attaches to a result.
type ErrorCode uint16

// The set of known error codes.
const (
	ErrorCodeNone                      ErrorCode = 0
	ErrorCodeUnknown                   ErrorCode = 400
	ErrorCodeTFError                   ErrorCode = 401
	ErrorCodeNoValidGraph              ErrorCode = 402
	ErrorCodeIndeterminantNodesOnGraph ErrorCode = 403
	ErrorCodeTimeout                   ErrorCode = 404
	ErrorCodeNoValidRoute              ErrorCode = 405
	ErrorCodeInvalidEdgeScorerUse      ErrorCode = 406
	ErrorCodeOperationFailed           ErrorCode = 407
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeNone:
		return "none"
	case ErrorCodeUnknown:
		return "unknown"
	case ErrorCodeTFError:
		return "tf error"
	case ErrorCodeNoValidGraph:
		return "no valid graph"
	case ErrorCodeIndeterminantNodesOnGraph:
		return "indeterminant nodes on graph"
	case ErrorCodeTimeout:
		return "timeout"
	case ErrorCodeNoValidRoute:
		return "no valid route"
	case ErrorCodeInvalidEdgeScorerUse:
		return "invalid edge scorer use"
	case ErrorCodeOperationFailed:
		return "operation failed"
	}
	return fmt.Sprintf("error code %d", uint16(c))
}

// Node is one node of a route graph.
type Node struct {
	ID       uint16
	Position r3.Vector
}

// Graph is a route: nodes in travel order, the edges joining them and the route's cost.
type Graph struct {
	Nodes   []Node
	EdgeIDs []uint16
	Cost    float64
}

// LastNode returns the final node of the route, if any.
func (g Graph) LastNode() (Node, bool) {
	if len(g.Nodes) == 0 {
		return Node{}, false
	}
	return g.Nodes[len(g.Nodes)-1], true
}

// Request asks for a route to Goal. With UseStart false the route server starts from the
// robot's live tracked pose and Start is ignored. With UsePoses false the node ids are used.
type Request struct {
	Start    *referenceframe.PoseInFrame
	Goal     *referenceframe.PoseInFrame
	StartID  uint16
	GoalID   uint16
	UseStart bool
	UsePoses bool
}

// Result is the terminal result of either action.
type Result struct {
	Path      []*referenceframe.PoseInFrame
	Route     Graph
	ErrorCode ErrorCode
	ErrorMsg  string
	// Duration is the planning time for compute_route and the execution time for
	// compute_and_track_route.
	Duration time.Duration
}

// FeedbackEvent is one progress update of a compute_and_track_route goal.
type FeedbackEvent struct {
	Path                []*referenceframe.PoseInFrame
	Route               Graph
	OperationsTriggered []string
	LastNodeID          uint16
	NextNodeID          uint16
	CurrentEdgeID       uint16
	// Rerouted is set when the update only carries a freshly computed route. Node continuity
	// is not asserted from such an event.
	Rerouted bool
}

// A Service computes routes and tracks them.
type Service interface {
	// Available reports whether the named action server is up.
	Available(ctx context.Context, actionName string) (bool, error)
	ComputeRoute(ctx context.Context, req Request) (*action.Handle[Result], error)
	// ComputeAndTrackRoute delivers feedback to onFeedback in arrival order. onFeedback must
	// not block.
	ComputeAndTrackRoute(
		ctx context.Context,
		req Request,
		onFeedback func(FeedbackEvent),
	) (*action.Handle[Result], error)
}
