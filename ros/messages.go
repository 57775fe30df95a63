// Package ros holds the ROS 2 message shapes exchanged with the navigation stack, as rosbridge
// encodes them in JSON, and conversions to the tester's own pose types.
package ros

// Interface type names used when advertising, subscribing and calling.
const (
	TypePoseWithCovarianceStamped = "geometry_msgs/msg/PoseWithCovarianceStamped"
	TypeComputeRoute              = "nav2_msgs/action/ComputeRoute"
	TypeComputeAndTrackRoute      = "nav2_msgs/action/ComputeAndTrackRoute"
	TypeGetState                  = "lifecycle_msgs/srv/GetState"
	TypeManageLifecycleNodes      = "nav2_msgs/srv/ManageLifecycleNodes"
)

// Time is builtin_interfaces/Time.
type Time struct {
	Sec     int32  `json:"sec"`
	Nanosec uint32 `json:"nanosec"`
}

// Duration is builtin_interfaces/Duration.
type Duration struct {
	Sec     int32  `json:"sec"`
	Nanosec uint32 `json:"nanosec"`
}

// Header is std_msgs/Header.
type Header struct {
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// Point is geometry_msgs/Point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is geometry_msgs/Pose.
type Pose struct {
	Position    Point      `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// PoseStamped is geometry_msgs/PoseStamped.
type PoseStamped struct {
	Header Header `json:"header"`
	Pose   Pose   `json:"pose"`
}

// PoseWithCovariance is geometry_msgs/PoseWithCovariance.
type PoseWithCovariance struct {
	Pose       Pose        `json:"pose"`
	Covariance [36]float64 `json:"covariance"`
}

// PoseWithCovarianceStamped is geometry_msgs/PoseWithCovarianceStamped, used for both the
// initial pose estimate and the localizer's published estimate.
type PoseWithCovarianceStamped struct {
	Header Header             `json:"header"`
	Pose   PoseWithCovariance `json:"pose"`
}

// Path is nav_msgs/Path.
type Path struct {
	Header Header        `json:"header"`
	Poses  []PoseStamped `json:"poses"`
}

// RouteNode is nav2_msgs/RouteNode.
type RouteNode struct {
	NodeID   uint16 `json:"nodeid"`
	Position Point  `json:"position"`
}

// Route is nav2_msgs/Route.
type Route struct {
	Header    Header      `json:"header"`
	RouteCost float64     `json:"route_cost"`
	Nodes     []RouteNode `json:"nodes"`
	EdgeIDs   []uint16    `json:"edge_ids"`
}

// ComputeRouteGoal is the goal of nav2_msgs/action/ComputeRoute. ComputeAndTrackRoute goals
// share the same shape.
type ComputeRouteGoal struct {
	StartID  uint16      `json:"start_id"`
	GoalID   uint16      `json:"goal_id"`
	Start    PoseStamped `json:"start"`
	Goal     PoseStamped `json:"goal"`
	UseStart bool        `json:"use_start"`
	UsePoses bool        `json:"use_poses"`
}

// ComputeRouteResult is the result of nav2_msgs/action/ComputeRoute.
type ComputeRouteResult struct {
	PlanningTime Duration `json:"planning_time"`
	Path         Path     `json:"path"`
	Route        Route    `json:"route"`
	ErrorCode    uint16   `json:"error_code"`
	ErrorMsg     string   `json:"error_msg"`
}

// ComputeAndTrackRouteFeedback is the feedback of nav2_msgs/action/ComputeAndTrackRoute.
type ComputeAndTrackRouteFeedback struct {
	LastNodeID          uint16   `json:"last_node_id"`
	NextNodeID          uint16   `json:"next_node_id"`
	CurrentEdgeID       uint16   `json:"current_edge_id"`
	Route               Route    `json:"route"`
	Path                Path     `json:"path"`
	OperationsTriggered []string `json:"operations_triggered"`
	Rerouted            bool     `json:"rerouted"`
}

// ComputeAndTrackRouteResult is the result of nav2_msgs/action/ComputeAndTrackRoute.
type ComputeAndTrackRouteResult struct {
	ExecutionDuration Duration `json:"execution_duration"`
	Path              Path     `json:"path"`
	Route             Route    `json:"route"`
	ErrorCode         uint16   `json:"error_code"`
	ErrorMsg          string   `json:"error_msg"`
}

// LifecycleState is lifecycle_msgs/State.
type LifecycleState struct {
	ID    uint8  `json:"id"`
	Label string `json:"label"`
}

// GetStateResponse is the response of lifecycle_msgs/srv/GetState. Its request is empty.
type GetStateResponse struct {
	CurrentState LifecycleState `json:"current_state"`
}

// Commands accepted by nav2_msgs/srv/ManageLifecycleNodes.
const (
	ManageStartup   uint8 = 0
	ManagePause     uint8 = 1
	ManageResume    uint8 = 2
	ManageReset     uint8 = 3
	ManageShutdown  uint8 = 4
	ManageConfigure uint8 = 5
	ManageCleanup   uint8 = 6
)

// ManageLifecycleNodesRequest is the request of nav2_msgs/srv/ManageLifecycleNodes.
type ManageLifecycleNodesRequest struct {
	Command uint8 `json:"command"`
}

// ManageLifecycleNodesResponse is the response of nav2_msgs/srv/ManageLifecycleNodes.
type ManageLifecycleNodesResponse struct {
	Success bool `json:"success"`
}

// Goal status codes from action_msgs/GoalStatus.
const (
	GoalStatusUnknown   int8 = 0
	GoalStatusAccepted  int8 = 1
	GoalStatusExecuting int8 = 2
	GoalStatusCanceling int8 = 3
	GoalStatusSucceeded int8 = 4
	GoalStatusCanceled  int8 = 5
	GoalStatusAborted   int8 = 6
)
