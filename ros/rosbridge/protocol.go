package rosbridge

import (
	"encoding/json"
)

// Operations of the rosbridge v2 protocol used by the client.
const (
	opCallService      = "call_service"
	opServiceResponse  = "service_response"
	opSendActionGoal   = "send_action_goal"
	opCancelActionGoal = "cancel_action_goal"
	opActionFeedback   = "action_feedback"
	opActionResult     = "action_result"
	opAdvertise        = "advertise"
	opPublish          = "publish"
	opSubscribe        = "subscribe"
	opUnsubscribe      = "unsubscribe"
	opStatus           = "status"
)

// rosapi introspection services.
const (
	rosapiServices      = "/rosapi/services"
	rosapiServicesType  = "rosapi_msgs/srv/Services"
	rosapiActions       = "/rosapi/action_servers"
	rosapiActionsType   = "rosapi_msgs/srv/ActionServers"
	rejectedMarker      = "rejected"
	unknownFailureValue = "unknown failure"
)

type callServiceOp struct {
	Op      string      `json:"op"`
	ID      string      `json:"id"`
	Service string      `json:"service"`
	Type    string      `json:"type,omitempty"`
	Args    interface{} `json:"args,omitempty"`
}

type sendActionGoalOp struct {
	Op         string      `json:"op"`
	ID         string      `json:"id"`
	Action     string      `json:"action"`
	ActionType string      `json:"action_type"`
	Args       interface{} `json:"args"`
	Feedback   bool        `json:"feedback"`
}

type cancelActionGoalOp struct {
	Op     string `json:"op"`
	ID     string `json:"id"`
	Action string `json:"action"`
}

type advertiseOp struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

type publishOp struct {
	Op    string      `json:"op"`
	Topic string      `json:"topic"`
	Msg   interface{} `json:"msg"`
}

type subscribeOp struct {
	Op    string `json:"op"`
	ID    string `json:"id"`
	Topic string `json:"topic"`
	Type  string `json:"type,omitempty"`
}

type unsubscribeOp struct {
	Op    string `json:"op"`
	ID    string `json:"id"`
	Topic string `json:"topic"`
}

// incoming is the union of every server-to-client message the client understands.
type incoming struct {
	Op      string          `json:"op"`
	ID      string          `json:"id"`
	Service string          `json:"service"`
	Action  string          `json:"action"`
	Topic   string          `json:"topic"`
	Values  json.RawMessage `json:"values"`
	Msg     json.RawMessage `json:"msg"`
	Result  *bool           `json:"result"`
	Status  *int8           `json:"status"`
	Level   string          `json:"level"`
}

func (in *incoming) succeeded() bool {
	return in.Result == nil || *in.Result
}

// failureMessage extracts the error text rosbridge puts in values when result is false.
func (in *incoming) failureMessage() string {
	var msg string
	if err := json.Unmarshal(in.Values, &msg); err == nil && msg != "" {
		return msg
	}
	if len(in.Values) > 0 && string(in.Values) != "null" {
		return string(in.Values)
	}
	return unknownFailureValue
}

type servicesResponse struct {
	Services []string `json:"services"`
}

type actionServersResponse struct {
	ActionServers []string `json:"action_servers"`
}
