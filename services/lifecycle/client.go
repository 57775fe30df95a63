package lifecycle

import (
	"context"

	"go.viam.com/navtester/ros"
	"go.viam.com/navtester/ros/rosbridge"
)

// Client reaches lifecycle services through rosbridge.
type Client struct {
	bridge    *rosbridge.Client
	namespace string
}

var _ Service = (*Client)(nil)

// NewClient returns a lifecycle client resolving names under namespace.
func NewClient(bridge *rosbridge.Client, namespace string) *Client {
	return &Client{bridge: bridge, namespace: namespace}
}

// Available reports whether rosapi lists the service.
func (c *Client) Available(ctx context.Context, service string) (bool, error) {
	return c.bridge.ServiceAvailable(ctx, rosbridge.ResolveName(c.namespace, service))
}

// GetState calls lifecycle_msgs/srv/GetState on the node.
func (c *Client) GetState(ctx context.Context, node string) (string, error) {
	var resp ros.GetStateResponse
	name := rosbridge.ResolveName(c.namespace, GetStateService(node))
	if err := c.bridge.CallService(ctx, name, ros.TypeGetState, struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.CurrentState.Label, nil
}

// Manage calls nav2_msgs/srv/ManageLifecycleNodes on the manager.
func (c *Client) Manage(ctx context.Context, manager string, command Command) (bool, error) {
	var resp ros.ManageLifecycleNodesResponse
	name := rosbridge.ResolveName(c.namespace, ManageNodesService(manager))
	req := ros.ManageLifecycleNodesRequest{Command: uint8(command)}
	if err := c.bridge.CallService(ctx, name, ros.TypeManageLifecycleNodes, req, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}
