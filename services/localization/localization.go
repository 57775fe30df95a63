// Package localization publishes initial pose estimates to the localizer and follows the pose
// estimates it publishes.
package localization

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"go.viam.com/navtester/logging"
	"go.viam.com/navtester/referenceframe"
	"go.viam.com/navtester/ros"
	"go.viam.com/navtester/ros/rosbridge"
)

// Topics of the localizer.
const (
	InitialPoseTopic = "initialpose"
	PoseTopic        = "amcl_pose"
)

// A Service is the localizer's pose estimate channel.
type Service interface {
	// SetInitialPose publishes an initial estimate of the robot's pose.
	SetInitialPose(ctx context.Context, pose *referenceframe.PoseInFrame) error
	// SubscribePose calls onPose with every published estimate until the returned function is
	// called. onPose must not block.
	SubscribePose(ctx context.Context, onPose func(*referenceframe.PoseInFrame)) (func(), error)
}

// Client reaches the localizer through rosbridge.
type Client struct {
	bridge    *rosbridge.Client
	namespace string
	logger    logging.Logger
}

var _ Service = (*Client)(nil)

// NewClient returns a localization client resolving topics under namespace.
func NewClient(bridge *rosbridge.Client, namespace string, logger logging.Logger) *Client {
	return &Client{bridge: bridge, namespace: namespace, logger: logger}
}

// SetInitialPose advertises the initial pose topic if needed and publishes pose on it.
func (c *Client) SetInitialPose(ctx context.Context, pose *referenceframe.PoseInFrame) error {
	if pose == nil {
		return errors.New("initial pose is required")
	}
	topic := rosbridge.ResolveName(c.namespace, InitialPoseTopic)
	if err := c.bridge.Advertise(ctx, topic, ros.TypePoseWithCovarianceStamped); err != nil {
		return err
	}
	return c.bridge.Publish(ctx, topic, ros.NewInitialPose(pose))
}

// SubscribePose subscribes to the localizer's pose estimates.
func (c *Client) SubscribePose(ctx context.Context, onPose func(*referenceframe.PoseInFrame)) (func(), error) {
	topic := rosbridge.ResolveName(c.namespace, PoseTopic)
	sub, err := c.bridge.Subscribe(ctx, topic, ros.TypePoseWithCovarianceStamped, func(raw json.RawMessage) {
		var msg ros.PoseWithCovarianceStamped
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warnw("dropping undecodable pose", "topic", topic, "error", err)
			return
		}
		onPose(referenceframe.NewPoseInFrame(msg.Header.FrameID, msg.Pose.Pose.ToSpatial()))
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := sub.Unsubscribe(context.Background()); err != nil {
			c.logger.Debugw("unsubscribe failed", "topic", topic, "error", err)
		}
	}, nil
}
