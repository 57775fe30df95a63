// Package lifecycle queries and commands the navigation stack's managed lifecycle nodes.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/navtester/gateway"
	"go.viam.com/navtester/logging"
	"go.viam.com/navtester/ros"
)

// StateActive is the label of a node that finished activating.
const StateActive = "active"

// Well known nodes of the navigation stack.
const (
	LocalizerNode       = "amcl"
	NavigatorNode       = "bt_navigator"
	NavigationManager   = "lifecycle_manager_navigation"
	LocalizationManager = "lifecycle_manager_localization"
)

// Command is a lifecycle manager command.
type Command uint8

// The set of manager commands.
const (
	CommandStartup   = Command(ros.ManageStartup)
	CommandPause     = Command(ros.ManagePause)
	CommandResume    = Command(ros.ManageResume)
	CommandReset     = Command(ros.ManageReset)
	CommandShutdown  = Command(ros.ManageShutdown)
	CommandConfigure = Command(ros.ManageConfigure)
	CommandCleanup   = Command(ros.ManageCleanup)
)

func (c Command) String() string {
	switch c {
	case CommandStartup:
		return "STARTUP"
	case CommandPause:
		return "PAUSE"
	case CommandResume:
		return "RESUME"
	case CommandReset:
		return "RESET"
	case CommandShutdown:
		return "SHUTDOWN"
	case CommandConfigure:
		return "CONFIGURE"
	case CommandCleanup:
		return "CLEANUP"
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// A Service reaches lifecycle nodes and their managers.
type Service interface {
	// Available reports whether the named service (e.g. "amcl/get_state") is up.
	Available(ctx context.Context, service string) (bool, error)
	// GetState returns the label of the node's current state.
	GetState(ctx context.Context, node string) (string, error)
	// Manage sends a command to a lifecycle manager and returns whether it succeeded.
	Manage(ctx context.Context, manager string, command Command) (bool, error)
}

// GetStateService returns the state query service of a node.
func GetStateService(node string) string {
	return node + "/get_state"
}

// ManageNodesService returns the command service of a lifecycle manager.
func ManageNodesService(manager string) string {
	return manager + "/manage_nodes"
}

// ErrCommandFailed is returned when a manager acknowledges a command without success.
var ErrCommandFailed = errors.New("lifecycle command failed")

func prober(svc Service) gateway.Prober {
	return gateway.ProberFunc(svc.Available)
}

// WaitForNodeActive waits for the node's state service to appear, then polls its state until
// it reports active. Failed state queries are logged and retried.
func WaitForNodeActive(
	ctx context.Context,
	svc Service,
	node string,
	availability, statePoll gateway.RetryPolicy,
	logger logging.Logger,
) error {
	logger.Infof("Waiting for %s to become active", node)
	stateService := GetStateService(node)
	if err := gateway.WaitUntilAvailable(ctx, prober(svc), stateService, availability, logger); err != nil {
		return err
	}
	err := gateway.Poll(ctx, statePoll, func(ctx context.Context, attempt int) (bool, error) {
		logger.Infof("Getting %s state...", node)
		state, err := gateway.Call(ctx, stateService, func(ctx context.Context) (string, error) {
			return svc.GetState(ctx, node)
		})
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			logger.Errorw("Exception while calling service", "service", stateService, "error", err)
			return false, nil
		}
		logger.Infof("Result of get_state: %s", state)
		return state == StateActive, nil
	})
	return errors.Wrapf(err, "waiting for %s to become active", node)
}

// Shutdown sends SHUTDOWN to each manager in order. A failing manager is logged and does not
// stop the others; the combined error is returned.
func Shutdown(
	ctx context.Context,
	svc Service,
	managers []string,
	availability gateway.RetryPolicy,
	logger logging.Logger,
) error {
	logger.Info("Shutting down")
	var errs error
	for _, manager := range managers {
		service := ManageNodesService(manager)
		if err := gateway.WaitUntilAvailable(ctx, prober(svc), service, availability, logger); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		logger.Infof("Shutting down %s...", manager)
		ok, err := gateway.Call(ctx, service, func(ctx context.Context) (bool, error) {
			return svc.Manage(ctx, manager, CommandShutdown)
		})
		if err == nil && !ok {
			err = errors.Wrapf(ErrCommandFailed, "%s %s", manager, CommandShutdown)
		}
		if err != nil {
			logger.Errorw("Service call failed", "service", service, "error", err)
			errs = multierr.Append(errs, err)
			continue
		}
		logger.Infof("Shutting down %s complete.", manager)
	}
	return errs
}
