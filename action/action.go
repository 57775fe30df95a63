// Package action tracks the lifecycle of a single goal sent to a long-running remote action.
package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/navtester/ros"
)

// ErrGoalRejected is returned when the action server declines a goal outright.
var ErrGoalRejected = errors.New("goal rejected")

// Status is the status of a goal, mirroring action_msgs/GoalStatus.
type Status int8

// The set of known goal statuses.
const (
	StatusUnknown   = Status(ros.GoalStatusUnknown)
	StatusAccepted  = Status(ros.GoalStatusAccepted)
	StatusExecuting = Status(ros.GoalStatusExecuting)
	StatusCanceling = Status(ros.GoalStatusCanceling)
	StatusSucceeded = Status(ros.GoalStatusSucceeded)
	StatusCanceled  = Status(ros.GoalStatusCanceled)
	StatusAborted   = Status(ros.GoalStatusAborted)
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusAccepted:
		return "accepted"
	case StatusExecuting:
		return "executing"
	case StatusCanceling:
		return "canceling"
	case StatusSucceeded:
		return "succeeded"
	case StatusCanceled:
		return "canceled"
	case StatusAborted:
		return "aborted"
	}
	return fmt.Sprintf("status(%d)", int8(s))
}

// Terminal returns whether the status ends a goal's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusCanceled || s == StatusAborted
}

// Handle is the client side of one goal. It is accepted or rejected at most once and resolved
// at most once; the transport resolving it and the caller waiting on it may run on different
// goroutines.
type Handle[R any] struct {
	id string

	acceptOnce sync.Once
	accepted   chan struct{}
	doneOnce   sync.Once
	done       chan struct{}

	mu     sync.Mutex
	status Status
	result R
	err    error
}

// NewHandle returns a pending handle for the goal with the given id.
func NewHandle[R any](id string) *Handle[R] {
	return &Handle[R]{
		id:       id,
		accepted: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the goal id.
func (h *Handle[R]) ID() string {
	return h.id
}

// Accept marks the goal accepted by the server.
func (h *Handle[R]) Accept() {
	h.acceptOnce.Do(func() {
		h.mu.Lock()
		if h.status == StatusUnknown {
			h.status = StatusAccepted
		}
		h.mu.Unlock()
		close(h.accepted)
	})
}

// SetStatus records a non-terminal status update. Terminal statuses must go through Resolve.
func (h *Handle[R]) SetStatus(status Status) {
	if status.Terminal() {
		return
	}
	h.Accept()
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.status.Terminal() {
		h.status = status
	}
}

// Reject marks the goal as declined by the server. A rejected goal is never accepted.
func (h *Handle[R]) Reject() {
	h.finish(StatusUnknown, *new(R), ErrGoalRejected)
}

// Fail resolves the goal with a transport failure.
func (h *Handle[R]) Fail(err error) {
	h.finish(StatusUnknown, *new(R), err)
}

// Resolve resolves the goal with a terminal status and its result.
func (h *Handle[R]) Resolve(status Status, result R) {
	h.Accept()
	h.finish(status, result, nil)
}

func (h *Handle[R]) finish(status Status, result R, err error) {
	h.doneOnce.Do(func() {
		h.mu.Lock()
		h.status = status
		h.result = result
		h.err = err
		h.mu.Unlock()
		// unblock acceptance waiters too; they check err to tell rejection apart
		h.acceptOnce.Do(func() { close(h.accepted) })
		close(h.done)
	})
}

// Status returns the latest known status.
func (h *Handle[R]) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Done is closed once the goal is resolved, rejected or failed.
func (h *Handle[R]) Done() <-chan struct{} {
	return h.done
}

// WaitAccepted blocks until the server accepts the goal. It returns ErrGoalRejected on
// rejection and the transport error if the goal failed before being accepted.
func (h *Handle[R]) WaitAccepted(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.accepted:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait waits up to timeout for the goal to resolve and returns the latest status either way.
// The error is non-nil only when the goal failed or the context ended.
func (h *Handle[R]) Wait(ctx context.Context, clk clock.Clock, timeout time.Duration) (Status, error) {
	timer := clk.Timer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return h.Status(), ctx.Err()
	case <-h.done:
	case <-timer.C:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.err
}

// Await blocks until the goal resolves and returns its result.
func (h *Handle[R]) Await(ctx context.Context) (R, Status, error) {
	select {
	case <-ctx.Done():
		var zero R
		return zero, h.Status(), ctx.Err()
	case <-h.done:
	}
	return h.Result()
}

// Result returns the result recorded so far. Before resolution it is the zero value.
func (h *Handle[R]) Result() (R, Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.status, h.err
}
