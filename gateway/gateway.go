// Package gateway waits for remote capabilities to come online and wraps calls to them so
// transport failures are distinguishable from well-formed negative answers.
package gateway

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/navtester/action"
	"go.viam.com/navtester/logging"
)

// ErrCallFailed marks a failure of the call mechanism itself, as opposed to a rejection.
var ErrCallFailed = errors.New("call failed")

// A Prober reports whether a named capability (action server or service) is reachable.
type Prober interface {
	Available(ctx context.Context, name string) (bool, error)
}

// ProberFunc adapts a function to a Prober.
type ProberFunc func(ctx context.Context, name string) (bool, error)

// Available calls f.
func (f ProberFunc) Available(ctx context.Context, name string) (bool, error) {
	return f(ctx, name)
}

// RetryPolicy describes a polling loop. A zero MaxAttempts polls until the context ends.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// DefaultAvailabilityPolicy polls once a second without bound.
func DefaultAvailabilityPolicy() RetryPolicy {
	return RetryPolicy{Interval: time.Second}
}

func (p RetryPolicy) clock() clock.Clock {
	if p.Clock == nil {
		return clock.New()
	}
	return p.Clock
}

// ErrAttemptsExhausted is returned by Poll when MaxAttempts checks all came back false.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Poll runs check until it reports done, sleeping the policy interval between attempts.
// An error from check stops polling and is returned.
func Poll(ctx context.Context, policy RetryPolicy, check func(ctx context.Context, attempt int) (bool, error)) error {
	clk := policy.clock()
	for attempt := 1; ; attempt++ {
		done, err := check(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return errors.Wrapf(ErrAttemptsExhausted, "gave up after %d attempts", attempt)
		}
		timer := clk.Timer(policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// WaitUntilAvailable blocks until prober reports name as available. Probe errors count as
// "not yet available". It never gives up on its own unless the policy sets MaxAttempts.
func WaitUntilAvailable(
	ctx context.Context,
	prober Prober,
	name string,
	policy RetryPolicy,
	logger logging.Logger,
) error {
	err := Poll(ctx, policy, func(ctx context.Context, attempt int) (bool, error) {
		ok, err := prober.Available(ctx, name)
		if err != nil {
			logger.Debugw("availability probe failed", "name", name, "attempt", attempt, "error", err)
		}
		if ok {
			return true, nil
		}
		logger.Infof("'%s' not available, waiting...", name)
		return false, nil
	})
	return errors.Wrapf(err, "waiting for %q", name)
}

type callError struct {
	name string
	err  error
}

func (e *callError) Error() string {
	return "call to " + e.name + " failed: " + e.err.Error()
}

func (e *callError) Unwrap() error {
	return e.err
}

func (e *callError) Is(target error) bool {
	return target == ErrCallFailed
}

// Call invokes fn against the named capability. Rejections and context cancellation pass
// through unchanged; any other error is wrapped so errors.Is(err, ErrCallFailed) holds.
func Call[T any](ctx context.Context, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	res, err := fn(ctx)
	if err == nil || errors.Is(err, action.ErrGoalRejected) || errors.Is(err, ErrCallFailed) || ctx.Err() != nil {
		return res, err
	}
	return res, &callError{name: name, err: err}
}

// IsCallFailure reports whether err is a failure of the call mechanism.
func IsCallFailure(err error) bool {
	return errors.Is(err, ErrCallFailed)
}
