package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/navtester/action"
	"go.viam.com/navtester/logging"
)

// runWithMock drives the mock clock forward until fn returns.
func runWithMock(mock *clock.Mock, step time.Duration, fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	for {
		select {
		case err := <-errCh:
			return err
		default:
			mock.Add(step)
		}
	}
}

func TestWaitUntilAvailable(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	mock := clock.NewMock()

	var probes atomic.Int32
	prober := ProberFunc(func(ctx context.Context, name string) (bool, error) {
		test.That(t, name, test.ShouldEqual, "compute_route")
		n := probes.Add(1)
		if n == 1 {
			return false, errors.New("rosapi not up yet")
		}
		return n >= 3, nil
	})

	policy := RetryPolicy{Interval: time.Second, Clock: mock}
	err := runWithMock(mock, time.Second, func() error {
		return WaitUntilAvailable(context.Background(), prober, "compute_route", policy, logger)
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, probes.Load(), test.ShouldEqual, 3)
	test.That(t, logs.FilterMessage("'compute_route' not available, waiting...").Len(), test.ShouldEqual, 2)
}

func TestWaitUntilAvailableBounded(t *testing.T) {
	logger := logging.NewTestLogger(t)
	mock := clock.NewMock()
	never := ProberFunc(func(context.Context, string) (bool, error) { return false, nil })

	policy := RetryPolicy{Interval: time.Second, MaxAttempts: 4, Clock: mock}
	err := runWithMock(mock, time.Second, func() error {
		return WaitUntilAvailable(context.Background(), never, "compute_and_track_route", policy, logger)
	})
	test.That(t, errors.Is(err, ErrAttemptsExhausted), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "compute_and_track_route")
}

func TestWaitUntilAvailableCanceled(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	never := ProberFunc(func(context.Context, string) (bool, error) { return false, nil })

	err := WaitUntilAvailable(ctx, never, "x", RetryPolicy{Interval: time.Hour}, logger)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestPollStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var attempts int
	err := Poll(context.Background(), DefaultAvailabilityPolicy(), func(ctx context.Context, attempt int) (bool, error) {
		attempts = attempt
		return false, boom
	})
	test.That(t, err, test.ShouldEqual, boom)
	test.That(t, attempts, test.ShouldEqual, 1)
}

func TestCall(t *testing.T) {
	ctx := context.Background()

	res, err := Call(ctx, "svc", func(context.Context) (int, error) { return 5, nil })
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldEqual, 5)

	t.Run("transport error", func(t *testing.T) {
		cause := errors.New("socket closed")
		_, err := Call(ctx, "svc", func(context.Context) (int, error) { return 0, cause })
		test.That(t, IsCallFailure(err), test.ShouldBeTrue)
		test.That(t, errors.Is(err, cause), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldEqual, "call to svc failed: socket closed")
	})

	t.Run("rejection passes through", func(t *testing.T) {
		_, err := Call(ctx, "svc", func(context.Context) (int, error) { return 0, action.ErrGoalRejected })
		test.That(t, err, test.ShouldEqual, action.ErrGoalRejected)
		test.That(t, IsCallFailure(err), test.ShouldBeFalse)
	})

	t.Run("canceled context passes through", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Call(cctx, "svc", func(ctx context.Context) (int, error) { return 0, ctx.Err() })
		test.That(t, err, test.ShouldEqual, context.Canceled)
	})
}
