package tester

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/navtester/services/lifecycle"
)

// waitForInitialPose publishes the initial pose until the localizer answers with an estimate.
func (t *Tester) waitForInitialPose(ctx context.Context) error {
	t.session.ResetInitialPose()
	for !t.session.InitialPoseReceived() {
		t.logger.Info("Setting initial pose")
		t.logger.Info("Publishing Initial Pose")
		if err := t.localization.SetInitialPose(ctx, t.session.InitialPose()); err != nil {
			t.logger.Errorw("publishing initial pose failed", "error", err)
		}
		t.logger.Info("Waiting for amcl_pose to be received")
		if t.session.WaitForPose(ctx, t.clk, t.opts.InitialPoseWait) {
			break
		}
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "waiting for initial pose")
		}
	}
	return nil
}

// RunAllTests waits for the stack to be ready and runs the compute_route test, then the
// compute_and_track_route test if the first passed.
func (t *Tester) RunAllTests(ctx context.Context) (bool, []Report) {
	var reports []Report
	ready := func() error {
		if err := lifecycle.WaitForNodeActive(
			ctx, t.lifecycle, t.opts.Localizer, t.opts.Availability, t.opts.StatePoll, t.logger,
		); err != nil {
			return err
		}
		if err := t.waitForInitialPose(ctx); err != nil {
			return err
		}
		return lifecycle.WaitForNodeActive(ctx, t.lifecycle, t.opts.Navigator, t.opts.Availability, t.opts.StatePoll, t.logger)
	}
	if err := ready(); err != nil {
		t.logger.Errorw("navigation stack never became ready", "error", err)
		t.logger.Error("Test FAILED")
		return false, nil
	}

	reports = append(reports, t.RunComputeRouteTest(ctx))
	if reports[0].Passed() {
		reports = append(reports, t.RunTrackRouteTest(ctx))
	}

	passed := lo.EveryBy(reports, Report.Passed)
	if passed {
		t.logger.Info("Test PASSED")
	} else {
		t.logger.Error("Test FAILED")
	}
	return passed, reports
}

// Shutdown shuts down the lifecycle managers. Failures are logged and returned but do not stop
// the remaining managers from being shut down.
func (t *Tester) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.opts.ShutdownTimeout)
	defer cancel()
	return lifecycle.Shutdown(ctx, t.lifecycle, t.opts.Managers, t.opts.Availability, t.logger)
}

// ExitCode is 0 when the tests passed and were expected to, or failed and were expected to.
func ExitCode(passed, expectFailure bool) int {
	if passed == !expectFailure {
		return 0
	}
	return 1
}

// Run is a full tester run: startup delay, pose subscription, tests, shutdown. It returns the
// process exit code along with the reports.
func (t *Tester) Run(ctx context.Context, expectFailure bool) (int, []Report) {
	if t.opts.StartupDelay > 0 {
		t.logger.Infof("Waiting %v for the navigation stack to come up", t.opts.StartupDelay)
		timer := t.clk.Timer(t.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	passed := false
	var reports []Report
	unsubscribe, err := t.localization.SubscribePose(ctx, t.session.OnPose)
	if err != nil {
		t.logger.Errorw("subscribing to pose estimates failed", "error", err)
		t.logger.Error("Test FAILED")
	} else {
		passed, reports = t.RunAllTests(ctx)
		unsubscribe()
	}

	if err := t.Shutdown(ctx); err != nil {
		t.logger.Warnw("shutdown finished with errors", "error", err)
	}
	t.logger.Info("Done Shutting Down.")

	code := ExitCode(passed, expectFailure)
	if code == 0 {
		t.logger.Info("Exiting passed")
	} else {
		t.logger.Info("Exiting failed")
	}
	return code, reports
}
