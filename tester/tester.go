// Package tester runs end-to-end tests against a route server: a single compute_route request
// and a compute_and_track_route request whose feedback stream is checked as it arrives.
package tester

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"go.viam.com/navtester/gateway"
	"go.viam.com/navtester/logging"
	"go.viam.com/navtester/services/lifecycle"
	"go.viam.com/navtester/services/localization"
	"go.viam.com/navtester/services/route"
	"go.viam.com/navtester/session"
)

// Outcome is how a test ended.
type Outcome int

// The set of outcomes.
const (
	OutcomeSucceeded Outcome = iota
	OutcomeRejected
	OutcomeCanceled
	OutcomeAborted
	OutcomeInvariantViolation
	OutcomeCallFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRejected:
		return "rejected"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeAborted:
		return "aborted"
	case OutcomeInvariantViolation:
		return "invariant violation"
	case OutcomeCallFailed:
		return "call failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Report is the result of one test.
type Report struct {
	Test    string
	Outcome Outcome
	Message string
}

// Passed reports whether the test succeeded.
func (r Report) Passed() bool {
	return r.Outcome == OutcomeSucceeded
}

func (r Report) String() string {
	if r.Message == "" {
		return fmt.Sprintf("%s: %s", r.Test, r.Outcome)
	}
	return fmt.Sprintf("%s: %s (%s)", r.Test, r.Outcome, r.Message)
}

// Test names used in reports.
const (
	ComputeRouteTest = "compute_route"
	TrackRouteTest   = "compute_and_track_route"
)

// Options tune the tester's waits and checks.
type Options struct {
	// Availability governs waits for action servers and services to come up.
	Availability gateway.RetryPolicy
	// StatePoll governs polling a lifecycle node until it is active.
	StatePoll gateway.RetryPolicy
	// StatusPollTimeout bounds each wait for a tracking goal's status so feedback can be
	// drained in between.
	StatusPollTimeout time.Duration
	// InitialPoseWait is how long to wait for the localizer after publishing an initial pose.
	InitialPoseWait time.Duration
	// StartupDelay is waited before anything else to let the stack come up.
	StartupDelay time.Duration
	// ShutdownTimeout bounds the shutdown of the lifecycle managers.
	ShutdownTimeout time.Duration
	// GoalTolerance is how close to the goal the robot must end up.
	GoalTolerance float64
	// ReroutingService is the operation every feedback event must report.
	ReroutingService string
	Localizer        string
	Navigator        string
	Managers         []string
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// DefaultOptions returns the options used against a real navigation stack.
func DefaultOptions() Options {
	return Options{
		Availability:      gateway.DefaultAvailabilityPolicy(),
		StatePoll:         gateway.RetryPolicy{Interval: 5 * time.Second},
		StatusPollTimeout: 100 * time.Millisecond,
		InitialPoseWait:   time.Second,
		StartupDelay:      10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		GoalTolerance:     0.5,
		ReroutingService:  route.ReroutingService,
		Localizer:         lifecycle.LocalizerNode,
		Navigator:         lifecycle.NavigatorNode,
		Managers:          []string{lifecycle.NavigationManager, lifecycle.LocalizationManager},
	}
}

// Tester runs the tests of one session against a navigation stack.
type Tester struct {
	opts         Options
	clk          clock.Clock
	session      *session.Session
	routes       route.Service
	lifecycle    lifecycle.Service
	localization localization.Service
	logger       logging.Logger
}

// New returns a tester. The policies' clocks default to opts.Clock. Every entry it logs carries
// the session id.
func New(
	sess *session.Session,
	routes route.Service,
	lc lifecycle.Service,
	loc localization.Service,
	opts Options,
	logger logging.Logger,
) *Tester {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Availability.Clock == nil {
		opts.Availability.Clock = opts.Clock
	}
	if opts.StatePoll.Clock == nil {
		opts.StatePoll.Clock = opts.Clock
	}
	return &Tester{
		opts:         opts,
		clk:          opts.Clock,
		session:      sess,
		routes:       routes,
		lifecycle:    lc,
		localization: loc,
		logger:       logger.With("session", sess.ID().String()),
	}
}

// Session returns the tester's session.
func (t *Tester) Session() *session.Session {
	return t.session
}

func (t *Tester) fail(test string, outcome Outcome, msg string) Report {
	t.logger.Errorw(msg, "test", test, "outcome", outcome)
	return Report{Test: test, Outcome: outcome, Message: msg}
}

func (t *Tester) callFailed(test string, err error) Report {
	return t.fail(test, OutcomeCallFailed, err.Error())
}

// FormatReports renders the reports as a table for the end of a run.
func FormatReports(reports []Report) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Test", "Outcome", "Message"})
	for i, r := range reports {
		t.AppendRow(table.Row{i + 1, r.Test, r.Outcome.String(), r.Message})
	}
	passed := lo.CountBy(reports, Report.Passed)
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d/%d passed", passed, len(reports)), ""})
	return t.Render()
}
