// Package testutils contains helpers shared by the tester's package tests.
package testutils

import (
	"go.uber.org/goleak"
)

// VerifyTestMain runs the package's tests and fails if any goroutine outlives them. Extra
// options are appended to the defaults.
func VerifyTestMain(m goleak.TestingM, opts ...goleak.Option) {
	goleak.VerifyTestMain(m, append([]goleak.Option{
		// httptest keeps idle connections' goroutines around briefly after Close
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	}, opts...)...)
}
