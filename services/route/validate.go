package route

import (
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"go.viam.com/navtester/referenceframe"
)

// Validate checks the invariants of a successful result.
func (r Result) Validate() error {
	if len(r.Path) == 0 {
		return errors.New("result path is empty")
	}
	if err := r.Route.validate(); err != nil {
		return errors.Wrap(err, "result")
	}
	if r.ErrorCode != ErrorCodeNone {
		return errors.Errorf("result has error code %d (%s): %s", uint16(r.ErrorCode), r.ErrorCode, r.ErrorMsg)
	}
	return nil
}

func (g Graph) validate() error {
	switch {
	case g.Cost <= 0:
		return errors.Errorf("route cost %v is not positive", g.Cost)
	case len(g.Nodes) == 0:
		return errors.New("route has no nodes")
	case len(g.EdgeIDs) == 0:
		return errors.New("route has no edges")
	}
	return nil
}

// Validate checks the invariants of a single feedback event: a non-empty path and route with
// positive cost, and exactly one triggered operation equal to operation.
func (e FeedbackEvent) Validate(operation string) error {
	if len(e.Path) == 0 {
		return errors.New("feedback path is empty")
	}
	if err := e.Route.validate(); err != nil {
		return errors.Wrap(err, "feedback")
	}
	if len(e.OperationsTriggered) != 1 {
		return errors.Errorf("feedback triggered %d operations, expected exactly 1", len(e.OperationsTriggered))
	}
	if e.OperationsTriggered[0] != operation {
		return errors.Errorf("feedback triggered %q, expected %q", e.OperationsTriggered[0], operation)
	}
	return nil
}

var poseComparer = cmp.Comparer(func(a, b *referenceframe.PoseInFrame) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AlmostEqual(b)
})

// EventsEqual reports whether two feedback events carry the same content.
func EventsEqual(a, b FeedbackEvent) bool {
	return cmp.Equal(a, b, poseComparer)
}
