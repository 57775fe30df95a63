package action

import (
	"testing"

	"go.viam.com/navtester/testutils"
)

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}
