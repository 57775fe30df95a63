package lifecycle_test

import (
	"testing"

	"go.viam.com/navtester/testutils"
)

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}
