package quality

import (
	"testing"

	"go.uber.org/goleak"
)

// Phases run on goroutines; make sure none outlive an evaluation.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
