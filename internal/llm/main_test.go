package llm

import (
	"testing"

	"go.uber.org/goleak"
)

// Stream spawns a goroutine per request; verify none outlive their streams.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
