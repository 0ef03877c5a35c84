// Package integration holds small helpers shared by the repository's
// dockertest-backed integration tests.
package integration

import (
	"os"
	"testing"
)

// CheckSkip skips the calling test unless integration tests have been
// explicitly opted into, so a plain `go test ./...` never requires Docker.
func CheckSkip(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("skipping integration test; set RUN_INTEGRATION_TESTS=1 to run")
	}
}
