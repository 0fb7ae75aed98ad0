// Package testutil carries shared test plumbing: engine fixtures and the
// -long flag gating the concurrency and stress suites.
package testutil

import (
	"flag"
	"testing"
)

// RunLong enables the heavy suites, like the concurrent-editor tests.
var RunLong = flag.Bool("long", false, "run long/heavy tests")

// RequireLong skips the test unless -long was given.
func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

func IsLongEnabled() bool {
	return *RunLong
}
