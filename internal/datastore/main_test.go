//go:build !integration

package datastore

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks that neither the stores nor the viewer cache leave
// goroutines behind once every database has been closed.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
