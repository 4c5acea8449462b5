package myaudio

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain catches ffmpeg pipe readers or decoders left running.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
