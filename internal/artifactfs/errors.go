// Package artifactfs provides sandboxed access to the artifact tree
// (audio_segments/ and spectrograms/) plus housekeeping over it.
package artifactfs

import (
	"github.com/tphakala/birdnet-artifacts/internal/errors"
)

// Sentinel errors for the artifactfs package.
var (
	// ErrPathTraversal indicates a relative path that climbs above the artifact root.
	ErrPathTraversal = errors.NewStd("security error: path attempts to traverse outside base directory")

	// ErrInvalidPath indicates an absolute or otherwise unusable path specification.
	ErrInvalidPath = errors.NewStd("security error: invalid path specification")

	// ErrNotRegularFile indicates an attempt to serve something that is not a regular file.
	ErrNotRegularFile = errors.NewStd("security error: not a regular file")
)
