package resolver

import (
	"fmt"
	"strings"

	"github.com/tphakala/birdnet-artifacts/internal/datastore"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
)

// ValidationResult lists every rule a detection violates, along with the
// values resolved while checking them.
type ValidationResult struct {
	Problems   []string
	SourcePath string // empty when the recording could not be located
	Start      float64
	End        float64
}

// Valid reports whether no rule was violated.
func (r *ValidationResult) Valid() bool {
	return len(r.Problems) == 0
}

// SourceMissing reports whether locating the recording was one of the failures.
func (r *ValidationResult) SourceMissing() bool {
	return r.SourcePath == "" && r.hasProblemPrefix(problemSourceMissing)
}

func (r *ValidationResult) hasProblemPrefix(prefix string) bool {
	for _, p := range r.Problems {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Err returns the problems as a validation error, or nil when valid.
func (r *ValidationResult) Err(id uint) error {
	if r.Valid() {
		return nil
	}
	return errors.Newf("%s", strings.Join(r.Problems, "; ")).
		Component("resolver").
		Category(errors.CategoryValidation).
		Context("detection_id", id).
		Context("problem_count", len(r.Problems)).
		Build()
}

const problemSourceMissing = "source audio not found"

// ValidateDetection checks a work item before processing: required fields,
// a locatable recording, parseable times with 0 <= start < end and a
// non-blank session. All violations are collected.
func ValidateDetection(item *datastore.WorkItem, locator SourceLocator) ValidationResult {
	var res ValidationResult

	if item.Filename == "" {
		res.Problems = append(res.Problems, "missing required field: filename")
	}
	if item.StartTimeSeconds.IsNull() {
		res.Problems = append(res.Problems, "missing required field: start_time_seconds")
	}
	if item.EndTimeSeconds.IsNull() {
		res.Problems = append(res.Problems, "missing required field: end_time_seconds")
	}
	if item.Confidence == nil {
		res.Problems = append(res.Problems, "missing required field: confidence")
	}

	if item.Filename != "" {
		if path, ok := locator.FindSourceAudio(item.Filename); ok {
			res.SourcePath = path
		} else {
			res.Problems = append(res.Problems, fmt.Sprintf("%s: %s", problemSourceMissing, item.Filename))
		}
	}

	if !item.StartTimeSeconds.IsNull() && !item.EndTimeSeconds.IsNull() {
		start, startErr := ParseTimeValue(item.StartTimeSeconds)
		end, endErr := ParseTimeValue(item.EndTimeSeconds)
		if startErr != nil {
			res.Problems = append(res.Problems, "time parse error: "+startErr.Error())
		}
		if endErr != nil {
			res.Problems = append(res.Problems, "time parse error: "+endErr.Error())
		}
		if startErr == nil && endErr == nil {
			res.Start, res.End = start, end
			if start < 0 {
				res.Problems = append(res.Problems, "start time is negative")
			}
			if end <= start {
				res.Problems = append(res.Problems, "end time is not after start time")
			}
		}
	}

	if strings.TrimSpace(item.SessionName) == "" {
		res.Problems = append(res.Problems, "session name is blank")
	}

	return res
}
