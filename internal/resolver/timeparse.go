package resolver

import (
	"math"
	"strconv"
	"strings"

	"github.com/tphakala/birdnet-artifacts/internal/datastore"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
)

// ParseTimeValue converts a stored time column to seconds. Numeric values
// pass through; text is tried as "<int>m<int>s", then as a float, then as
// "<int>:<int>". Anything else is a validation error.
func ParseTimeValue(v datastore.TimeValue) (float64, error) {
	switch v.Kind {
	case datastore.TimeNumeric:
		if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
			return 0, parseError(v.String(), "non-finite number")
		}
		return v.Number, nil
	case datastore.TimeText:
		return ParseTimeString(v.Text)
	default:
		return 0, parseError("", "value is null")
	}
}

// ParseTimeString parses a textual time encoding, see ParseTimeValue.
func ParseTimeString(raw string) (float64, error) {
	s := strings.TrimSpace(raw)

	if strings.Contains(s, "m") && strings.Contains(s, "s") {
		parts := strings.Split(strings.ReplaceAll(s, "s", ""), "m")
		if len(parts) == 2 {
			if secs, ok := minutesSeconds(parts[0], parts[1]); ok {
				return secs, nil
			}
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && !hexLiteral(s) {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, parseError(raw, "non-finite number")
		}
		return f, nil
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) == 2 {
			if secs, ok := minutesSeconds(parts[0], parts[1]); ok {
				return secs, nil
			}
		}
	}

	return 0, parseError(raw, "unrecognised time format")
}

// hexLiteral reports a 0x-prefixed number, which ParseFloat accepts but
// decimal time columns never hold.
func hexLiteral(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func minutesSeconds(minPart, secPart string) (float64, bool) {
	minutes, err := strconv.Atoi(strings.TrimSpace(minPart))
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(secPart))
	if err != nil {
		return 0, false
	}
	return float64(minutes*60 + seconds), true
}

func parseError(raw, reason string) error {
	return errors.Newf("cannot parse time value %q: %s", raw, reason).
		Component("resolver").
		Category(errors.CategoryValidation).
		Context("raw_value", raw).
		Build()
}
