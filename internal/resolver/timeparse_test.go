package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-artifacts/internal/datastore"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
)

func TestParseTimeValueEquivalentEncodings(t *testing.T) {
	t.Parallel()

	inputs := []datastore.TimeValue{
		datastore.NumericTime(626.0),
		datastore.TextTime("626.0"),
		datastore.TextTime("10m26s"),
		datastore.TextTime("10:26"),
		datastore.TextTime("  10m26s "),
		datastore.TextTime("626"),
	}

	for _, in := range inputs {
		t.Run(in.String(), func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimeValue(in)
			require.NoError(t, err)
			assert.InDelta(t, 626.0, got, 1e-9)
		})
	}
}

func TestParseTimeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1.5", 1.5, false},
		{"1e3", 1000, false},
		{"0m7s", 7, false},
		{"2:05", 125, false},
		{"10m", 0, true},
		{"10:26:00", 0, true},
		{"1.5m3s", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"inf", 0, true},
		{"NaN", 0, true},
		{"0x1p4", 0, true},
		{"-0X10", 0, true},
		{"0.5", 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimeString(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseTimeValueNull(t *testing.T) {
	t.Parallel()

	_, err := ParseTimeValue(datastore.TimeValue{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null")
}
