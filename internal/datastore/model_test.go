package datastore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeValueScan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  any
		want TimeValue
	}{
		{"nil", nil, TimeValue{}},
		{"float64", 626.0, NumericTime(626)},
		{"int64", int64(42), NumericTime(42)},
		{"string", "10m26s", TextTime("10m26s")},
		{"bytes", []byte("10:26"), TextTime("10:26")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got TimeValue
			require.NoError(t, got.Scan(tt.src))
			assert.Equal(t, tt.want, got)
		})
	}

	var tv TimeValue
	assert.Error(t, tv.Scan(struct{}{}))
}

func TestTimeValueValue(t *testing.T) {
	t.Parallel()

	v, err := NumericTime(1.5).Value()
	require.NoError(t, err)
	assert.InDelta(t, 1.5, v, 1e-9)

	v, err = TextTime("1:30").Value()
	require.NoError(t, err)
	assert.Equal(t, "1:30", v)

	v, err = TimeValue{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestTimeValueStringAndJSON(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "626", NumericTime(626).String())
	assert.Equal(t, "10m26s", TextTime("10m26s").String())
	assert.Equal(t, "<null>", TimeValue{}.String())
	assert.True(t, TimeValue{}.IsNull())

	out, err := json.Marshal(struct {
		A TimeValue `json:"a"`
		B TimeValue `json:"b"`
		C TimeValue `json:"c"`
	}{NumericTime(2.5), TextTime("0:02"), TimeValue{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2.5,"b":"0:02","c":null}`, string(out))
}

func TestFlexTimeScan(t *testing.T) {
	t.Parallel()

	var ft flexTime
	require.NoError(t, ft.Scan("2024-05-01 06:00:00+00:00"))
	assert.Equal(t, 2024, ft.Year())

	require.NoError(t, ft.Scan([]byte("2024-05-01 06:00:00")))
	assert.Equal(t, 6, ft.Hour())

	require.NoError(t, ft.Scan(nil))
	assert.True(t, ft.IsZero())

	assert.Error(t, ft.Scan("yesterday"))
}
