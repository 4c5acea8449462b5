package spectrogram

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlaneyMelScale(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, hzToMel(0), 1e-12)
	assert.InDelta(t, 7.5, hzToMel(500), 1e-12)
	assert.InDelta(t, 15.0, hzToMel(1000), 1e-12)
	assert.InDelta(t, 45.2456, hzToMel(8000), 1e-3)

	for _, hz := range []float64{0, 60, 999, 1000, 1001, 4000, 11025} {
		assert.InDelta(t, hz, melToHz(hzToMel(hz)), 1e-9*math.Max(1, hz))
	}
}

func TestPeriodicHann(t *testing.T) {
	t.Parallel()

	w := periodicHann(4)
	want := []float64{0, 0.5, 1, 0.5}
	for i := range want {
		assert.InDelta(t, want[i], w[i], 1e-12)
	}
}

func TestSampleAt(t *testing.T) {
	t.Parallel()

	y := []float64{1, 2, 3}
	assert.InDelta(t, 1.0, sampleAt(y, 0), 0)
	assert.InDelta(t, 3.0, sampleAt(y, 2), 0)
	assert.Zero(t, sampleAt(y, -1))
	assert.Zero(t, sampleAt(y, 3))
	assert.Zero(t, sampleAt(nil, 0))
}

// Edge frames see zeros beyond the signal, so a constant signal loses DC
// power in the first frame.
func TestEdgeFramesZeroPadded(t *testing.T) {
	t.Parallel()

	const (
		nfft = 256
		hop  = 64
	)
	y := make([]float64, 4096)
	for i := range y {
		y[i] = 1
	}
	dc := []melFilter{{start: 0, weights: []float64{1}}}

	spec, err := melSpectrogram(context.Background(), y, melParams{
		nfft: nfft, hop: hop, numMels: 1, fmax: 4000, sampleRate: 8000,
	}, dc)
	require.NoError(t, err)
	require.Len(t, spec, 1+len(y)/hop)

	window := periodicHann(nfft)
	var full, tail float64
	for i, w := range window {
		full += w
		if i >= nfft/2 {
			tail += w
		}
	}
	assert.InDelta(t, full*full, spec[32][0], 1e-6)
	assert.InDelta(t, tail*tail, spec[0][0], 1e-6)
}

func TestMelFilterBankShape(t *testing.T) {
	t.Parallel()

	const (
		sr   = 22050
		nfft = 2048
	)
	bank := melFilterBank(DefaultNMels, nfft, sr, DefaultFMax)
	require.Len(t, bank, DefaultNMels)

	binHz := float64(sr) / nfft
	for m, f := range bank {
		require.NotEmpty(t, f.weights, "band %d", m)
		assert.LessOrEqual(t, f.start+len(f.weights), nfft/2+1)
		for _, w := range f.weights {
			assert.Greater(t, w, 0.0)
		}
		if m > 0 {
			assert.GreaterOrEqual(t, f.start, bank[m-1].start, "bands ascend")
		}
	}

	// Slaney normalisation gives wide bands unit area in Hz.
	top := bank[len(bank)-1]
	var area float64
	for _, w := range top.weights {
		area += w * binHz
	}
	assert.InDelta(t, 1.0, area, 0.1)

	// Nothing above fmax.
	last := top.start + len(top.weights) - 1
	assert.LessOrEqual(t, float64(last)*binHz, DefaultFMax+binHz)
}

func TestMelSpectrogramLocatesTone(t *testing.T) {
	t.Parallel()

	const sr = 22050
	y := make([]float64, sr) // one second
	for i := range y {
		y[i] = 0.5 * math.Sin(2*math.Pi*1000*float64(i)/sr)
	}

	p := melParams{nfft: 2048, hop: 512, numMels: DefaultNMels, fmax: DefaultFMax, sampleRate: sr}
	spec, err := melSpectrogram(context.Background(), y, p, melFilterBank(p.numMels, p.nfft, sr, p.fmax))
	require.NoError(t, err)
	require.Len(t, spec, 1+sr/512)

	mid := spec[len(spec)/2]
	peak := 0
	for m := range mid {
		if mid[m] > mid[peak] {
			peak = m
		}
	}

	// Centre of band m lies at mel point m+1.
	maxMel := hzToMel(DefaultFMax)
	centre := melToHz(maxMel * float64(peak+1) / float64(DefaultNMels+1))
	assert.InDelta(t, 1000, centre, 40)
}

func TestMelSpectrogramShortInput(t *testing.T) {
	t.Parallel()

	p := melParams{nfft: 2048, hop: 512, numMels: 16, fmax: 4000, sampleRate: 8000}
	spec, err := melSpectrogram(context.Background(), []float64{0.1, -0.1, 0.2}, p, melFilterBank(16, 2048, 8000, 4000))
	require.NoError(t, err)
	assert.Len(t, spec, 1)
}

func TestMelSpectrogramCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := melParams{nfft: 256, hop: 64, numMels: 8, fmax: 4000, sampleRate: 8000}
	_, err := melSpectrogram(ctx, make([]float64, 8000), p, melFilterBank(8, 256, 8000, 4000))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPowerToDB(t *testing.T) {
	t.Parallel()

	s := [][]float64{{1, 0.1}, {1e-12, 0.01}}
	lo, hi := powerToDB(s, 80)

	assert.InDelta(t, 0.0, hi, 1e-9)
	assert.InDelta(t, -80.0, lo, 1e-9)
	assert.InDelta(t, 0.0, s[0][0], 1e-9)
	assert.InDelta(t, -10.0, s[0][1], 1e-9)
	assert.InDelta(t, -80.0, s[1][0], 1e-9)
	assert.InDelta(t, -20.0, s[1][1], 1e-9)
}

func TestPowerToDBSilence(t *testing.T) {
	t.Parallel()

	s := [][]float64{{0, 0}, {0, 0}}
	lo, hi := powerToDB(s, 80)
	assert.InDelta(t, 0.0, lo, 1e-9)
	assert.InDelta(t, 0.0, hi, 1e-9)
}

func TestColorMapEnds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, viridisStops[0], colorAt(0))
	assert.Equal(t, viridisStops[0], colorAt(-3))
	assert.Equal(t, viridisStops[len(viridisStops)-1], colorAt(1))
	assert.Equal(t, viridisStops[0], colorAt(math.NaN()))
}
