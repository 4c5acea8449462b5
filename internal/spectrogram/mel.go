package spectrogram

import (
	"context"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
	amin         = 1e-10
)

var melLogStep = math.Log(6.4) / 27.0

// hzToMel converts frequency in Hz to the Slaney mel scale.
func hzToMel(hz float64) float64 {
	if hz < melMinLogHz {
		return hz / melFSp
	}
	return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
}

// melToHz converts a Slaney mel value back to Hz.
func melToHz(mel float64) float64 {
	if mel < melMinLogMel {
		return mel * melFSp
	}
	return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
}

// periodicHann returns the DFT-even Hann window of length n.
func periodicHann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// melFilter is one triangular band, stored sparsely over FFT bins.
type melFilter struct {
	start   int       // first FFT bin with nonzero weight
	weights []float64 // weights for bins start..start+len-1
}

// melFilterBank builds numMels Slaney-normalized triangular filters
// spanning 0..fmax over the nfft/2+1 bins of a real FFT.
func melFilterBank(numMels, nfft, sampleRate int, fmax float64) []melFilter {
	bins := nfft/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}

	// numMels + 2 points equally spaced on the mel axis
	maxMel := hzToMel(fmax)
	melF := make([]float64, numMels+2)
	for i := range melF {
		melF[i] = melToHz(maxMel * float64(i) / float64(numMels+1))
	}

	bank := make([]melFilter, numMels)
	for m := range numMels {
		lower, center, upper := melF[m], melF[m+1], melF[m+2]
		enorm := 2.0 / (upper - lower)

		var f melFilter
		f.start = -1
		for k, freq := range fftFreqs {
			rising := (freq - lower) / (center - lower)
			falling := (upper - freq) / (upper - center)
			w := math.Max(0, math.Min(rising, falling))
			// each triangle is contiguous, so the first zero past it ends the band
			if w <= 0 {
				if f.start >= 0 {
					break
				}
				continue
			}
			if f.start < 0 {
				f.start = k
			}
			f.weights = append(f.weights, w*enorm)
		}
		if f.start < 0 {
			f.start = 0
		}
		bank[m] = f
	}
	return bank
}

// sampleAt returns y[i], or zero outside the signal.
func sampleAt(y []float64, i int) float64 {
	if i < 0 || i >= len(y) {
		return 0
	}
	return y[i]
}

// melParams describes one mel power spectrogram computation.
type melParams struct {
	nfft       int
	hop        int
	numMels    int
	fmax       float64
	sampleRate int
}

// melSpectrogram returns a [frames][numMels] mel power spectrogram of y
// using centered, zero-padded frames and a periodic Hann window.
func melSpectrogram(ctx context.Context, y []float64, p melParams, bank []melFilter) ([][]float64, error) {
	n := len(y)
	frames := 1 + n/p.hop
	half := p.nfft / 2

	window := periodicHann(p.nfft)
	fft := fourier.NewFFT(p.nfft)
	frame := make([]float64, p.nfft)
	coeffs := make([]complex128, half+1)
	power := make([]float64, half+1)

	out := make([][]float64, frames)
	for t := range frames {
		if t%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		origin := t*p.hop - half
		for i := range frame {
			frame[i] = sampleAt(y, origin+i) * window[i]
		}
		coeffs = fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			re, im := real(c), imag(c)
			power[k] = re*re + im*im
		}

		mel := make([]float64, p.numMels)
		for m, f := range bank {
			var sum float64
			for j, w := range f.weights {
				sum += w * power[f.start+j]
			}
			mel[m] = sum
		}
		out[t] = mel
	}
	return out, nil
}

// powerToDB converts power to decibels relative to the peak of S, in
// place, flooring at peak-topDB. It returns the resulting min and max.
func powerToDB(s [][]float64, topDB float64) (lo, hi float64) {
	ref := amin
	for _, row := range s {
		for _, v := range row {
			ref = math.Max(ref, v)
		}
	}
	refDB := 10 * math.Log10(ref)

	hi = math.Inf(-1)
	for _, row := range s {
		for i, v := range row {
			row[i] = 10*math.Log10(math.Max(amin, v)) - refDB
			hi = math.Max(hi, row[i])
		}
	}

	lo = math.Inf(1)
	floor := hi - topDB
	for _, row := range s {
		for i, v := range row {
			if topDB > 0 && v < floor {
				row[i] = floor
			}
			lo = math.Min(lo, row[i])
		}
	}
	return lo, hi
}
