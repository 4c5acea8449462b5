// Package spectrogram renders mel spectrogram PNGs of extracted clips.
//
// Rendering runs entirely in process: decoded samples are framed and
// transformed with gonum's FFT, projected onto a Slaney mel filterbank,
// converted to decibels relative to the clip's own peak and drawn with a
// viridis colour map onto a pooled canvas.
package spectrogram

import (
	"cmp"
	"context"
	"fmt"
	"image/png"
	"math"
	"math/cmplx"
	"os"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/tphakala/birdnet-artifacts/internal/artifactfs"
	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
	"github.com/tphakala/birdnet-artifacts/internal/myaudio"
	"github.com/tphakala/birdnet-artifacts/internal/resolver"
)

// Default rendering parameters.
const (
	DefaultNMels     = 128
	DefaultNFFT      = 2048
	DefaultHopLength = 512
	DefaultFMax      = 8000.0
	DefaultTopDB     = 80.0
	DefaultWidth     = 800 // 10 in at 80 DPI
	DefaultHeight    = 600 // 6 in at 80 DPI
)

// TitleSuffix follows the species name in the plot title.
const TitleSuffix = " - Mel Spectrogram"

// AudioReader decodes a whole clip as mono at its native rate.
type AudioReader interface {
	ReadAll(ctx context.Context, path string) (*myaudio.Clip, error)
}

// RenderRequest describes one spectrogram to render.
type RenderRequest struct {
	AudioPath   string // absolute path of the extracted clip
	SessionDir  string
	DetectionID uint
	Species     string
	// ScientificName titles the plot when the label font cannot draw Species.
	ScientificName string
	Confidence     float64
}

// Result describes a written spectrogram.
type Result struct {
	RelativePath string
	AbsolutePath string
	Frames       int
	SampleRate   int
}

// Renderer draws mel spectrograms into the artifact tree.
type Renderer struct {
	params conf.SpectrogramSettings
	fs     *artifactfs.FS
	reader AudioReader
	namer  *resolver.Namer
	canvas *canvasPool
	labels *typeface
	banks  sync.Map // sample rate -> []melFilter
	log    logger.Logger
}

// NewRenderer validates the rendering parameters, checks that the FFT and
// raster font work, and returns a renderer. Any failure is reported as a
// backend-unavailable error so callers can disable rendering up front.
func NewRenderer(settings *conf.Settings, afs *artifactfs.FS, reader AudioReader, log logger.Logger) (*Renderer, error) {
	if log == nil {
		log = GetLogger()
	}

	var (
		params conf.SpectrogramSettings
		naming conf.NamingSettings
	)
	if settings != nil {
		params = settings.Spectrogram
		naming = settings.Naming
	}
	params = withDefaults(params)

	if err := validateParams(params); err != nil {
		return nil, backendUnavailable(err, "validate_parameters")
	}
	if err := selfCheckFFT(params.NFFT); err != nil {
		return nil, backendUnavailable(err, "fft_self_check")
	}
	labels, err := loadTypeface(params.FontPath)
	if err != nil {
		return nil, backendUnavailable(err, "load_font")
	}
	face, err := labels.face()
	if err != nil {
		return nil, backendUnavailable(err, "load_font")
	}
	err = checkFont(face)
	_ = face.Close()
	if err != nil {
		return nil, backendUnavailable(err, "font_self_check")
	}

	log.Debug("spectrogram backend ready",
		logger.Int("n_mels", params.NMels),
		logger.Int("n_fft", params.NFFT),
		logger.Int("hop_length", params.HopLength),
		logger.Float64("fmax", params.FMax),
		logger.String("font", cmp.Or(params.FontPath, "builtin")))

	return &Renderer{
		params: params,
		fs:     afs,
		reader: reader,
		namer:  resolver.NewNamer(naming),
		canvas: newCanvasPool(params.Width, params.Height),
		labels: labels,
		log:    log,
	}, nil
}

func withDefaults(p conf.SpectrogramSettings) conf.SpectrogramSettings {
	if p.NMels == 0 {
		p.NMels = DefaultNMels
	}
	if p.NFFT == 0 {
		p.NFFT = DefaultNFFT
	}
	if p.HopLength == 0 {
		p.HopLength = DefaultHopLength
	}
	if p.FMax == 0 {
		p.FMax = DefaultFMax
	}
	if p.TopDB == 0 {
		p.TopDB = DefaultTopDB
	}
	if p.Width == 0 {
		p.Width = DefaultWidth
	}
	if p.Height == 0 {
		p.Height = DefaultHeight
	}
	return p
}

func validateParams(p conf.SpectrogramSettings) error {
	switch {
	case p.NFFT < 16 || p.NFFT&(p.NFFT-1) != 0:
		return fmt.Errorf("n_fft %d must be a power of two of at least 16", p.NFFT)
	case p.HopLength <= 0 || p.HopLength > p.NFFT:
		return fmt.Errorf("hop length %d must be in 1..%d", p.HopLength, p.NFFT)
	case p.NMels <= 0 || p.NMels > p.NFFT/2+1:
		return fmt.Errorf("n_mels %d must be in 1..%d", p.NMels, p.NFFT/2+1)
	case p.FMax <= 0 || math.IsInf(p.FMax, 0) || math.IsNaN(p.FMax):
		return fmt.Errorf("fmax %v must be a positive frequency", p.FMax)
	case p.TopDB < 0:
		return fmt.Errorf("top_db %v must not be negative", p.TopDB)
	case p.Width < marginLeft+marginRight+16 || p.Height < marginTop+marginBottom+16:
		return fmt.Errorf("canvas %dx%d too small for the plot margins", p.Width, p.Height)
	}
	return nil
}

// selfCheckFFT transforms a cosine at a known bin and checks the result.
func selfCheckFFT(n int) error {
	const bin = 5
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = math.Cos(2 * math.Pi * bin * float64(i) / float64(n))
	}
	coeffs := fourier.NewFFT(n).Coefficients(nil, seq)
	if len(coeffs) != n/2+1 {
		return fmt.Errorf("fft returned %d coefficients, want %d", len(coeffs), n/2+1)
	}
	want := float64(n) / 2
	for k, c := range coeffs {
		mag := cmplx.Abs(c)
		if k == bin && math.Abs(mag-want) > 1e-6*want {
			return fmt.Errorf("fft peak magnitude %v at bin %d, want %v", mag, bin, want)
		}
		if k != bin && mag > 1e-6*want {
			return fmt.Errorf("fft leaked %v into bin %d", mag, k)
		}
	}
	return nil
}

// filterBank returns the cached mel filterbank for a sample rate.
func (r *Renderer) filterBank(sampleRate int, fmax float64) []melFilter {
	if bank, ok := r.banks.Load(sampleRate); ok {
		return bank.([]melFilter)
	}
	bank := melFilterBank(r.params.NMels, r.params.NFFT, sampleRate, fmax)
	actual, _ := r.banks.LoadOrStore(sampleRate, bank)
	return actual.([]melFilter)
}

// Render decodes req.AudioPath and writes
// spectrograms/<session>/<stem>.png, replacing any previous image.
func (r *Renderer) Render(ctx context.Context, req RenderRequest) (res Result, err error) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = renderError(fmt.Errorf("panic during rendering: %v", rec), req, "render")
			res = Result{}
		}
	}()

	if info, statErr := os.Stat(req.AudioPath); statErr != nil || !info.Mode().IsRegular() {
		if statErr == nil {
			statErr = fmt.Errorf("%s is not a regular file", req.AudioPath)
		}
		return Result{}, errors.New(statErr).
			Component("spectrogram").
			Category(errors.CategoryNotFound).
			Context("operation", "open_segment").
			Context("detection_id", req.DetectionID).
			Context("audio_path", req.AudioPath).
			Build()
	}

	clip, err := r.reader.ReadAll(ctx, req.AudioPath)
	if err != nil {
		return Result{}, renderError(err, req, "decode")
	}

	fmax := math.Min(r.params.FMax, float64(clip.SampleRate)/2)
	p := melParams{
		nfft:       r.params.NFFT,
		hop:        r.params.HopLength,
		numMels:    r.params.NMels,
		fmax:       fmax,
		sampleRate: clip.SampleRate,
	}

	spec, err := melSpectrogram(ctx, clip.Samples, p, r.filterBank(clip.SampleRate, fmax))
	if err != nil {
		return Result{}, renderError(err, req, "stft")
	}
	lo, hi := powerToDB(spec, r.params.TopDB)

	face, err := r.labels.face()
	if err != nil {
		return Result{}, renderError(err, req, "load_font")
	}
	defer func() { _ = face.Close() }()

	title := titleName(face, req.Species, req.ScientificName)
	if title != req.Species {
		r.log.Debug("label font lacks glyphs for species name, using scientific name",
			logger.Uint64("detection_id", uint64(req.DetectionID)),
			logger.String("species", req.Species))
	}

	img := r.canvas.acquire()
	defer r.canvas.release(img)

	drawPlot(img, spec, plotSpec{
		face:     face,
		title:    title + TitleSuffix,
		duration: clip.Duration(),
		fmax:     fmax,
		lo:       lo,
		hi:       hi,
	})

	stem := r.namer.ArtifactStem(req.DetectionID, req.Species, req.Confidence)
	rel := resolver.ArtifactRelPath(conf.DirSpectrograms, req.SessionDir, stem+".png")

	if err := r.fs.WriteAtomic(rel, func(f *os.File) error {
		return png.Encode(f, img)
	}); err != nil {
		return Result{}, renderError(err, req, "write")
	}

	abs, err := r.fs.Abs(rel)
	if err != nil {
		return Result{}, renderError(err, req, "resolve_output")
	}

	r.log.Debug("spectrogram written",
		logger.Uint64("detection_id", uint64(req.DetectionID)),
		logger.String("path", rel),
		logger.Int("frames", len(spec)),
		logger.Int("sample_rate", clip.SampleRate),
		logger.Duration("elapsed", time.Since(started)))

	return Result{
		RelativePath: rel,
		AbsolutePath: abs,
		Frames:       len(spec),
		SampleRate:   clip.SampleRate,
	}, nil
}

func renderError(err error, req RenderRequest, operation string) error {
	return errors.New(err).
		Component("spectrogram").
		Category(errors.CategoryRender).
		Context("operation", operation).
		Context("detection_id", req.DetectionID).
		Context("audio_path", req.AudioPath).
		Build()
}

func backendUnavailable(err error, operation string) error {
	return errors.New(err).
		Component("spectrogram").
		Category(errors.CategoryBackendUnavailable).
		Context("operation", operation).
		Build()
}
