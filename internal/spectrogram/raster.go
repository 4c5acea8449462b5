package spectrogram

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Plot margins in pixels around the spectrogram area.
const (
	marginLeft   = 72
	marginRight  = 24
	marginTop    = 48
	marginBottom = 56
	tickLen      = 5
	titleScale   = 2
)

// melTickHz are the frequencies labelled on the mel axis.
var melTickHz = []float64{0, 512, 1024, 2048, 4096, 8192, 16384}

// timeTickSteps are the candidate spacings for time axis ticks, in seconds.
var timeTickSteps = []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120}

// canvasPool recycles raster canvases of one size.
type canvasPool struct {
	pool   sync.Pool
	bounds image.Rectangle
	inUse  atomic.Int64
}

func newCanvasPool(width, height int) *canvasPool {
	p := &canvasPool{bounds: image.Rect(0, 0, width, height)}
	p.pool.New = func() any {
		return image.NewRGBA(p.bounds)
	}
	return p
}

// acquire returns a white canvas. Every acquire must be paired with release.
func (p *canvasPool) acquire() *image.RGBA {
	img := p.pool.Get().(*image.RGBA)
	xdraw.Draw(img, img.Bounds(), image.White, image.Point{}, xdraw.Src)
	p.inUse.Add(1)
	return img
}

func (p *canvasPool) release(img *image.RGBA) {
	if img == nil {
		return
	}
	p.inUse.Add(-1)
	p.pool.Put(img)
}

// outstanding reports canvases acquired and not yet released.
func (p *canvasPool) outstanding() int64 {
	return p.inUse.Load()
}

// plotSpec carries what the axes need to know about the data.
type plotSpec struct {
	face     font.Face
	title    string
	duration float64 // seconds covered by the frames
	fmax     float64
	lo, hi   float64 // dB range for colour scaling
}

// drawPlot renders db ([frames][bands], low band first) with axes and title.
func drawPlot(img *image.RGBA, db [][]float64, spec plotSpec) {
	b := img.Bounds()
	plot := image.Rect(b.Min.X+marginLeft, b.Min.Y+marginTop, b.Max.X-marginRight, b.Max.Y-marginBottom)

	drawHeatmap(img, plot, db, spec.lo, spec.hi)
	drawFrame(img, plot)
	drawMelAxis(img, spec.face, plot, spec.fmax)
	drawTimeAxis(img, spec.face, plot, spec.duration)
	drawTitle(img, spec.face, plot, spec.title)
}

func drawHeatmap(img *image.RGBA, plot image.Rectangle, db [][]float64, lo, hi float64) {
	frames := len(db)
	if frames == 0 || len(db[0]) == 0 {
		return
	}
	bands := len(db[0])
	w, h := plot.Dx(), plot.Dy()
	span := hi - lo

	for px := range w {
		t := px * frames / w
		col := db[t]
		for py := range h {
			m := (h - 1 - py) * bands / h
			v := 0.0
			if span > 0 {
				v = (col[m] - lo) / span
			}
			img.SetRGBA(plot.Min.X+px, plot.Min.Y+py, colorAt(v))
		}
	}
}

func drawFrame(img *image.RGBA, plot image.Rectangle) {
	hLine(img, plot.Min.X-1, plot.Max.X, plot.Min.Y-1)
	hLine(img, plot.Min.X-1, plot.Max.X, plot.Max.Y)
	vLine(img, plot.Min.X-1, plot.Min.Y-1, plot.Max.Y)
	vLine(img, plot.Max.X, plot.Min.Y-1, plot.Max.Y)
}

func drawMelAxis(img *image.RGBA, face font.Face, plot image.Rectangle, fmax float64) {
	maxMel := hzToMel(fmax)
	h := float64(plot.Dy())
	for _, hz := range melTickHz {
		if hz > fmax {
			break
		}
		y := plot.Max.Y - int(math.Round(hzToMel(hz)/maxMel*h))
		hLine(img, plot.Min.X-1-tickLen, plot.Min.X-1, y)

		label := strconv.FormatFloat(hz, 'f', -1, 64)
		width := font.MeasureString(face, label).Ceil()
		drawText(img, face, label, plot.Min.X-tickLen-4-width, y+4)
	}
	drawText(img, face, "Hz", plot.Min.X-tickLen-4-font.MeasureString(face, "Hz").Ceil(), plot.Min.Y-8)
}

func drawTimeAxis(img *image.RGBA, face font.Face, plot image.Rectangle, duration float64) {
	if duration <= 0 {
		return
	}
	step := timeTickSteps[len(timeTickSteps)-1]
	for _, s := range timeTickSteps {
		if duration/s <= 10 {
			step = s
			break
		}
	}

	w := float64(plot.Dx())
	for t := 0.0; t <= duration+1e-9; t += step {
		x := plot.Min.X + int(math.Round(t/duration*w))
		vLine(img, x, plot.Max.Y+1, plot.Max.Y+1+tickLen)

		label := strconv.FormatFloat(t, 'f', -1, 64)
		width := font.MeasureString(face, label).Ceil()
		drawText(img, face, label, x-width/2, plot.Max.Y+tickLen+16)
	}

	label := "Time (s)"
	width := font.MeasureString(face, label).Ceil()
	drawText(img, face, label, plot.Min.X+plot.Dx()/2-width/2, plot.Max.Y+tickLen+36)
}

// drawTitle renders the title enlarged and centred above the plot.
func drawTitle(img *image.RGBA, face font.Face, plot image.Rectangle, title string) {
	width := font.MeasureString(face, title).Ceil()
	if width == 0 {
		return
	}
	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil()

	text := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(text, text.Bounds(), image.White, image.Point{}, xdraw.Src)
	drawText(text, face, title, 0, metrics.Ascent.Ceil())

	scale := titleScale
	if width*scale > img.Bounds().Dx() {
		scale = 1
	}
	dw, dh := width*scale, height*scale
	x := img.Bounds().Min.X + (img.Bounds().Dx()-dw)/2
	y := max(plot.Min.Y-dh-12, img.Bounds().Min.Y)
	xdraw.NearestNeighbor.Scale(img, image.Rect(x, y, x+dw, y+dh), text, text.Bounds(), xdraw.Src, nil)
}

func drawText(img *image.RGBA, face font.Face, s string, x, baseline int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(s)
}

func hLine(img *image.RGBA, x0, x1, y int) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y, color.RGBA{A: 0xff})
	}
}

func vLine(img *image.RGBA, x, y0, y1 int) {
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x, y, color.RGBA{A: 0xff})
	}
}

// checkFont verifies face can lay out the glyphs the axes use.
func checkFont(face font.Face) error {
	for _, s := range []string{"0123456789.", "Hz", "Time (s)"} {
		if !covers(face, s) || font.MeasureString(face, s) <= 0 {
			return fmt.Errorf("font face cannot draw %q", s)
		}
	}
	return nil
}
