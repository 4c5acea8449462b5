package spectrogram

import "image/color"

// viridisStops are ten evenly spaced samples of the viridis colour map.
var viridisStops = [...]color.RGBA{
	{0x44, 0x01, 0x54, 0xff},
	{0x48, 0x28, 0x78, 0xff},
	{0x3e, 0x4a, 0x89, 0xff},
	{0x31, 0x68, 0x8e, 0xff},
	{0x26, 0x82, 0x8e, 0xff},
	{0x1f, 0x9e, 0x89, 0xff},
	{0x35, 0xb7, 0x79, 0xff},
	{0x6d, 0xcd, 0x59, 0xff},
	{0xb4, 0xde, 0x2c, 0xff},
	{0xfd, 0xe7, 0x25, 0xff},
}

// viridis is a 256-entry lookup table interpolated from viridisStops.
var viridis = buildLUT(viridisStops[:])

func buildLUT(stops []color.RGBA) [256]color.RGBA {
	var lut [256]color.RGBA
	segments := float64(len(stops) - 1)
	for i := range lut {
		pos := float64(i) / 255 * segments
		lo := int(pos)
		if lo >= len(stops)-1 {
			lut[i] = stops[len(stops)-1]
			continue
		}
		frac := pos - float64(lo)
		a, b := stops[lo], stops[lo+1]
		lut[i] = color.RGBA{
			R: lerp8(a.R, b.R, frac),
			G: lerp8(a.G, b.G, frac),
			B: lerp8(a.B, b.B, frac),
			A: 0xff,
		}
	}
	return lut
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}

// colorAt maps v in [0, 1] onto the colour map.
func colorAt(v float64) color.RGBA {
	switch {
	case v <= 0 || v != v:
		return viridis[0]
	case v >= 1:
		return viridis[255]
	}
	return viridis[int(v*255+0.5)]
}
