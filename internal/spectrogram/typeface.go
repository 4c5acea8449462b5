package spectrogram

import (
	"fmt"
	"os"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// labelSize is the point size of scalable label faces. At 72 DPI it matches
// the 13 px line height of the built-in face.
const labelSize = 12

// typeface hands out label faces. A parsed font is safe for concurrent use
// but its faces are not, so every render takes its own.
type typeface struct {
	font *opentype.Font // nil selects basicfont.Face7x13
	path string
}

// loadTypeface parses the TrueType or OpenType font at path. An empty path
// selects the built-in ASCII face.
func loadTypeface(path string) (*typeface, error) {
	if path == "" {
		return &typeface{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return &typeface{font: f, path: path}, nil
}

// face returns a face for one render. The caller closes it.
func (t *typeface) face() (font.Face, error) {
	if t.font == nil {
		return basicfont.Face7x13, nil
	}
	return opentype.NewFace(t.font, &opentype.FaceOptions{
		Size:    labelSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// covers reports whether face has a glyph for every visible rune of s.
func covers(face font.Face, s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if _, ok := face.GlyphAdvance(r); !ok {
			return false
		}
	}
	return true
}

// titleName picks the name shown in the plot title. The species name wins
// when face can draw it; otherwise a drawable scientific name stands in.
func titleName(face font.Face, species, scientific string) string {
	if covers(face, species) || scientific == "" || !covers(face, scientific) {
		return species
	}
	return scientific
}
