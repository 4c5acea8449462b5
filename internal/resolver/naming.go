// Package resolver bridges detection records and the filesystem: it locates
// source recordings, derives artifact names and parses stored time values.
package resolver

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tphakala/birdnet-artifacts/internal/conf"
)

const (
	// DefaultSessionDirMaxLen caps session directory names, in characters.
	DefaultSessionDirMaxLen = 100
	// DefaultSpeciesWhitelist keeps the katakana long vowel mark used in
	// transliterated species names.
	DefaultSpeciesWhitelist = "ー"
)

// Namer derives filesystem-safe names from free-text record fields.
type Namer struct {
	maxSessionLen int
	whitelist     map[rune]struct{}
}

// NewNamer builds a Namer from naming settings, falling back to defaults
// for unset values.
func NewNamer(settings conf.NamingSettings) *Namer {
	maxLen := settings.SessionDirMaxLen
	if maxLen <= 0 {
		maxLen = DefaultSessionDirMaxLen
	}
	whitelist := make(map[rune]struct{})
	for _, r := range norm.NFC.String(settings.SpeciesWhitelist) {
		whitelist[r] = struct{}{}
	}
	return &Namer{maxSessionLen: maxLen, whitelist: whitelist}
}

var defaultNamer = NewNamer(conf.NamingSettings{
	SessionDirMaxLen: DefaultSessionDirMaxLen,
	SpeciesWhitelist: DefaultSpeciesWhitelist,
})

func isSafeASCII(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

// SessionDirName maps every character outside [A-Za-z0-9_-] to '_' and
// truncates the result. Distinct names may collide; this is best effort.
func (n *Namer) SessionDirName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	count := 0
	for _, r := range name {
		if count == n.maxSessionLen {
			break
		}
		if isSafeASCII(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		count++
	}
	return b.String()
}

// SpeciesToken keeps [A-Za-z0-9_-] and whitelisted characters of the NFC
// normalised species name and drops everything else.
func (n *Namer) SpeciesToken(species string) string {
	var b strings.Builder
	for _, r := range norm.NFC.String(species) {
		if isSafeASCII(r) {
			b.WriteRune(r)
			continue
		}
		if _, ok := n.whitelist[r]; ok {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ArtifactStem returns the extension-less artifact file name shared by the
// audio segment and its spectrogram, e.g. detection_007_CommonCuckoo_0.87.
func (n *Namer) ArtifactStem(id uint, species string, confidence float64) string {
	return fmt.Sprintf("detection_%03d_%s_%.2f", id, n.SpeciesToken(species), confidence)
}

// SessionDirName applies the default naming rules.
func SessionDirName(name string) string {
	return defaultNamer.SessionDirName(name)
}

// SpeciesToken applies the default naming rules.
func SpeciesToken(species string) string {
	return defaultNamer.SpeciesToken(species)
}

// ArtifactStem applies the default naming rules.
func ArtifactStem(id uint, species string, confidence float64) string {
	return defaultNamer.ArtifactStem(id, species, confidence)
}
