package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-artifacts/internal/conf"
)

// newTestLocator lays out <root>/database/audio/{completed,inbox} and
// returns a locator over it.
func newTestLocator(t *testing.T, tweak func(*conf.Settings)) (*Locator, string) {
	t.Helper()

	root := t.TempDir()
	source := filepath.Join(root, "database", "audio")
	require.NoError(t, os.MkdirAll(filepath.Join(source, conf.DirCompleted), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(source, conf.DirInbox), 0o755))

	settings := &conf.Settings{}
	settings.Paths.ProjectRoot = root
	settings.Paths.SourceAudio = source
	if tweak != nil {
		tweak(settings)
	}
	return NewLocator(settings), root
}

func touch(t *testing.T, parts ...string) string {
	t.Helper()
	path := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o600))
	return path
}

func TestFindSourceAudioPriorityDirsBeforeExtensions(t *testing.T) {
	t.Parallel()

	loc, root := newTestLocator(t, nil)
	source := filepath.Join(root, "database", "audio")
	want := touch(t, source, conf.DirCompleted, "rec.mp3")
	touch(t, source, conf.DirInbox, "rec.wav")

	got, ok := loc.FindSourceAudio("rec")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestFindSourceAudioPrefersWav(t *testing.T) {
	t.Parallel()

	loc, root := newTestLocator(t, nil)
	inbox := filepath.Join(root, "database", "audio", conf.DirInbox)
	touch(t, inbox, "rec.ogg")
	touch(t, inbox, "rec.flac")
	want := touch(t, inbox, "rec.wav")

	got, ok := loc.FindSourceAudio("rec")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestFindSourceAudioProjectScan(t *testing.T) {
	t.Parallel()

	loc, root := newTestLocator(t, nil)
	touch(t, root, "a", "rec.ogg")
	want := touch(t, root, "z", "deep", "rec.mp3")

	// mp3 outranks ogg even though ogg comes first in walk order.
	got, ok := loc.FindSourceAudio("rec")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestFindSourceAudioSkipsArtifactAndHiddenDirs(t *testing.T) {
	t.Parallel()

	loc, root := newTestLocator(t, nil)
	touch(t, root, "database", conf.DirAudioSegments, "site", "rec.wav")
	touch(t, root, "database", conf.DirSpectrograms, "site", "rec.wav")
	touch(t, root, ".cache", "rec.wav")

	_, ok := loc.FindSourceAudio("rec")
	assert.False(t, ok)
}

func TestFindSourceAudioDepthBound(t *testing.T) {
	t.Parallel()

	loc, root := newTestLocator(t, func(s *conf.Settings) { s.Search.MaxDepth = 2 })
	touch(t, root, "a", "b", "c", "deep.wav")
	want := touch(t, root, "a", "b", "shallow.wav")

	_, ok := loc.FindSourceAudio("deep")
	assert.False(t, ok)

	got, ok := loc.FindSourceAudio("shallow")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestFindSourceAudioEntryBound(t *testing.T) {
	t.Parallel()

	loc, root := newTestLocator(t, func(s *conf.Settings) { s.Search.MaxEntries = 3 })
	for _, name := range []string{"a1", "a2", "a3", "a4", "a5"} {
		touch(t, root, name, "noise.txt")
	}
	touch(t, root, "zz", "rec.wav")

	_, ok := loc.FindSourceAudio("rec")
	assert.False(t, ok)
}

func TestFindSourceAudioSymlinkLoop(t *testing.T) {
	t.Parallel()

	loc, root := newTestLocator(t, nil)
	if err := os.Symlink(root, filepath.Join(root, "loop")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, ok := loc.FindSourceAudio("missing")
	assert.False(t, ok)
}

func TestFindSourceAudioRejectsUnsafeStem(t *testing.T) {
	t.Parallel()

	loc, root := newTestLocator(t, nil)
	touch(t, root, "rec.wav")

	for _, stem := range []string{"", ".", "..", "../rec", "a/rec", `a\rec`} {
		_, ok := loc.FindSourceAudio(stem)
		assert.False(t, ok, stem)
	}
}

func TestFindSourceAudioIgnoresDirectoriesNamedLikeRecordings(t *testing.T) {
	t.Parallel()

	loc, root := newTestLocator(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "database", "audio", conf.DirInbox, "rec.wav"), 0o755))

	_, ok := loc.FindSourceAudio("rec")
	assert.False(t, ok)
}
