package artifactfs

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-artifacts/internal/conf"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	a, err := New(filepath.Join(t.TempDir(), "database"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writeSized(t *testing.T, a *FS, rel string, size int) {
	t.Helper()
	require.NoError(t, a.WriteAtomic(rel, func(f *os.File) error {
		_, err := f.Write(bytes.Repeat([]byte{'x'}, size))
		return err
	}))
}

func TestCleanRel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"audio_segments/site/a.wav", filepath.Join("audio_segments", "site", "a.wav"), nil},
		{`spectrograms\site\a.png`, filepath.Join("spectrograms", "site", "a.png"), nil},
		{"audio_segments/../spectrograms/x.png", filepath.Join("spectrograms", "x.png"), nil},
		{"../etc/passwd", "", ErrPathTraversal},
		{"a/../../b", "", ErrPathTraversal},
		{"/etc/passwd", "", ErrInvalidPath},
		{"", "", ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := cleanRel(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteAtomicCreatesParentsAndReplaces(t *testing.T) {
	t.Parallel()

	a := newTestFS(t)
	rel := "audio_segments/site/clip.wav"

	writeSized(t, a, rel, 10)
	writeSized(t, a, rel, 20)

	info, err := a.Stat(rel)
	require.NoError(t, err)
	assert.Equal(t, int64(20), info.Size())

	entries, err := a.ReadDir("audio_segments/site")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not linger")
}

func TestWriteAtomicFailureLeavesTargetUntouched(t *testing.T) {
	t.Parallel()

	a := newTestFS(t)
	rel := "spectrograms/site/x.png"
	writeSized(t, a, rel, 5)

	boom := errors.New("encoder failed")
	err := a.WriteAtomic(rel, func(f *os.File) error {
		_, _ = f.WriteString("partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	info, err := a.Stat(rel)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	entries, err := a.ReadDir("spectrograms/site")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSymlinkEscapeIsRefused(t *testing.T) {
	t.Parallel()

	a := newTestFS(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.wav"), []byte("x"), 0o600))
	require.NoError(t, a.MkdirAll("audio_segments"))
	if err := os.Symlink(outside, filepath.Join(a.BaseDir(), "audio_segments", "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := a.Open("audio_segments/link/secret.wav")
	assert.Error(t, err)
}

func TestExists(t *testing.T) {
	t.Parallel()

	a := newTestFS(t)
	writeSized(t, a, "audio_segments/s/a.wav", 1)

	ok, err := a.Exists("audio_segments/s/a.wav")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Exists("audio_segments/s/b.wav")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.Exists("../x")
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestEnsureLayout(t *testing.T) {
	t.Parallel()

	a := newTestFS(t)
	require.NoError(t, a.EnsureLayout())
	require.NoError(t, a.EnsureLayout())
	assert.DirExists(t, filepath.Join(a.BaseDir(), conf.DirAudioSegments))
	assert.DirExists(t, filepath.Join(a.BaseDir(), conf.DirSpectrograms))

	source := filepath.Join(a.BaseDir(), "audio")
	require.NoError(t, EnsureSourceLayout(source))
	for _, tier := range []string{conf.DirCompleted, conf.DirInbox, conf.DirFailed} {
		assert.DirExists(t, filepath.Join(source, tier))
	}
}

func TestStorageUsageAndSessionCounts(t *testing.T) {
	t.Parallel()

	a := newTestFS(t)
	writeSized(t, a, "audio_segments/s1/a.wav", bytesPerMB)
	writeSized(t, a, "audio_segments/s1/b.wav", bytesPerMB/2)
	writeSized(t, a, "audio_segments/s1/notes.txt", 100)
	writeSized(t, a, "audio_segments/s2/c.wav", bytesPerMB/2)
	writeSized(t, a, "spectrograms/s1/a.png", bytesPerMB/4)

	usage, err := a.StorageUsage()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, usage.AudioSegmentsMB, 1e-9)
	assert.InDelta(t, 0.25, usage.SpectrogramsMB, 1e-9)
	assert.InDelta(t, 2.25, usage.TotalMB, 1e-9)
	assert.Equal(t, 3, usage.AudioSegments)
	assert.Equal(t, 1, usage.Spectrograms)

	counts, err := a.SessionFileCounts("s1")
	require.NoError(t, err)
	assert.Equal(t, SessionFiles{AudioSegments: 2, Spectrograms: 1}, counts)

	counts, err = a.SessionFileCounts("never-processed")
	require.NoError(t, err)
	assert.Equal(t, SessionFiles{}, counts)
}

func TestStorageUsageEmptyTree(t *testing.T) {
	t.Parallel()

	usage, err := newTestFS(t).StorageUsage()
	require.NoError(t, err)
	assert.Zero(t, usage.TotalMB)
}

func TestCleanupIncomplete(t *testing.T) {
	t.Parallel()

	a := newTestFS(t)
	writeSized(t, a, "audio_segments/s1/tiny.wav", 44)
	writeSized(t, a, "audio_segments/s1/good.wav", 4096)
	writeSized(t, a, "spectrograms/s1/tiny.png", 10)
	writeSized(t, a, "audio_segments/s2/tiny.wav", 10)

	res, err := a.CleanupIncomplete("s1")
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{AudioSegments: 1, Spectrograms: 1}, res)
	assert.Equal(t, 2, res.Total())

	ok, _ := a.Exists("audio_segments/s1/good.wav")
	assert.True(t, ok)
	ok, _ = a.Exists("audio_segments/s2/tiny.wav")
	assert.True(t, ok)

	res, err = a.CleanupIncomplete("")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total())
}

func TestCheckFreeSpace(t *testing.T) {
	t.Parallel()

	a := newTestFS(t)
	ok, _ := a.CheckFreeSpace(0)
	assert.True(t, ok)

	ok, _ = a.CheckFreeSpace(^uint64(0))
	assert.False(t, ok)
}

func TestServeFile(t *testing.T) {
	t.Parallel()

	a := newTestFS(t)
	writeSized(t, a, "spectrograms/s/x.png", 32)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, a.ServeFile(c, "spectrograms/s/x.png"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, 32, rec.Body.Len())

	tests := []struct {
		rel  string
		code int
	}{
		{"spectrograms/s/missing.png", http.StatusNotFound},
		{"../outside.png", http.StatusBadRequest},
		{"spectrograms/s", http.StatusForbidden},
	}
	for _, tt := range tests {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		err := a.ServeFile(c, tt.rel)
		var he *echo.HTTPError
		require.ErrorAs(t, err, &he, tt.rel)
		assert.Equal(t, tt.code, he.Code, tt.rel)
	}
}
