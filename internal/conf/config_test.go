package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "debug: false\n")

	settings, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, "sqlite", settings.Database.Type)
	assert.Equal(t, filepath.Join(dir, "database", "result.db"), settings.Database.SQLite.Path)
	assert.Equal(t, filepath.Join(dir, "database"), settings.Paths.Artifacts)
	assert.Equal(t, filepath.Join(dir, "database", "audio"), settings.Paths.SourceAudio)
	assert.Equal(t, []string{"completed", "inbox"}, settings.Search.PriorityDirs)
	assert.Equal(t, []string{".wav", ".mp3", ".flac", ".m4a", ".ogg"}, settings.Search.Extensions)
	assert.InDelta(t, 5.0, settings.Segment.ContextSeconds, 0)
	assert.Equal(t, 128, settings.Spectrogram.NMels)
	assert.Equal(t, 2048, settings.Spectrogram.NFFT)
	assert.Equal(t, 512, settings.Spectrogram.HopLength)
	assert.InDelta(t, 8000.0, settings.Spectrogram.FMax, 0)
	assert.Equal(t, 800, settings.Spectrogram.Width)
	assert.Equal(t, 600, settings.Spectrogram.Height)
	assert.Empty(t, settings.Spectrogram.FontPath)
	assert.Equal(t, 100, settings.Processing.BatchSize)
	assert.Equal(t, 1, settings.Processing.Workers)
	assert.Equal(t, 100, settings.Naming.SessionDirMaxLen)
	assert.Equal(t, "ー", settings.Naming.SpeciesWhitelist)
	assert.Equal(t, 200*time.Millisecond, settings.Database.SlowQueryThreshold)
	assert.Equal(t, path, settings.ConfigFile)
	assert.Same(t, settings, GetSettings())
}

func TestLoadReadsOverrides(t *testing.T) {
	path := writeConfig(t, `
paths:
  artifacts: /srv/artifacts
processing:
  batchsize: 25
  itemtimeout: 30s
spectrogram:
  enabled: false
  fontpath: fonts/NotoSansJP.otf
logging:
  default_level: debug
  console:
    enabled: true
    level: warn
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/artifacts", settings.Paths.Artifacts)
	assert.Equal(t, 25, settings.Processing.BatchSize)
	assert.Equal(t, 30*time.Second, settings.Processing.ItemTimeout)
	assert.False(t, settings.Spectrogram.Enabled)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "fonts", "NotoSansJP.otf"), settings.Spectrogram.FontPath)
	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.Equal(t, "warn", settings.Logging.Console.Level)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("BIRDNET_DATABASE_PATH", "/data/birds.db")
	t.Setenv("BIRDNET_BATCH_SIZE", "7")

	settings, err := Load(writeConfig(t, "debug: true\n"))
	require.NoError(t, err)

	assert.Equal(t, "/data/birds.db", settings.Database.SQLite.Path)
	assert.Equal(t, 7, settings.Processing.BatchSize)
	assert.True(t, settings.Debug)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	path := writeConfig(t, `
database:
  type: postgres
processing:
  batchsize: 0
spectrogram:
  nfft: 1000
`)

	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.GreaterOrEqual(t, len(ve.Errors), 3)
	assert.Contains(t, err.Error(), "Database.Type")
	assert.Contains(t, err.Error(), "Processing.BatchSize")
	assert.Contains(t, err.Error(), "power of two")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, settings.Processing.BatchSize)
	assert.Equal(t, "127.0.0.1:8501", settings.WebServer.Listen)
	assert.Equal(t, 5*time.Minute, settings.Cache.TTL)
}

func TestValidateMySQLRequiresConnectionFields(t *testing.T) {
	t.Parallel()

	err := validateDatabaseSettings(&DatabaseSettings{Type: "mysql", MySQL: MySQLSettings{Port: 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host, database and username")
	assert.Contains(t, err.Error(), "out of range")

	err = validateDatabaseSettings(&DatabaseSettings{
		Type:  "mysql",
		MySQL: MySQLSettings{Host: "db", Port: 3306, Username: "u", Database: "birds"},
	})
	assert.NoError(t, err)
}

func TestValidateSpectrogramSettings(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateSpectrogramSettings(&SpectrogramSettings{NMels: 128, NFFT: 2048, HopLength: 512}))

	err := validateSpectrogramSettings(&SpectrogramSettings{NMels: 600, NFFT: 512, HopLength: 1024})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds nfft")
	assert.Contains(t, err.Error(), "frequency bins")
}

func TestValidateToolPath(t *testing.T) {
	t.Parallel()

	tool := filepath.Join(t.TempDir(), "fakeffmpeg")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\n"), 0o700))

	got, err := ValidateToolPath(tool, "definitely-not-a-real-tool-xyz")
	require.NoError(t, err)
	assert.Equal(t, tool, got)

	_, err = ValidateToolPath("", "definitely-not-a-real-tool-xyz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in system PATH")
}

func TestBindEnvVarsReportsInvalidValues(t *testing.T) {
	t.Setenv("BIRDNET_WORKERS", "zero")
	t.Setenv("BIRDNET_SPECTROGRAMS", "maybe")

	err := bindEnvVars(newTestViper())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BIRDNET_WORKERS")
	assert.Contains(t, err.Error(), "BIRDNET_SPECTROGRAMS")
}

func TestResolveAudioToolsKeepsConfiguredPath(t *testing.T) {
	t.Parallel()

	tool := filepath.Join(t.TempDir(), "ffmpeg-custom")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\n"), 0o700))

	s := &Settings{}
	s.Audio.FfmpegPath = tool
	s.ResolveAudioTools()
	assert.Equal(t, tool, s.Audio.FfmpegPath)
}
