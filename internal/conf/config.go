// config.go: this code defines the structure of the configuration settings
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

// PathSettings locates the directories the pipeline reads from and writes to.
// Relative paths are resolved against the directory of the loaded config file.
type PathSettings struct {
	ProjectRoot string `yaml:"projectroot" validate:"required"` // last-resort recursive search root for source audio
	Artifacts   string `yaml:"artifacts" validate:"required"`   // root of audio_segments/ and spectrograms/
	SourceAudio string `yaml:"sourceaudio" validate:"required"` // holds the completed/ and inbox/ tiers
}

// SQLiteSettings configures the default embedded record store.
type SQLiteSettings struct {
	Path string `yaml:"path"` // path to the detections database file
}

// MySQLSettings configures an external record store.
type MySQLSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DatabaseSettings selects and configures the record store backend.
type DatabaseSettings struct {
	Type               string         `yaml:"type" validate:"oneof=sqlite mysql"`
	SQLite             SQLiteSettings `yaml:"sqlite"`
	MySQL              MySQLSettings  `yaml:"mysql"`
	SlowQueryThreshold time.Duration  `yaml:"slowquerythreshold"`
}

// SearchSettings controls how source recordings are located.
type SearchSettings struct {
	PriorityDirs []string `yaml:"prioritydirs" validate:"min=1,dive,required"` // searched in order, relative to paths.sourceaudio
	Extensions   []string `yaml:"extensions" validate:"min=1,dive,startswith=."`
	MaxDepth     int      `yaml:"maxdepth" validate:"min=1"`   // recursive fallback directory depth bound
	MaxEntries   int      `yaml:"maxentries" validate:"min=1"` // recursive fallback visited-entry bound
}

// NamingSettings controls artifact directory and file naming.
type NamingSettings struct {
	SessionDirMaxLen int    `yaml:"sessiondirmaxlen" validate:"min=1"`
	SpeciesWhitelist string `yaml:"specieswhitelist"` // extra runes kept in the species token
}

// SegmentSettings configures audio clip extraction.
type SegmentSettings struct {
	ContextSeconds float64 `yaml:"contextseconds" validate:"gte=0"`
}

// SpectrogramSettings configures mel spectrogram rendering.
type SpectrogramSettings struct {
	Enabled   bool    `yaml:"enabled"`
	NMels     int     `yaml:"nmels" validate:"min=1"`
	NFFT      int     `yaml:"nfft" validate:"min=16"`
	HopLength int     `yaml:"hoplength" validate:"min=1"`
	FMax      float64 `yaml:"fmax" validate:"gt=0"`
	TopDB     float64 `yaml:"topdb" validate:"gte=0"`
	Width     int     `yaml:"width" validate:"min=200"`
	Height    int     `yaml:"height" validate:"min=150"`
	FontPath  string  `yaml:"fontpath"` // TrueType/OpenType font for labels; empty uses the built-in ASCII face
}

// ProcessingSettings configures the batch orchestrator.
type ProcessingSettings struct {
	BatchSize      int           `yaml:"batchsize" validate:"min=1"`
	Workers        int           `yaml:"workers" validate:"min=1"`
	ItemTimeout    time.Duration `yaml:"itemtimeout" validate:"gte=0"` // 0 disables the per-item timeout
	MinFreeSpaceMB uint64        `yaml:"minfreespacemb"`               // warn before a bulk run below this
}

// AudioSettings locates external decoder binaries.
type AudioSettings struct {
	FfmpegPath  string `yaml:"ffmpegpath"`
	FfprobePath string `yaml:"ffprobepath"`
}

// CacheSettings configures the viewer read cache.
type CacheSettings struct {
	TTL time.Duration `yaml:"ttl" validate:"gte=0"`
}

// WebServerSettings configures the local viewer API.
type WebServerSettings struct {
	Listen string `yaml:"listen" validate:"required,hostname_port"`
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn" validate:"omitempty,url"`
}

// TelemetrySettings groups optional telemetry backends.
type TelemetrySettings struct {
	Sentry SentrySettings `yaml:"sentry"`
}

// Settings contains all configuration options for the artifact pipeline.
type Settings struct {
	Debug bool `yaml:"debug"`

	Paths       PathSettings         `yaml:"paths"`
	Database    DatabaseSettings     `yaml:"database"`
	Search      SearchSettings       `yaml:"search"`
	Naming      NamingSettings       `yaml:"naming"`
	Segment     SegmentSettings      `yaml:"segment"`
	Spectrogram SpectrogramSettings  `yaml:"spectrogram"`
	Processing  ProcessingSettings   `yaml:"processing"`
	Audio       AudioSettings        `yaml:"audio"`
	Cache       CacheSettings        `yaml:"cache"`
	WebServer   WebServerSettings    `yaml:"webserver"`
	Telemetry   TelemetrySettings    `yaml:"telemetry"`
	Logging     logger.LoggingConfig `yaml:"logging"`

	// ConfigFile is the file the settings were read from, empty when none.
	ConfigFile string `yaml:"-" mapstructure:"-"`
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// An empty configFile searches the default config paths and creates a
// default config file when none exists.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	v := viper.New()
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	settings.ConfigFile = v.ConfigFileUsed()

	resolveRelativePaths(settings)
	settings.ResolveAudioTools()

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, environment bindings and reads the configuration file.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	loadDotEnv()
	if err := bindEnvVars(v); err != nil {
		// ValidateSettings rejects whatever would break the pipeline
		GetLogger().Warn("environment variable issues", logger.Error(err))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	err = v.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(v, configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the defaults to <dir>/config.yaml and reads it back.
func createDefaultConfig(v *viper.Viper, dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	defaults := &Settings{}
	if err := v.Unmarshal(defaults); err != nil {
		return fmt.Errorf("error building default settings: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, defaults); err != nil {
		return err
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))

	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// WriteDefaultConfig writes a config file populated with default values.
func WriteDefaultConfig(configPath string) error {
	v := viper.New()
	setDefaultConfig(v)

	defaults := &Settings{}
	if err := v.Unmarshal(defaults); err != nil {
		return fmt.Errorf("error building default settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	return SaveYAMLConfig(configPath, defaults)
}

// resolveRelativePaths anchors relative directories at the config file's
// directory so the pipeline behaves the same from any working directory.
func resolveRelativePaths(s *Settings) {
	base := "."
	if s.ConfigFile != "" {
		base = filepath.Dir(s.ConfigFile)
	}
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Clean(filepath.Join(base, p))
	}

	s.Paths.ProjectRoot = anchor(s.Paths.ProjectRoot)
	s.Paths.Artifacts = anchor(s.Paths.Artifacts)
	s.Paths.SourceAudio = anchor(s.Paths.SourceAudio)
	s.Database.SQLite.Path = anchor(s.Database.SQLite.Path)
	s.Spectrogram.FontPath = anchor(s.Spectrogram.FontPath)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath. The write goes through a
// temporary file and rename so a crash never leaves a truncated config.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}
