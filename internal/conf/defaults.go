// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("paths.projectroot", ".")
	v.SetDefault("paths.artifacts", "database")
	v.SetDefault("paths.sourceaudio", "database/audio")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite.path", "database/result.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "birdnet")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "birdnet")
	v.SetDefault("database.slowquerythreshold", 200*time.Millisecond)

	v.SetDefault("search.prioritydirs", []string{DirCompleted, DirInbox})
	v.SetDefault("search.extensions", []string{".wav", ".mp3", ".flac", ".m4a", ".ogg"})
	v.SetDefault("search.maxdepth", 12)
	v.SetDefault("search.maxentries", 100000)

	v.SetDefault("naming.sessiondirmaxlen", 100)
	v.SetDefault("naming.specieswhitelist", "ー")

	v.SetDefault("segment.contextseconds", 5.0)

	v.SetDefault("spectrogram.enabled", true)
	v.SetDefault("spectrogram.nmels", 128)
	v.SetDefault("spectrogram.nfft", 2048)
	v.SetDefault("spectrogram.hoplength", 512)
	v.SetDefault("spectrogram.fmax", 8000.0)
	v.SetDefault("spectrogram.topdb", 80.0)
	v.SetDefault("spectrogram.width", 800)
	v.SetDefault("spectrogram.height", 600)
	v.SetDefault("spectrogram.fontpath", "")

	v.SetDefault("processing.batchsize", 100)
	v.SetDefault("processing.workers", 1)
	v.SetDefault("processing.itemtimeout", 0)
	v.SetDefault("processing.minfreespacemb", 500)

	v.SetDefault("audio.ffmpegpath", "")
	v.SetDefault("audio.ffprobepath", "")

	v.SetDefault("cache.ttl", 5*time.Minute)

	v.SetDefault("webserver.listen", "127.0.0.1:8501")

	v.SetDefault("telemetry.sentry.enabled", false)
	v.SetDefault("telemetry.sentry.dsn", "")

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	v.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	v.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.file_output.compress", logger.DefaultCompressLogs)
}
