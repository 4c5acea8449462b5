// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix is prepended to every automatically bound key, so that
// processing.batchsize is read from BIRDNET_PROCESSING_BATCHSIZE.
const envPrefix = "BIRDNET"

// envBinding holds metadata for explicit environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly named environment variables. Keys not
// listed here are still reachable through the BIRDNET_ prefix.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"database.sqlite.path", "BIRDNET_DATABASE_PATH", validateEnvPath},
		{"database.type", "BIRDNET_DATABASE_TYPE", validateEnvDatabaseType},
		{"database.mysql.password", "BIRDNET_MYSQL_PASSWORD", nil},
		{"paths.artifacts", "BIRDNET_ARTIFACTS_PATH", validateEnvPath},
		{"paths.sourceaudio", "BIRDNET_SOURCE_AUDIO_PATH", validateEnvPath},
		{"processing.batchsize", "BIRDNET_BATCH_SIZE", validateEnvPositiveInt},
		{"processing.workers", "BIRDNET_WORKERS", validateEnvPositiveInt},
		{"spectrogram.enabled", "BIRDNET_SPECTROGRAMS", validateEnvBool},
		{"spectrogram.fontpath", "BIRDNET_SPECTROGRAM_FONT", validateEnvPath},
		{"telemetry.sentry.dsn", "SENTRY_DSN", nil},
		{"debug", "BIRDNET_DEBUG", validateEnvBool},
	}
}

// loadDotEnv loads a .env file from the working directory if present.
// Existing environment variables take precedence over the file.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		GetLogger().Warn(fmt.Sprintf("failed to load .env file: %v", err))
	}
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvDatabaseType(value string) error {
	switch value {
	case "sqlite", "mysql":
		return nil
	}
	return fmt.Errorf("must be sqlite or mysql")
}

func validateEnvPath(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("path cannot be blank")
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}
	return nil
}
