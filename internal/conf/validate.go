// conf/validate.go

package conf

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		structValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return structValidator
}

// ValidateSettings validates the entire Settings struct. Field-level rules
// come from validate tags, cross-field rules are checked here.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := getValidator().Struct(settings); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				ve.Errors = append(ve.Errors, describeFieldError(fe))
			}
		} else {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if err := validateDatabaseSettings(&settings.Database); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateSpectrogramSettings(&settings.Spectrogram); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Telemetry.Sentry.Enabled && settings.Telemetry.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry.sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// describeFieldError turns a validator error into "Section.Field: rule" text.
func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Settings.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s (value %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed %s", field, fe.Tag())
}

// validateDatabaseSettings validates the record store settings
func validateDatabaseSettings(settings *DatabaseSettings) error {
	var errs []string

	switch settings.Type {
	case "sqlite":
		if strings.TrimSpace(settings.SQLite.Path) == "" {
			errs = append(errs, "database.sqlite.path is required for the sqlite backend")
		}
	case "mysql":
		if settings.MySQL.Host == "" || settings.MySQL.Database == "" || settings.MySQL.Username == "" {
			errs = append(errs, "database.mysql host, database and username are required for the mysql backend")
		}
		if settings.MySQL.Port <= 0 || settings.MySQL.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.mysql.port %d out of range", settings.MySQL.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("database settings errors: %v", errs)
	}
	return nil
}

// validateSpectrogramSettings validates the rendering parameters
func validateSpectrogramSettings(settings *SpectrogramSettings) error {
	var errs []string

	if settings.NFFT&(settings.NFFT-1) != 0 {
		errs = append(errs, fmt.Sprintf("spectrogram.nfft %d must be a power of two", settings.NFFT))
	}
	if settings.HopLength > settings.NFFT {
		errs = append(errs, fmt.Sprintf("spectrogram.hoplength %d exceeds nfft %d", settings.HopLength, settings.NFFT))
	}
	if settings.NMels > settings.NFFT/2+1 {
		errs = append(errs, fmt.Sprintf("spectrogram.nmels %d exceeds the %d available frequency bins", settings.NMels, settings.NFFT/2+1))
	}

	if len(errs) > 0 {
		return fmt.Errorf("spectrogram settings errors: %v", errs)
	}
	return nil
}
