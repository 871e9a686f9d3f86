package config

import (
	"fmt"
	"strings"

	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/logging"
)

// Validator is the interface for validating configuration.
type Validator interface {
	Validate() error
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		builder.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks the merged configuration. The returned error carries the
// config_invalid reason code and unwraps to *MultiValidationError.
func (c *Config) Validate() error {
	var errs []ValidationError

	if c.Sampling.Interval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "sampling.interval",
			Message: fmt.Sprintf("must be positive, got %s", c.Sampling.Interval),
		})
	}

	if c.Sampling.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "sampling.duration",
			Message: fmt.Sprintf("must be positive when set, got %s", c.Sampling.Duration),
		})
	}

	if c.Sampling.ShutdownGrace <= 0 {
		errs = append(errs, ValidationError{
			Field:   "sampling.shutdown_grace",
			Message: "must be positive",
		})
	}

	if c.Target.PID < 0 {
		errs = append(errs, ValidationError{
			Field:   "target.pid",
			Message: "must not be negative",
		})
	}

	if c.Telemetry.Enabled {
		if strings.TrimSpace(c.Telemetry.Command) == "" {
			errs = append(errs, ValidationError{
				Field:   "telemetry.command",
				Message: "is required when telemetry is enabled",
			})
		}
		if c.Telemetry.Interval <= 0 {
			errs = append(errs, ValidationError{
				Field:   "telemetry.interval",
				Message: "must be positive",
			})
		}
		if c.Telemetry.MaxRestarts < 0 || c.Telemetry.MaxRestarts > 1 {
			errs = append(errs, ValidationError{
				Field:   "telemetry.max_restarts",
				Message: "must be 0 or 1",
			})
		}
	}

	if c.Logging.Level != "" && !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", c.Logging.Level),
		})
	}

	if c.Output.Dir == "" {
		errs = append(errs, ValidationError{
			Field:   "output.dir",
			Message: "is required",
		})
	}

	if len(errs) > 0 {
		return rerrors.Wrap(rerrors.CodeConfigInvalid, &MultiValidationError{Errors: errs}, "invalid configuration")
	}

	return nil
}

// LoggingConfig converts the logging section for logging.Open.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Pretty = c.Logging.Pretty
	cfg.File = c.Logging.File
	return cfg
}
