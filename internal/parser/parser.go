package parser

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"dockbench/pkg/benchmark"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterStructValidation(imageConfigStructLevel, benchmark.ImageConfig{})
}

// imageConfigStructLevel requires a real TCP port for every engine except
// the file-backed sqlite.
func imageConfigStructLevel(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(benchmark.ImageConfig)
	if strings.EqualFold(cfg.DBType, "sqlite") || strings.EqualFold(cfg.DBType, "sqlite3") {
		return
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		sl.ReportError(cfg.Port, "Port", "port", "tcpport", "")
	}
}

// ParseImageConfig reads and validates an image configuration in JSON or YAML.
func ParseImageConfig(filePath string) (*benchmark.ImageConfig, error) {
	data, err := readFile(filePath, "image configuration")
	if err != nil {
		return nil, err
	}

	var cfg benchmark.ImageConfig
	if err := benchmark.Decode(data, benchmark.FormatFromPath(filePath), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse image configuration - malformed document: %w", err)
	}

	if err := ValidateImageConfig(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseScenario reads and validates a scenario in JSON or YAML.
func ParseScenario(filePath string) (*benchmark.Scenario, error) {
	data, err := readFile(filePath, "scenario")
	if err != nil {
		return nil, err
	}

	s, err := benchmark.UnmarshalScenario(data, benchmark.FormatFromPath(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario - malformed document: %w", err)
	}

	if err := ValidateScenario(s); err != nil {
		return nil, err
	}
	return &s, nil
}

func readFile(filePath, kind string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s file not found: %s", kind, filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", kind, err)
	}
	return data, nil
}

// ValidateImageConfig checks field constraints of an image configuration.
func ValidateImageConfig(cfg benchmark.ImageConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateScenario checks the scenario and every step, including steps that
// are not included so an edited scenario fails early.
func ValidateScenario(s benchmark.Scenario) error {
	if err := validate.StructExcept(s, "Steps"); err != nil {
		return formatValidationError(err)
	}

	var problems []string
	for i, step := range s.Steps {
		if err := step.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("step %d: %v", i+1, err))
			continue
		}
		if err := validate.Struct(step.Payload()); err != nil {
			problems = append(problems, fmt.Sprintf("step %d: %v", i+1, formatValidationError(err)))
		}
	}

	switch len(problems) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("validation error: %s", problems[0])
	default:
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(problems, "\n  - "))
	}
}

// ValidateRunMode checks the connection mode.
func ValidateRunMode(m benchmark.RunMode) error {
	if err := validate.Struct(m); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, formatFieldError(e))
		}

		if len(errorMessages) == 1 {
			return fmt.Errorf("validation error: %s", errorMessages[0])
		}

		result := "validation errors:\n"
		for _, msg := range errorMessages {
			result += fmt.Sprintf("  - %s\n", msg)
		}
		return fmt.Errorf("%s", result)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatFieldError formats a single validation error into a user-friendly message.
func formatFieldError(e validator.FieldError) string {
	field := e.Field()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("field '%s' is required but missing", field)
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
	case "min":
		return fmt.Sprintf("field '%s' needs at least %s entries", field, e.Param())
	case "gte", "lte":
		return fmt.Sprintf("field '%s' is out of range (%s %s)", field, tag, e.Param())
	case "tcpport":
		return fmt.Sprintf("field '%s' must be a TCP port between 1 and 65535", field)
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", field, tag)
	}
}
