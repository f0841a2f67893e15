package adapter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jmylchreest/campwatch/internal/model"
)

// ErrInvalidConfig marks a competitor configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid competitor config")

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

var validate = validator.New()

// Validate checks cfg and returns an error listing every failed field.
func Validate(cfg model.CompetitorConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w %q: %v", ErrInvalidConfig, cfg.Name, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		ve := ValidationError{
			Field:   strings.TrimPrefix(e.Namespace(), "CompetitorConfig."),
			Message: formatValidationError(e),
			Value:   e.Value(),
		}
		msgs = append(msgs, ve.String())
	}
	return fmt.Errorf("%w %q: %s", ErrInvalidConfig, cfg.Name, strings.Join(msgs, "; "))
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gt", "gte", "lte":
		return fmt.Sprintf("must be %s %s", e.Tag(), e.Param())
	case "gtfield":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	case "iso4217":
		return "must be an ISO 4217 currency code"
	case "iso3166_1_alpha2":
		return "must be an ISO 3166 alpha-2 country code"
	case "excludesall":
		return "must not contain spaces or slashes"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// applyDefaults fills optional fields left empty.
func applyDefaults(cfg *model.CompetitorConfig) {
	if cfg.Kind == "" {
		cfg.Kind = model.KindBrowser
	}
	if cfg.DecimalPolicy == "" {
		cfg.DecimalPolicy = model.DecimalAuto
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	cfg.Country = strings.ToUpper(cfg.Country)
}
