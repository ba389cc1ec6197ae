package validator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

var global *validator.Validate

const (
	ErrFieldRequired      = "field is required"
	ErrFieldExceedsMaxLen = "field exceeds maximum length"
	ErrFieldBelowMinLen   = "field is below minimum length"
	ErrFieldExceedsMaxVal = "field exceeds maximum value"
	ErrFieldBelowMinVal   = "field is below minimum value"
	ErrInvalidReason      = "reason must be at least 10 characters"
	ErrInvalidRole        = "unknown role"
	ErrUnknownValidation  = "invalid value"
)

// MinReasonLength mirrors the rule the service enforces on free-text
// reasons.
const MinReasonLength = 10

func init() {
	global = New()
}

// New returns a validator with the project's custom tags registered.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("reason", validateReason)
	_ = v.RegisterValidation("role", validateRole)
	return v
}

func validateReason(fl validator.FieldLevel) bool {
	return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= MinReasonLength
}

func validateRole(fl validator.FieldLevel) bool {
	return model.Role(fl.Field().String()).Valid()
}

// FieldError names the first failing field of a request.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

// Validate checks s against its struct tags and returns the first
// failure as a *FieldError.
func Validate(ctx context.Context, s any) error {
	return parseValidationErrors(global.StructCtx(ctx, s))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	var vErrors validator.ValidationErrors
	if !errors.As(err, &vErrors) || len(vErrors) == 0 {
		return err
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "required":
		msg = ErrFieldRequired
	case "max":
		msg = ErrFieldExceedsMaxLen
	case "min":
		msg = ErrFieldBelowMinLen
	case "lt", "lte":
		msg = ErrFieldExceedsMaxVal
	case "gt", "gte":
		msg = ErrFieldBelowMinVal
	case "reason":
		msg = ErrInvalidReason
	case "role":
		msg = ErrInvalidRole
	default:
		msg = ErrUnknownValidation
	}
	field := ve.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	return &FieldError{Field: field, Message: msg}
}
