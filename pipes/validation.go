package pipes

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/imdat99/bun-di-sub000"
)

// ValidationPipe validates struct arguments against their `validate` tags.
// Non-struct values pass through unchanged.
type ValidationPipe struct {
	validate *validator.Validate
	kinds    []bundi.ParamKind
}

// ValidationOption configures a ValidationPipe.
type ValidationOption func(*ValidationPipe)

// WithValidator uses v instead of a fresh validator.
func WithValidator(v *validator.Validate) ValidationOption {
	return func(p *ValidationPipe) {
		p.validate = v
	}
}

// ForKinds restricts validation to arguments of the given kinds.
func ForKinds(kinds ...bundi.ParamKind) ValidationOption {
	return func(p *ValidationPipe) {
		p.kinds = kinds
	}
}

// NewValidationPipe creates a validation pipe. Error messages name fields
// by their json tag.
func NewValidationPipe(opts ...ValidationOption) *ValidationPipe {
	p := &ValidationPipe{}
	for _, opt := range opts {
		opt(p)
	}
	if p.validate == nil {
		p.validate = validator.New(validator.WithRequiredStructEnabled())
		p.validate.RegisterTagNameFunc(jsonName)
	}
	return p
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

// Transform implements bundi.Pipe.
func (p *ValidationPipe) Transform(value any, meta bundi.ArgumentMetadata) (any, error) {
	if len(p.kinds) > 0 && !containsKind(p.kinds, meta.Type) {
		return value, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			if rv.Type().Elem().Kind() == reflect.Struct {
				return nil, badRequest([]string{"request body is required"})
			}
			return value, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return value, nil
	}

	err := p.validate.Struct(value)
	if err == nil {
		return value, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, message(fe))
	}
	return nil, badRequest(messages).WithCause(err)
}

func containsKind(kinds []bundi.ParamKind, k bundi.ParamKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func badRequest(messages []string) *bundi.HTTPException {
	return bundi.NewBadRequestException(map[string]any{
		"statusCode": http.StatusBadRequest,
		"message":    messages,
		"error":      http.StatusText(http.StatusBadRequest),
	})
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be an email"
	case "uuid", "uuid4":
		return field + " must be a UUID"
	case "url":
		return field + " must be a URL"
	case "min", "gte":
		if isLength(fe.Kind()) {
			return fmt.Sprintf("%s must be longer than or equal to %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must not be less than %s", field, fe.Param())
	case "max", "lte":
		if isLength(fe.Kind()) {
			return fmt.Sprintf("%s must be shorter than or equal to %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must not be greater than %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must have length %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of the following values: %s", field, strings.Join(strings.Fields(fe.Param()), ", "))
	}
	return fmt.Sprintf("%s failed on the '%s' rule", field, fe.Tag())
}

func isLength(k reflect.Kind) bool {
	switch k {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return true
	}
	return false
}
