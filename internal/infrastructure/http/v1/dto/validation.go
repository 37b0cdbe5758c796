package dto

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"clientregistry/internal/core/apperror"
	"clientregistry/pkg/taxid"
)

var (
	ufRE  = regexp.MustCompile(`^[A-Za-z]{2}$`)
	cepRE = regexp.MustCompile(`^\d{5}-?\d{3}$`)
	// Digits with the usual CPF/CNPJ punctuation only.
	taxIDShapeRE = regexp.MustCompile(`^[\d.\-/ ]+$`)

	setupOnce sync.Once
	setupErr  error
)

// SetupValidator registers the custom tags on gin's validator and makes error
// field names follow the json/form tags. Safe to call more than once; later
// calls return the first call's result.
func SetupValidator() error {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			setupErr = fmt.Errorf("gin validator engine is %T, want *validator.Validate", binding.Validator.Engine())
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
		setupErr = errors.Join(
			registerTag(v, "kind", validateKind),
			registerTag(v, "taxid", validateTaxIDShape),
			registerTag(v, "uf", regexpValidator(ufRE)),
			registerTag(v, "cep", regexpValidator(cepRE)),
		)
	})
	return setupErr
}

func registerTag(v *validator.Validate, tag string, fn validator.Func) error {
	if err := v.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("register %q validation: %w", tag, err)
	}
	return nil
}

func validateKind(fl validator.FieldLevel) bool {
	switch strings.ToUpper(strings.TrimSpace(fl.Field().String())) {
	case "INDIVIDUAL", "COMPANY":
		return true
	}
	return false
}

// validateTaxIDShape checks the characters and digit count only; check digits
// are verified by the domain against the client kind.
func validateTaxIDShape(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if !taxIDShapeRE.MatchString(s) {
		return false
	}
	n := len(taxid.Digits(s))
	return n == taxid.CPFLength || n == taxid.CNPJLength
}

func regexpValidator(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(strings.TrimSpace(fl.Field().String()))
	}
}

// BindingError converts a gin binding error into an AppError. Validator
// failures become field validation errors naming the first offending field.
func BindingError(err error, message string) *apperror.AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.NewValidation(message).WithDetail("error", err.Error())
	}

	fields := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, map[string]string{
			"field":   fieldPath(fe),
			"reason":  fe.Tag(),
			"message": validationMessage(fe),
		})
	}
	first := fields[0]
	return apperror.NewFieldValidation(first["field"], first["reason"], first["message"]).
		WithDetail("fields", fields)
}

// fieldPath drops the root struct name: "ClientRequest.addresses[0].state"
// becomes "addresses[0].state".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "kind":
		return "kind must be INDIVIDUAL or COMPANY"
	case "email":
		return "email must be a valid address"
	case "taxid":
		return "taxId must contain 11 (CPF) or 14 (CNPJ) digits"
	case "uf":
		return "state must be a two-letter code"
	case "cep":
		return "postalCode must have 8 digits (00000-000)"
	case "min":
		if fe.Kind() == reflect.String {
			return fe.Field() + " must be at least " + fe.Param() + " characters"
		}
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fe.Field() + " must be at most " + fe.Param() + " characters"
		}
		return fe.Field() + " must be at most " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
