package client

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"clientregistry/internal/core/apperror"
)

const (
	maxNameLength     = 100
	maxDocumentLength = 20
	maxEmailLength    = 254
)

// fieldCheck applies the same validator rules the HTTP binding uses, so
// service callers that bypass the transport see identical acceptance.
var fieldCheck = validator.New()

// ReconcileFields normalizes in for its declared kind: fields of the other kind
// are cleared and the kind's required fields are checked. It mutates in and
// performs no I/O.
func ReconcileFields(in *Input) error {
	kind, err := ParseKind(string(in.Kind))
	if err != nil {
		return err
	}
	in.Kind = kind

	switch kind {
	case KindIndividual:
		in.LegalName = ""
		in.StateRegistration = ""
		in.FoundingDate = nil

		in.FullName = strings.TrimSpace(in.FullName)
		in.IDDocument = strings.TrimSpace(in.IDDocument)
		if in.FullName == "" {
			return missingField("fullName")
		}
		if err := checkLength("fullName", in.FullName, maxNameLength); err != nil {
			return err
		}
		if err := checkLength("idDocument", in.IDDocument, maxDocumentLength); err != nil {
			return err
		}
		if err := checkNotFuture("birthDate", in.BirthDate); err != nil {
			return err
		}
	case KindCompany:
		in.FullName = ""
		in.IDDocument = ""
		in.BirthDate = nil

		in.LegalName = strings.TrimSpace(in.LegalName)
		in.StateRegistration = strings.TrimSpace(in.StateRegistration)
		if in.LegalName == "" {
			return missingField("legalName")
		}
		if err := checkLength("legalName", in.LegalName, maxNameLength); err != nil {
			return err
		}
		if err := checkLength("stateRegistration", in.StateRegistration, maxDocumentLength); err != nil {
			return err
		}
		if err := checkNotFuture("foundingDate", in.FoundingDate); err != nil {
			return err
		}
	}

	return reconcileEmail(in)
}

func reconcileEmail(in *Input) error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" {
		return missingField("email")
	}
	if len(in.Email) > maxEmailLength || fieldCheck.Var(in.Email, "email") != nil {
		return apperror.NewFieldValidation("email", "format", "invalid email format")
	}
	return nil
}

func missingField(field string) *apperror.AppError {
	return apperror.NewFieldValidation(field, "required", field+" is required")
}

func checkLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return apperror.NewFieldValidation(field, "too_long", fmt.Sprintf("%s must be at most %d characters", field, max)).
			WithDetail("max", max)
	}
	return nil
}

func checkNotFuture(field string, t *time.Time) error {
	if t != nil && t.After(time.Now()) {
		return apperror.NewFieldValidation(field, "future", field+" cannot be in the future")
	}
	return nil
}
