package client

import (
	"errors"

	"clientregistry/internal/core/apperror"
	"clientregistry/pkg/taxid"
)

// ValidateTaxID checks raw against the identifier algorithm of kind and returns
// the digits-only form. Failures are validation errors on field taxId whose
// reason is "shape" or "checksum"; the underlying *taxid.Error stays in the
// chain.
func ValidateTaxID(raw string, kind Kind) (string, error) {
	var (
		digits string
		err    error
	)
	switch kind {
	case KindIndividual:
		digits, err = taxid.ValidateCPF(raw)
	case KindCompany:
		digits, err = taxid.ValidateCNPJ(raw)
	default:
		return "", apperror.NewFieldValidation("kind", "invalid", "kind must be INDIVIDUAL or COMPANY")
	}
	if err == nil {
		return digits, nil
	}

	reason := string(taxid.ReasonShape)
	var tidErr *taxid.Error
	if errors.As(err, &tidErr) {
		reason = string(tidErr.Reason)
	}
	return "", apperror.NewFieldValidation("taxId", reason, err.Error()).WithCause(err)
}
