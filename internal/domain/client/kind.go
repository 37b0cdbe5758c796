package client

import (
	"strings"

	"clientregistry/internal/core/apperror"
)

// Kind selects the Individual or Company variant of a Client.
type Kind string

const (
	KindIndividual Kind = "INDIVIDUAL"
	KindCompany    Kind = "COMPANY"
)

// ParseKind accepts the kind in any letter case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		if s == "" {
			return "", missingField("kind")
		}
		return "", apperror.NewFieldValidation("kind", "invalid", "kind must be INDIVIDUAL or COMPANY").
			WithDetail("value", s)
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindIndividual || k == KindCompany
}

func (k Kind) String() string {
	return string(k)
}
