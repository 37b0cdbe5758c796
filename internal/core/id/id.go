// Package id provides the numeric identity type used by all persisted entities.
// Values are assigned by the database (identity columns) and never reused.
package id

import (
	"fmt"
	"strconv"
)

// ID is an opaque positive integer identity. Zero means "not assigned yet".
type ID int64

// Parse converts a path or query value to ID.
func Parse(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id %q: %w", s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("parse id %q: must be positive", s)
	}
	return ID(v), nil
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String implements fmt.Stringer.
func (i ID) String() string {
	return strconv.FormatInt(int64(i), 10)
}

// IsZero reports whether the ID has not been assigned.
func (i ID) IsZero() bool {
	return i == 0
}

// Int64 returns the raw value.
func (i ID) Int64() int64 {
	return int64(i)
}

// Ptr returns a pointer to a copy of i.
func Ptr(i ID) *ID {
	return &i
}
