// Package client implements the client registry aggregate: a Client (individual
// or company) that exclusively owns a set of Addresses with at most one
// principal address.
package client

import (
	"time"

	"clientregistry/internal/core/id"
)

// Client is the aggregate root.
type Client struct {
	ID     id.ID
	TaxID  string // digits only
	Email  string // trimmed, lower-case
	Active bool

	// Profile holds the kind-specific fields. It is never nil on a stored client.
	Profile Profile

	Addresses []Address

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Kind returns the discriminator of the client's profile.
func (c *Client) Kind() Kind {
	if c.Profile == nil {
		return ""
	}
	return c.Profile.Kind()
}

// DisplayName is the full name of an individual or the legal name of a company.
func (c *Client) DisplayName() string {
	if c.Profile == nil {
		return ""
	}
	return c.Profile.DisplayName()
}

// Profile is the kind-specific part of a Client. Exactly one of Individual or
// Company implements it, so fields of the other kind cannot be carried.
type Profile interface {
	Kind() Kind
	DisplayName() string
	isProfile()
}

// Individual is a natural person.
type Individual struct {
	FullName   string
	IDDocument string // optional, e.g. RG
	BirthDate  *time.Time
}

func (Individual) Kind() Kind { return KindIndividual }
func (p Individual) DisplayName() string { return p.FullName }
func (Individual) isProfile() {}

// Company is a legal entity.
type Company struct {
	LegalName         string
	StateRegistration string // optional
	FoundingDate      *time.Time
}

func (Company) Kind() Kind { return KindCompany }
func (p Company) DisplayName() string { return p.LegalName }
func (Company) isProfile() {}

// Address is a mailing address owned by exactly one Client.
// ClientID is a storage foreign key only.
type Address struct {
	ID         id.ID
	ClientID   id.ID
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	State      string // two upper-case letters
	PostalCode string // 00000-000
	Phone      string
	Principal  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// sameContent compares the user-editable fields.
func (a Address) sameContent(b Address) bool {
	return a.Street == b.Street &&
		a.Number == b.Number &&
		a.Complement == b.Complement &&
		a.District == b.District &&
		a.City == b.City &&
		a.State == b.State &&
		a.PostalCode == b.PostalCode &&
		a.Phone == b.Phone &&
		a.Principal == b.Principal
}

// Input is the submitted form of a client for Create and Update.
// It is flat: FieldReconciler clears whatever does not belong to Kind before
// the Profile variant is built.
type Input struct {
	Kind  Kind
	TaxID string
	Email string

	// Active defaults to true on create and is left unchanged on update when nil.
	Active *bool

	FullName   string
	IDDocument string
	BirthDate  *time.Time

	LegalName         string
	StateRegistration string
	FoundingDate      *time.Time

	// Addresses is the desired address set. On update, nil keeps the stored
	// set while an empty slice removes every address.
	Addresses []AddressInput

	// Version is the expected current version on update; zero skips the check.
	Version int
}

// Profile builds the variant for a reconciled input.
func (in *Input) Profile() Profile {
	if in.Kind == KindCompany {
		return Company{
			LegalName:         in.LegalName,
			StateRegistration: in.StateRegistration,
			FoundingDate:      in.FoundingDate,
		}
	}
	return Individual{
		FullName:   in.FullName,
		IDDocument: in.IDDocument,
		BirthDate:  in.BirthDate,
	}
}

// AddressInput is one element of a desired address set. A zero ID asks for a
// new address; a non-zero ID refers to an existing address of the client.
type AddressInput struct {
	ID         id.ID
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	State      string
	PostalCode string
	Phone      string
	Principal  bool
}

// Snapshot flattens the client for audit diffs and event payloads.
func (c *Client) Snapshot() map[string]any {
	m := map[string]any{
		"id":     c.ID.Int64(),
		"kind":   string(c.Kind()),
		"taxId":  c.TaxID,
		"email":  c.Email,
		"active": c.Active,
	}
	switch p := c.Profile.(type) {
	case Individual:
		m["fullName"] = p.FullName
		m["idDocument"] = p.IDDocument
		m["birthDate"] = formatDate(p.BirthDate)
	case Company:
		m["legalName"] = p.LegalName
		m["stateRegistration"] = p.StateRegistration
		m["foundingDate"] = formatDate(p.FoundingDate)
	}
	addrs := make([]map[string]any, 0, len(c.Addresses))
	for _, a := range c.Addresses {
		addrs = append(addrs, map[string]any{
			"id":         a.ID.Int64(),
			"street":     a.Street,
			"number":     a.Number,
			"complement": a.Complement,
			"district":   a.District,
			"city":       a.City,
			"state":      a.State,
			"postalCode": a.PostalCode,
			"phone":      a.Phone,
			"principal":  a.Principal,
		})
	}
	m["addresses"] = addrs
	return m
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
