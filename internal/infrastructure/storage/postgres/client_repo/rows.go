package client_repo

import (
	"time"

	"clientregistry/internal/core/id"
	"clientregistry/internal/domain/client"
)

// clientRow mirrors the clients table. Columns of the other kind stay NULL.
type clientRow struct {
	ID                int64      `db:"id"`
	Kind              string     `db:"kind"`
	TaxID             string     `db:"tax_id"`
	Email             string     `db:"email"`
	Active            bool       `db:"active"`
	FullName          *string    `db:"full_name"`
	IDDocument        *string    `db:"id_document"`
	BirthDate         *time.Time `db:"birth_date"`
	LegalName         *string    `db:"legal_name"`
	StateRegistration *string    `db:"state_registration"`
	FoundingDate      *time.Time `db:"founding_date"`
	Version           int        `db:"version"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

func toClientRow(c *client.Client) clientRow {
	row := clientRow{
		ID:        c.ID.Int64(),
		Kind:      string(c.Kind()),
		TaxID:     c.TaxID,
		Email:     c.Email,
		Active:    c.Active,
		Version:   c.Version,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	switch p := c.Profile.(type) {
	case client.Individual:
		row.FullName = nullable(p.FullName)
		row.IDDocument = nullable(p.IDDocument)
		row.BirthDate = p.BirthDate
	case client.Company:
		row.LegalName = nullable(p.LegalName)
		row.StateRegistration = nullable(p.StateRegistration)
		row.FoundingDate = p.FoundingDate
	}
	return row
}

func (r clientRow) toDomain() *client.Client {
	c := &client.Client{
		ID:        id.ID(r.ID),
		TaxID:     r.TaxID,
		Email:     r.Email,
		Active:    r.Active,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if client.Kind(r.Kind) == client.KindCompany {
		c.Profile = client.Company{
			LegalName:         deref(r.LegalName),
			StateRegistration: deref(r.StateRegistration),
			FoundingDate:      r.FoundingDate,
		}
	} else {
		c.Profile = client.Individual{
			FullName:   deref(r.FullName),
			IDDocument: deref(r.IDDocument),
			BirthDate:  r.BirthDate,
		}
	}
	return c
}

type addressRow struct {
	ID         int64     `db:"id"`
	ClientID   int64     `db:"client_id"`
	Street     string    `db:"street"`
	Number     string    `db:"number"`
	Complement *string   `db:"complement"`
	District   string    `db:"district"`
	City       string    `db:"city"`
	State      string    `db:"state"`
	PostalCode string    `db:"postal_code"`
	Phone      *string   `db:"phone"`
	Principal  bool      `db:"principal"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func toAddressRow(a *client.Address) addressRow {
	return addressRow{
		ID:         a.ID.Int64(),
		ClientID:   a.ClientID.Int64(),
		Street:     a.Street,
		Number:     a.Number,
		Complement: nullable(a.Complement),
		District:   a.District,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Phone:      nullable(a.Phone),
		Principal:  a.Principal,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func (r addressRow) toDomain() client.Address {
	return client.Address{
		ID:         id.ID(r.ID),
		ClientID:   id.ID(r.ClientID),
		Street:     r.Street,
		Number:     r.Number,
		Complement: deref(r.Complement),
		District:   r.District,
		City:       r.City,
		State:      r.State,
		PostalCode: r.PostalCode,
		Phone:      deref(r.Phone),
		Principal:  r.Principal,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type reportRow struct {
	ID          int64  `db:"id"`
	Kind        string `db:"kind"`
	TaxID       string `db:"tax_id"`
	DisplayName string `db:"display_name"`
	Email       string `db:"email"`
	Phone       string `db:"phone"`
	PostalCode  string `db:"postal_code"`
	Active      bool   `db:"active"`
}

func (r reportRow) toDomain() client.ReportRow {
	return client.ReportRow{
		ID:          id.ID(r.ID),
		Kind:        client.Kind(r.Kind),
		TaxID:       r.TaxID,
		DisplayName: r.DisplayName,
		Email:       r.Email,
		Phone:       r.Phone,
		PostalCode:  r.PostalCode,
		Active:      r.Active,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
