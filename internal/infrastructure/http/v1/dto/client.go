package dto

import (
	"time"

	"clientregistry/internal/core/id"
	"clientregistry/internal/domain/client"
	"clientregistry/pkg/taxid"
)

// --- Request DTOs ---

// ClientRequest is the request body for creating or replacing a client.
// Fields of the other kind are accepted and discarded.
type ClientRequest struct {
	Kind   string `json:"kind" binding:"required,kind"`
	TaxID  string `json:"taxId" binding:"required,taxid"`
	Email  string `json:"email" binding:"required,email,max=254"`
	Active *bool  `json:"active"`

	FullName   string `json:"fullName" binding:"max=200"`
	IDDocument string `json:"idDocument" binding:"max=40"`
	BirthDate  *Date  `json:"birthDate"`

	LegalName         string `json:"legalName" binding:"max=200"`
	StateRegistration string `json:"stateRegistration" binding:"max=40"`
	FoundingDate      *Date  `json:"foundingDate"`

	// Addresses absent (or null) keeps the stored set on update.
	Addresses []AddressRequest `json:"addresses" binding:"omitempty,dive"`

	Version int `json:"version" binding:"min=0"`
}

// ToInput converts DTO to the domain input.
func (r *ClientRequest) ToInput() client.Input {
	in := client.Input{
		Kind:              client.Kind(r.Kind),
		TaxID:             r.TaxID,
		Email:             r.Email,
		Active:            r.Active,
		FullName:          r.FullName,
		IDDocument:        r.IDDocument,
		BirthDate:         r.BirthDate.Ptr(),
		LegalName:         r.LegalName,
		StateRegistration: r.StateRegistration,
		FoundingDate:      r.FoundingDate.Ptr(),
		Version:           r.Version,
	}
	if kind, err := client.ParseKind(r.Kind); err == nil {
		in.Kind = kind
	}
	if r.Addresses != nil {
		in.Addresses = make([]client.AddressInput, 0, len(r.Addresses))
		for i := range r.Addresses {
			in.Addresses = append(in.Addresses, r.Addresses[i].ToInput())
		}
	}
	return in
}

// SetActiveRequest toggles the activation flag.
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// --- Response DTOs ---

// ClientResponse is the response body for a client.
type ClientResponse struct {
	ID             id.ID  `json:"id"`
	Kind           string `json:"kind"`
	TaxID          string `json:"taxId"`
	TaxIDFormatted string `json:"taxIdFormatted"`
	DisplayName    string `json:"displayName"`
	Email          string `json:"email,omitempty"`
	Active         bool   `json:"active"`

	FullName   string `json:"fullName,omitempty"`
	IDDocument string `json:"idDocument,omitempty"`
	BirthDate  *Date  `json:"birthDate,omitempty"`

	LegalName         string `json:"legalName,omitempty"`
	StateRegistration string `json:"stateRegistration,omitempty"`
	FoundingDate      *Date  `json:"foundingDate,omitempty"`

	Addresses []AddressResponse `json:"addresses"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromClient converts a domain client to DTO.
func FromClient(c *client.Client) ClientResponse {
	resp := ClientResponse{
		ID:             c.ID,
		Kind:           string(c.Kind()),
		TaxID:          c.TaxID,
		TaxIDFormatted: taxid.Format(c.TaxID),
		DisplayName:    c.DisplayName(),
		Email:          c.Email,
		Active:         c.Active,
		Addresses:      FromAddresses(c.Addresses),
		Version:        c.Version,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}

	switch p := c.Profile.(type) {
	case client.Individual:
		resp.FullName = p.FullName
		resp.IDDocument = p.IDDocument
		resp.BirthDate = DateOf(p.BirthDate)
	case client.Company:
		resp.LegalName = p.LegalName
		resp.StateRegistration = p.StateRegistration
		resp.FoundingDate = DateOf(p.FoundingDate)
	}
	return resp
}
