package dto

import (
	"time"

	"clientregistry/internal/core/id"
	"clientregistry/internal/domain/client"
)

// AddressRequest is one address of a client request, or the body of the
// address sub-resource. A zero ID asks for a new address.
type AddressRequest struct {
	ID         id.ID  `json:"id" binding:"min=0"`
	Street     string `json:"street" binding:"max=200"`
	Number     string `json:"number" binding:"max=40"`
	Complement string `json:"complement" binding:"max=200"`
	District   string `json:"district" binding:"max=200"`
	City       string `json:"city" binding:"max=200"`
	State      string `json:"state" binding:"omitempty,uf"`
	PostalCode string `json:"postalCode" binding:"omitempty,cep"`
	Phone      string `json:"phone" binding:"max=40"`
	Principal  bool   `json:"principal"`
}

// ToInput converts DTO to the domain input.
func (r *AddressRequest) ToInput() client.AddressInput {
	return client.AddressInput{
		ID:         r.ID,
		Street:     r.Street,
		Number:     r.Number,
		Complement: r.Complement,
		District:   r.District,
		City:       r.City,
		State:      r.State,
		PostalCode: r.PostalCode,
		Phone:      r.Phone,
		Principal:  r.Principal,
	}
}

// AddressResponse is the response body for an address.
type AddressResponse struct {
	ID         id.ID     `json:"id"`
	Street     string    `json:"street"`
	Number     string    `json:"number"`
	Complement string    `json:"complement,omitempty"`
	District   string    `json:"district"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postalCode"`
	Phone      string    `json:"phone,omitempty"`
	Principal  bool      `json:"principal"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// FromAddress converts a domain address to DTO.
func FromAddress(a client.Address) AddressResponse {
	return AddressResponse{
		ID:         a.ID,
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		District:   a.District,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Phone:      a.Phone,
		Principal:  a.Principal,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// FromAddresses never returns nil so the JSON field is always an array.
func FromAddresses(addrs []client.Address) []AddressResponse {
	out := make([]AddressResponse, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, FromAddress(a))
	}
	return out
}
