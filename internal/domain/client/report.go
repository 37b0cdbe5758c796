package client

import "clientregistry/internal/core/id"

// ReportRow is the flat projection handed to report renderers.
type ReportRow struct {
	ID          id.ID  `json:"id"`
	Kind        Kind   `json:"kind"`
	TaxID       string `json:"taxId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	PostalCode  string `json:"postalCode"`
	Active      bool   `json:"active"`
}

// ReportFilter narrows the rows of a report. Name matches a case-insensitive
// substring of the display name.
type ReportFilter struct {
	Kind   Kind
	Active *bool
	Name   string
}

// PrincipalAddress returns the address used for the phone and postal code
// columns of a report row.
func PrincipalAddress(c *Client) (Address, bool) {
	return principalOf(c.Addresses)
}

// ProjectRow builds the report row of a loaded client.
func ProjectRow(c *Client) ReportRow {
	row := ReportRow{
		ID:          c.ID,
		Kind:        c.Kind(),
		TaxID:       c.TaxID,
		DisplayName: c.DisplayName(),
		Email:       c.Email,
		Active:      c.Active,
	}
	if a, ok := PrincipalAddress(c); ok {
		row.Phone = a.Phone
		row.PostalCode = a.PostalCode
	}
	return row
}
