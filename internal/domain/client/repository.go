package client

import (
	"context"

	"clientregistry/internal/core/id"
	"clientregistry/internal/domain"
)

// Repository is the storage collaborator of the aggregate. Every method runs
// in the transaction carried by ctx, if any.
type Repository interface {
	OwnerLookup

	// GetByID loads a client with its addresses ordered by ID.
	GetByID(ctx context.Context, clientID id.ID) (*Client, error)

	// GetForUpdate is GetByID with a row lock on the client, serializing every
	// mutation of the aggregate.
	GetForUpdate(ctx context.Context, clientID id.ID) (*Client, error)

	// FindByTaxID loads a client by its digits-only tax id.
	FindByTaxID(ctx context.Context, taxID string) (*Client, error)

	// Insert stores a new client row and assigns ID, Version and timestamps.
	Insert(ctx context.Context, c *Client) error

	// Update stores the client row if its version still equals c.Version and
	// then increments c.Version.
	Update(ctx context.Context, c *Client) error

	// Delete removes the client row.
	Delete(ctx context.Context, clientID id.ID) error

	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Client], error)

	// ReportRows projects clients with their principal address.
	ReportRows(ctx context.Context, filter ReportFilter) ([]ReportRow, error)

	// --- Addresses ---

	ListAddresses(ctx context.Context, clientID id.ID) ([]Address, error)
	InsertAddress(ctx context.Context, a *Address) error
	UpdateAddress(ctx context.Context, a *Address) error
	DeleteAddress(ctx context.Context, clientID, addressID id.ID) error
	DeleteAddresses(ctx context.Context, clientID id.ID) error

	// SetPrincipal demotes the current principal of the client and promotes
	// addressID.
	SetPrincipal(ctx context.Context, clientID, addressID id.ID) error
}
