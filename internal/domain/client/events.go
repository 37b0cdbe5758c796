package client

import (
	"context"

	"clientregistry/internal/core/id"
)

// Event types published for committed mutations.
const (
	EventCreated           = "client.created"
	EventUpdated           = "client.updated"
	EventDeleted           = "client.deleted"
	EventActivationChanged = "client.activation_changed"
	EventAddressPromoted   = "client.address_promoted"
	EventAddressesChanged  = "client.addresses_changed"
)

// Audit actions.
const (
	ActionCreate        = "create"
	ActionUpdate        = "update"
	ActionDelete        = "delete"
	ActionActivate      = "activate"
	ActionDeactivate    = "deactivate"
	ActionPromote       = "promote"
	ActionAddressCreate = "address_create"
	ActionAddressUpdate = "address_update"
	ActionAddressDelete = "address_delete"
)

// Event is a domain event about one client.
type Event struct {
	Type     string
	ClientID id.ID
	Payload  map[string]any
}

// EventPublisher stores events in the caller's transaction (transactional outbox).
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Auditor records a change of one client in the caller's transaction.
// before is nil on create and after is nil on delete.
type Auditor interface {
	RecordChange(ctx context.Context, clientID id.ID, action string, before, after map[string]any) error
}
