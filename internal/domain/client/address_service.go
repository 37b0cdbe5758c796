package client

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"clientregistry/internal/core/apperror"
	"clientregistry/internal/core/id"
	"clientregistry/internal/domain"
)

// ListAddresses returns the addresses of a client ordered by ID.
func (s *Service) ListAddresses(ctx context.Context, clientID id.ID) ([]Address, error) {
	c, err := s.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return c.Addresses, nil
}

// AddAddress attaches one address to a client. The first address of a client
// always becomes principal; a principal input demotes the current one.
func (s *Service) AddAddress(ctx context.Context, clientID id.ID, in AddressInput) (_ *Address, err error) {
	ctx, span := tracer.Start(ctx, "client.AddAddress", trace.WithAttributes(attribute.Int64("client.id", clientID.Int64())))
	defer func() { finishSpan(span, err) }()

	in.ID = 0
	addr, err := NormalizeAddress(in, "")
	if err != nil {
		return nil, err
	}

	var c *Client
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.lock(ctx, clientID)
		if err != nil {
			return err
		}
		c = locked
		before := c.Snapshot()

		addr.ClientID = clientID
		promote := addr.Principal
		_, hasPrincipal := principalOf(c.Addresses)
		switch {
		case !hasPrincipal:
			addr.Principal = true
			promote = false
		case promote:
			addr.Principal = false
		}

		if err := s.repo.InsertAddress(ctx, &addr); err != nil {
			return fmt.Errorf("insert address: %w", err)
		}
		if promote {
			if err := s.repo.SetPrincipal(ctx, clientID, addr.ID); err != nil {
				return fmt.Errorf("set principal address: %w", err)
			}
			addr.Principal = true
		}

		return s.commitAddressChange(ctx, c, ActionAddressCreate, before)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, domain.AfterUpdate, c)
	return &addr, nil
}

// UpdateAddress replaces the fields of one address. Marking it principal
// promotes it; unmarking the current principal is refused. An update that
// changes nothing writes nothing.
func (s *Service) UpdateAddress(ctx context.Context, clientID, addressID id.ID, in AddressInput) (_ *Address, err error) {
	ctx, span := tracer.Start(ctx, "client.UpdateAddress", trace.WithAttributes(
		attribute.Int64("client.id", clientID.Int64()),
		attribute.Int64("address.id", addressID.Int64()),
	))
	defer func() { finishSpan(span, err) }()

	in.ID = addressID
	addr, err := NormalizeAddress(in, "")
	if err != nil {
		return nil, err
	}

	var (
		c       *Client
		changed bool
	)
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.lock(ctx, clientID)
		if err != nil {
			return err
		}
		c = locked
		current, ok := findAddress(c.Addresses, addressID)
		if !ok {
			return addressNotFound(clientID, addressID)
		}
		if current.Principal && !addr.Principal {
			return apperror.NewOperationNotAllowed("cannot unset the principal address; promote another address instead").
				WithDetail("addressId", addressID.Int64())
		}
		before := c.Snapshot()

		addr.ClientID = clientID
		addr.CreatedAt = current.CreatedAt
		promote := addr.Principal && !current.Principal
		if promote {
			addr.Principal = false
		}

		contentChanged := !addr.sameContent(current)
		if !contentChanged && !promote {
			addr = current
			return nil
		}
		if contentChanged {
			if err := s.repo.UpdateAddress(ctx, &addr); err != nil {
				return fmt.Errorf("update address %d: %w", addressID, err)
			}
		}
		if promote {
			if err := s.repo.SetPrincipal(ctx, clientID, addressID); err != nil {
				return fmt.Errorf("set principal address: %w", err)
			}
			addr.Principal = true
		}

		changed = true
		return s.commitAddressChange(ctx, c, ActionAddressUpdate, before)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.afterCommit(ctx, domain.AfterUpdate, c)
	}
	return &addr, nil
}

// DeleteAddress removes one non-principal address.
func (s *Service) DeleteAddress(ctx context.Context, clientID, addressID id.ID) (err error) {
	ctx, span := tracer.Start(ctx, "client.DeleteAddress", trace.WithAttributes(
		attribute.Int64("client.id", clientID.Int64()),
		attribute.Int64("address.id", addressID.Int64()),
	))
	defer func() { finishSpan(span, err) }()

	var c *Client
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.lock(ctx, clientID)
		if err != nil {
			return err
		}
		c = locked
		current, ok := findAddress(c.Addresses, addressID)
		if !ok {
			return addressNotFound(clientID, addressID)
		}
		if err := checkDeletable(current); err != nil {
			return err
		}
		before := c.Snapshot()

		if err := s.repo.DeleteAddress(ctx, clientID, addressID); err != nil {
			return fmt.Errorf("delete address %d: %w", addressID, err)
		}

		return s.commitAddressChange(ctx, c, ActionAddressDelete, before)
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, domain.AfterUpdate, c)
	return nil
}

// commitAddressChange reloads the address set, bumps the client version and
// records the change.
func (s *Service) commitAddressChange(ctx context.Context, c *Client, action string, before map[string]any) error {
	addrs, err := s.repo.ListAddresses(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("list addresses: %w", err)
	}
	c.Addresses = addrs

	if err := s.repo.Update(ctx, c); err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return s.record(ctx, c.ID, action, EventAddressesChanged, before, c.Snapshot())
}
