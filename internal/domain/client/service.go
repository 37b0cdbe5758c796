package client

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"clientregistry/internal/core/apperror"
	"clientregistry/internal/core/id"
	"clientregistry/internal/core/tx"
	"clientregistry/internal/domain"
	"clientregistry/pkg/logger"
	"clientregistry/pkg/taxid"
)

var tracer = otel.Tracer("clientregistry/client")

// Service is the consistency engine of the client aggregate. Every mutation
// runs in one transaction: the client row is locked, fields are reconciled,
// the tax id is validated, uniqueness is checked, the address plan is applied
// and the audit entry and outbox event are written before commit.
type Service struct {
	repo   Repository
	txm    tx.Manager
	guard  *UniquenessGuard
	events EventPublisher
	audit  Auditor
	hooks  *domain.HookRegistry[*Client]
}

// ServiceConfig configures the client service.
type ServiceConfig struct {
	Repo      Repository
	TxManager tx.Manager
	Events    EventPublisher // optional
	Auditor   Auditor        // optional
}

// NewService creates a new client service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repo,
		txm:    cfg.TxManager,
		guard:  NewUniquenessGuard(cfg.Repo),
		events: cfg.Events,
		audit:  cfg.Auditor,
		hooks:  domain.NewHookRegistry[*Client](),
	}
}

// Hooks returns the registry of after-commit hooks.
func (s *Service) Hooks() *domain.HookRegistry[*Client] {
	return s.hooks
}

// Create registers a new client with its initial address set.
func (s *Service) Create(ctx context.Context, in Input) (_ *Client, err error) {
	ctx, span := tracer.Start(ctx, "client.Create")
	defer func() { finishSpan(span, err) }()

	if err := ReconcileFields(&in); err != nil {
		return nil, err
	}
	taxID, err := ValidateTaxID(in.TaxID, in.Kind)
	if err != nil {
		return nil, err
	}
	in.TaxID = taxID

	var created *Client
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.guard.CheckUnique(ctx, in.TaxID, in.Email, 0); err != nil {
			return err
		}
		// A conflict takes precedence over invalid addresses.
		plan, err := ReconcileAddresses(0, nil, in.Addresses)
		if err != nil {
			return err
		}

		c := &Client{
			TaxID:   in.TaxID,
			Email:   in.Email,
			Active:  true,
			Profile: in.Profile(),
		}
		if in.Active != nil {
			c.Active = *in.Active
		}
		if err := s.repo.Insert(ctx, c); err != nil {
			return fmt.Errorf("insert client: %w", err)
		}

		if err := s.applyPlan(ctx, c.ID, &plan); err != nil {
			return err
		}
		c.Addresses = plan.Final

		if err := s.record(ctx, c.ID, ActionCreate, EventCreated, nil, c.Snapshot()); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("client.id", created.ID.Int64()))
	s.afterCommit(ctx, domain.AfterCreate, created)
	return created, nil
}

// Update replaces the client's fields and, when in.Addresses is not nil, its
// address set.
func (s *Service) Update(ctx context.Context, clientID id.ID, in Input) (_ *Client, err error) {
	ctx, span := tracer.Start(ctx, "client.Update", trace.WithAttributes(attribute.Int64("client.id", clientID.Int64())))
	defer func() { finishSpan(span, err) }()

	var updated *Client
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.lock(ctx, clientID)
		if err != nil {
			return err
		}
		if in.Version != 0 && in.Version != c.Version {
			return apperror.NewConcurrentModification("client", clientID.Int64()).
				WithDetail("expectedVersion", in.Version).
				WithDetail("currentVersion", c.Version)
		}
		before := c.Snapshot()

		if err := ReconcileFields(&in); err != nil {
			return err
		}
		taxID, err := ValidateTaxID(in.TaxID, in.Kind)
		if err != nil {
			return err
		}
		in.TaxID = taxID

		if err := s.guard.CheckUnique(ctx, in.TaxID, in.Email, clientID); err != nil {
			return err
		}

		if in.Addresses != nil {
			plan, err := ReconcileAddresses(clientID, c.Addresses, in.Addresses)
			if err != nil {
				return err
			}
			if err := s.applyPlan(ctx, clientID, &plan); err != nil {
				return err
			}
			c.Addresses = plan.Final
		}

		c.TaxID = in.TaxID
		c.Email = in.Email
		c.Profile = in.Profile()
		if in.Active != nil {
			c.Active = *in.Active
		}
		if err := s.repo.Update(ctx, c); err != nil {
			return fmt.Errorf("update client: %w", err)
		}

		if err := s.record(ctx, clientID, ActionUpdate, EventUpdated, before, c.Snapshot()); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, domain.AfterUpdate, updated)
	return updated, nil
}

// Delete removes the client and every address it owns.
func (s *Service) Delete(ctx context.Context, clientID id.ID) (err error) {
	ctx, span := tracer.Start(ctx, "client.Delete", trace.WithAttributes(attribute.Int64("client.id", clientID.Int64())))
	defer func() { finishSpan(span, err) }()

	var deleted *Client
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.lock(ctx, clientID)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteAddresses(ctx, clientID); err != nil {
			return fmt.Errorf("delete addresses: %w", err)
		}
		if err := s.repo.Delete(ctx, clientID); err != nil {
			return fmt.Errorf("delete client: %w", err)
		}
		if err := s.record(ctx, clientID, ActionDelete, EventDeleted, c.Snapshot(), nil); err != nil {
			return err
		}
		deleted = c
		return nil
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, domain.AfterDelete, deleted)
	return nil
}

// SetActive flips the activation flag. Setting the current value is a no-op.
func (s *Service) SetActive(ctx context.Context, clientID id.ID, active bool) (_ *Client, err error) {
	ctx, span := tracer.Start(ctx, "client.SetActive", trace.WithAttributes(
		attribute.Int64("client.id", clientID.Int64()),
		attribute.Bool("client.active", active),
	))
	defer func() { finishSpan(span, err) }()

	var (
		result  *Client
		changed bool
	)
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.lock(ctx, clientID)
		if err != nil {
			return err
		}
		result = c
		if c.Active == active {
			return nil
		}

		before := c.Snapshot()
		c.Active = active
		if err := s.repo.Update(ctx, c); err != nil {
			return fmt.Errorf("update client: %w", err)
		}

		action := ActionDeactivate
		if active {
			action = ActionActivate
		}
		changed = true
		return s.record(ctx, clientID, action, EventActivationChanged, before, c.Snapshot())
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.afterCommit(ctx, domain.AfterUpdate, result)
	}
	return result, nil
}

// PromoteAddress makes addressID the principal address of the client and
// demotes the previous one in the same transaction.
func (s *Service) PromoteAddress(ctx context.Context, clientID, addressID id.ID) (_ *Client, err error) {
	ctx, span := tracer.Start(ctx, "client.PromoteAddress", trace.WithAttributes(
		attribute.Int64("client.id", clientID.Int64()),
		attribute.Int64("address.id", addressID.Int64()),
	))
	defer func() { finishSpan(span, err) }()

	var (
		result  *Client
		changed bool
	)
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.lock(ctx, clientID)
		if err != nil {
			return err
		}
		result = c

		target, ok := findAddress(c.Addresses, addressID)
		if !ok {
			return addressNotFound(clientID, addressID)
		}
		if target.Principal {
			return nil
		}

		before := c.Snapshot()
		if err := s.repo.SetPrincipal(ctx, clientID, addressID); err != nil {
			return fmt.Errorf("set principal address: %w", err)
		}
		for i := range c.Addresses {
			c.Addresses[i].Principal = c.Addresses[i].ID == addressID
		}
		if err := s.repo.Update(ctx, c); err != nil {
			return fmt.Errorf("update client: %w", err)
		}

		changed = true
		return s.record(ctx, clientID, ActionPromote, EventAddressPromoted, before, c.Snapshot())
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.afterCommit(ctx, domain.AfterUpdate, result)
	}
	return result, nil
}

// --- Queries ---

// Get returns the client with its addresses.
func (s *Service) Get(ctx context.Context, clientID id.ID) (*Client, error) {
	var c *Client
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.GetByID(ctx, clientID)
		return err
	})
	if err != nil {
		return nil, normalizeGetErr(err, clientID)
	}
	return c, nil
}

// FindByTaxID looks a client up by tax id in any punctuation.
func (s *Service) FindByTaxID(ctx context.Context, raw string) (*Client, error) {
	digits := taxid.Digits(raw)
	if digits == "" {
		return nil, apperror.NewFieldValidation("taxId", string(taxid.ReasonShape), "tax id must contain digits")
	}
	var c *Client
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.FindByTaxID(ctx, digits)
		return err
	})
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("client", digits)
		}
		return nil, err
	}
	return c, nil
}

// List returns a page of clients.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Client], error) {
	filter = filter.Normalize()
	if filter.Kind != "" {
		kind, err := ParseKind(filter.Kind)
		if err != nil {
			return domain.ListResult[*Client]{}, err
		}
		filter.Kind = string(kind)
	}

	var result domain.ListResult[*Client]
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.repo.List(ctx, filter)
		return err
	})
	return result, err
}

// Report returns the report projection of every client matching filter.
func (s *Service) Report(ctx context.Context, filter ReportFilter) ([]ReportRow, error) {
	if filter.Kind != "" {
		kind, err := ParseKind(string(filter.Kind))
		if err != nil {
			return nil, err
		}
		filter.Kind = kind
	}
	filter.Name = strings.TrimSpace(filter.Name)
	return s.repo.ReportRows(ctx, filter)
}

// --- internals ---

// read runs fn in a read-only snapshot when the manager supports one, so the
// client row and its addresses (or a page and its count) are consistent.
func (s *Service) read(ctx context.Context, fn func(ctx context.Context) error) error {
	if ro, ok := s.txm.(tx.ReadOnlyManager); ok {
		return ro.ReadOnly(ctx, fn)
	}
	return fn(ctx)
}

func (s *Service) lock(ctx context.Context, clientID id.ID) (*Client, error) {
	c, err := s.repo.GetForUpdate(ctx, clientID)
	if err != nil {
		return nil, normalizeGetErr(err, clientID)
	}
	return c, nil
}

// applyPlan writes the plan in an order that keeps at most one principal row
// after every statement: deletes, then updates (demotions first), then creates.
// Final receives the assigned IDs.
func (s *Service) applyPlan(ctx context.Context, clientID id.ID, plan *Plan) error {
	for _, a := range plan.ToDelete {
		if err := s.repo.DeleteAddress(ctx, clientID, a.ID); err != nil {
			return fmt.Errorf("delete address %d: %w", a.ID, err)
		}
	}

	index := make(map[id.ID]int, len(plan.Final))
	for i := range plan.Final {
		plan.Final[i].ClientID = clientID
		if !plan.Final[i].ID.IsZero() {
			index[plan.Final[i].ID] = i
		}
	}

	for _, a := range plan.ToUpdate() {
		if err := s.repo.UpdateAddress(ctx, &plan.Final[index[a.ID]]); err != nil {
			return fmt.Errorf("update address %d: %w", a.ID, err)
		}
	}

	for i := range plan.Final {
		if !plan.Final[i].ID.IsZero() {
			continue
		}
		if err := s.repo.InsertAddress(ctx, &plan.Final[i]); err != nil {
			return fmt.Errorf("insert address: %w", err)
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, clientID id.ID, action, eventType string, before, after map[string]any) error {
	if s.audit != nil {
		if err := s.audit.RecordChange(ctx, clientID, action, before, after); err != nil {
			return fmt.Errorf("record audit: %w", err)
		}
	}
	if s.events != nil {
		payload := after
		if payload == nil {
			payload = map[string]any{"id": clientID.Int64()}
		}
		if err := s.events.Publish(ctx, Event{Type: eventType, ClientID: clientID, Payload: payload}); err != nil {
			return fmt.Errorf("publish %s: %w", eventType, err)
		}
	}
	return nil
}

// afterCommit runs hooks once the data is durable. Failures are logged only.
func (s *Service) afterCommit(ctx context.Context, event domain.HookEvent, c *Client) {
	if err := s.hooks.Run(ctx, event, c); err != nil {
		logger.Warn(ctx, "after-commit hook failed",
			"event", string(event),
			"client_id", c.ID.Int64(),
			"error", err,
		)
	}
}

func normalizeGetErr(err error, clientID id.ID) error {
	if apperror.IsNotFound(err) {
		return apperror.NewNotFound("client", clientID.Int64())
	}
	return err
}

func addressNotFound(clientID, addressID id.ID) error {
	return apperror.NewNotFound("address", addressID.Int64()).
		WithDetail("clientId", clientID.Int64())
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if !apperror.IsAppError(err) || apperror.GetHTTPStatus(err) >= 500 {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
