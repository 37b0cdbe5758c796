package client

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"clientregistry/internal/core/apperror"
	"clientregistry/internal/core/id"
	"clientregistry/internal/domain"
)

// memRepo is an in-memory Repository. It enforces the same constraints as the
// database schema: unique tax id, unique lower(email) and one principal
// address per client, checked after every write.
type memRepo struct {
	mu sync.Mutex

	nextClientID  id.ID
	nextAddressID id.ID
	clients       map[id.ID]Client
	addresses     map[id.ID]Address

	// failOn makes the named method return errStorage.
	failOn string
	calls  []string
}

var errStorage = errors.New("storage unavailable")

func newMemRepo() *memRepo {
	return &memRepo{
		clients:   make(map[id.ID]Client),
		addresses: make(map[id.ID]Address),
	}
}

type memState struct {
	nextClientID  id.ID
	nextAddressID id.ID
	clients       map[id.ID]Client
	addresses     map[id.ID]Address
}

func (r *memRepo) snapshot() memState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := memState{
		nextClientID:  r.nextClientID,
		nextAddressID: r.nextAddressID,
		clients:       make(map[id.ID]Client, len(r.clients)),
		addresses:     make(map[id.ID]Address, len(r.addresses)),
	}
	for k, v := range r.clients {
		s.clients[k] = v
	}
	for k, v := range r.addresses {
		s.addresses[k] = v
	}
	return s
}

func (r *memRepo) restore(s memState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextClientID = s.nextClientID
	r.nextAddressID = s.nextAddressID
	r.clients = s.clients
	r.addresses = s.addresses
}

func (r *memRepo) enter(method string) error {
	r.calls = append(r.calls, method)
	if r.failOn == method {
		return errStorage
	}
	return nil
}

func (r *memRepo) FindOwnerByTaxID(ctx context.Context, taxID string) (id.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("FindOwnerByTaxID"); err != nil {
		return 0, err
	}
	for _, c := range r.clients {
		if c.TaxID == taxID {
			return c.ID, nil
		}
	}
	return 0, apperror.NewNotFound("client", taxID)
}

func (r *memRepo) FindOwnerByEmail(ctx context.Context, email string) (id.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("FindOwnerByEmail"); err != nil {
		return 0, err
	}
	// Exact match: the service is responsible for lower-casing.
	for _, c := range r.clients {
		if c.Email == email {
			return c.ID, nil
		}
	}
	return 0, apperror.NewNotFound("client", email)
}

func (r *memRepo) load(clientID id.ID) (*Client, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return nil, apperror.NewNotFound("client", clientID.Int64())
	}
	c.Addresses = r.addressesOf(clientID)
	return &c, nil
}

func (r *memRepo) addressesOf(clientID id.ID) []Address {
	out := []Address{}
	for _, a := range r.addresses {
		if a.ClientID == clientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) GetByID(ctx context.Context, clientID id.ID) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("GetByID"); err != nil {
		return nil, err
	}
	return r.load(clientID)
}

func (r *memRepo) GetForUpdate(ctx context.Context, clientID id.ID) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("GetForUpdate"); err != nil {
		return nil, err
	}
	return r.load(clientID)
}

func (r *memRepo) FindByTaxID(ctx context.Context, taxID string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.TaxID == taxID {
			return r.load(c.ID)
		}
	}
	return nil, apperror.NewNotFound("client", taxID)
}

func (r *memRepo) checkClientConstraints(c *Client) error {
	for _, other := range r.clients {
		if other.ID == c.ID {
			continue
		}
		if other.TaxID == c.TaxID {
			return apperror.NewDuplicateTaxID(c.TaxID)
		}
		if strings.EqualFold(other.Email, c.Email) {
			return apperror.NewDuplicateEmail(c.Email)
		}
	}
	return nil
}

func (r *memRepo) Insert(ctx context.Context, c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("Insert"); err != nil {
		return err
	}
	if err := r.checkClientConstraints(c); err != nil {
		return err
	}
	r.nextClientID++
	c.ID = r.nextClientID
	c.Version = 1
	row := *c
	row.Addresses = nil
	r.clients[c.ID] = row
	return nil
}

func (r *memRepo) Update(ctx context.Context, c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("Update"); err != nil {
		return err
	}
	stored, ok := r.clients[c.ID]
	if !ok {
		return apperror.NewNotFound("client", c.ID.Int64())
	}
	if stored.Version != c.Version {
		return apperror.NewConcurrentModification("client", c.ID.Int64())
	}
	if err := r.checkClientConstraints(c); err != nil {
		return err
	}
	c.Version++
	row := *c
	row.Addresses = nil
	r.clients[c.ID] = row
	return nil
}

func (r *memRepo) Delete(ctx context.Context, clientID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("Delete"); err != nil {
		return err
	}
	delete(r.clients, clientID)
	for k, a := range r.addresses {
		if a.ClientID == clientID {
			delete(r.addresses, k)
		}
	}
	return nil
}

func (r *memRepo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Client], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*Client
	for _, c := range r.clients {
		if filter.Kind != "" && string(c.Kind()) != filter.Kind {
			continue
		}
		loaded, _ := r.load(c.ID)
		items = append(items, loaded)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.ListResult[*Client]{Items: items, TotalCount: int64(len(items)), Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (r *memRepo) ReportRows(ctx context.Context, filter ReportFilter) ([]ReportRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []ReportRow
	for _, c := range r.clients {
		if filter.Kind != "" && c.Kind() != filter.Kind {
			continue
		}
		if filter.Active != nil && c.Active != *filter.Active {
			continue
		}
		if filter.Name != "" && !strings.Contains(strings.ToLower(c.DisplayName()), strings.ToLower(filter.Name)) {
			continue
		}
		loaded, _ := r.load(c.ID)
		rows = append(rows, ProjectRow(loaded))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DisplayName != rows[j].DisplayName {
			return rows[i].DisplayName < rows[j].DisplayName
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}

func (r *memRepo) ListAddresses(ctx context.Context, clientID id.ID) ([]Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addressesOf(clientID), nil
}

func (r *memRepo) checkPrincipal(a *Address) error {
	if !a.Principal {
		return nil
	}
	for _, other := range r.addresses {
		if other.ClientID == a.ClientID && other.ID != a.ID && other.Principal {
			return errors.New(`duplicate key value violates unique constraint "ux_client_addresses_principal"`)
		}
	}
	return nil
}

func (r *memRepo) InsertAddress(ctx context.Context, a *Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("InsertAddress"); err != nil {
		return err
	}
	if _, ok := r.clients[a.ClientID]; !ok {
		return errors.New("foreign key violation")
	}
	if err := r.checkPrincipal(a); err != nil {
		return err
	}
	r.nextAddressID++
	a.ID = r.nextAddressID
	r.addresses[a.ID] = *a
	return nil
}

func (r *memRepo) UpdateAddress(ctx context.Context, a *Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("UpdateAddress"); err != nil {
		return err
	}
	stored, ok := r.addresses[a.ID]
	if !ok || stored.ClientID != a.ClientID {
		return apperror.NewNotFound("address", a.ID.Int64())
	}
	if err := r.checkPrincipal(a); err != nil {
		return err
	}
	r.addresses[a.ID] = *a
	return nil
}

func (r *memRepo) DeleteAddress(ctx context.Context, clientID, addressID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("DeleteAddress"); err != nil {
		return err
	}
	stored, ok := r.addresses[addressID]
	if !ok || stored.ClientID != clientID {
		return apperror.NewNotFound("address", addressID.Int64())
	}
	delete(r.addresses, addressID)
	return nil
}

func (r *memRepo) DeleteAddresses(ctx context.Context, clientID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("DeleteAddresses"); err != nil {
		return err
	}
	for k, a := range r.addresses {
		if a.ClientID == clientID {
			delete(r.addresses, k)
		}
	}
	return nil
}

func (r *memRepo) SetPrincipal(ctx context.Context, clientID, addressID id.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("SetPrincipal"); err != nil {
		return err
	}
	for k, a := range r.addresses {
		if a.ClientID == clientID {
			a.Principal = k == addressID
			r.addresses[k] = a
		}
	}
	return nil
}

// memTxManager rolls the repository and the recorder back to their state at
// the start of the outermost transaction when fn fails.
type memTxManager struct {
	repo  *memRepo
	rec   *recorder
	depth int

	commits   int
	rollbacks int
}

func (m *memTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.depth > 0 {
		return fn(ctx)
	}
	m.depth++
	defer func() { m.depth-- }()

	snap := m.repo.snapshot()
	var nEvents, nChanges int
	if m.rec != nil {
		nEvents, nChanges = len(m.rec.events), len(m.rec.changes)
	}
	if err := fn(ctx); err != nil {
		m.repo.restore(snap)
		if m.rec != nil {
			m.rec.events = m.rec.events[:nEvents]
			m.rec.changes = m.rec.changes[:nChanges]
		}
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

// readOnlyTxManager counts read-only snapshots on top of memTxManager.
type readOnlyTxManager struct {
	*memTxManager
	reads int
}

func (m *readOnlyTxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	m.reads++
	return fn(ctx)
}

type recordedChange struct {
	ClientID id.ID
	Action   string
	Before   map[string]any
	After    map[string]any
}

// recorder implements both EventPublisher and Auditor.
type recorder struct {
	events  []Event
	changes []recordedChange
}

func (r *recorder) Publish(ctx context.Context, event Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) RecordChange(ctx context.Context, clientID id.ID, action string, before, after map[string]any) error {
	r.changes = append(r.changes, recordedChange{ClientID: clientID, Action: action, Before: before, After: after})
	return nil
}

func (r *recorder) eventTypes() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
