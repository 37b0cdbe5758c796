package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientregistry/internal/core/apperror"
	"clientregistry/internal/core/id"
	"clientregistry/internal/domain"
)

type fixture struct {
	repo *memRepo
	txm  *memTxManager
	rec  *recorder
	svc  *Service
}

func newFixture() *fixture {
	repo := newMemRepo()
	rec := &recorder{}
	txm := &memTxManager{repo: repo, rec: rec}
	svc := NewService(ServiceConfig{
		Repo:      repo,
		TxManager: txm,
		Events:    rec,
		Auditor:   rec,
	})
	return &fixture{repo: repo, txm: txm, rec: rec, svc: svc}
}

func ana() Input {
	return Input{
		Kind:     KindIndividual,
		TaxID:    "11144477735",
		Email:    "a@x.com",
		FullName: "Ana",
	}
}

func acme() Input {
	return Input{
		Kind:      KindCompany,
		TaxID:     "11.222.333/0001-81",
		Email:     "contato@acme.com.br",
		LegalName: "Acme SA",
	}
}

func TestCreate_FirstAddressBecomesPrincipal(t *testing.T) {
	f := newFixture()
	in := ana()
	in.Addresses = []AddressInput{addrInput("Rua A", false), addrInput("Rua B", false)}

	c, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, c.ID.IsZero())
	assert.True(t, c.Active)
	assert.Equal(t, KindIndividual, c.Kind())
	require.Len(t, c.Addresses, 2)
	assert.True(t, c.Addresses[0].Principal)
	assert.False(t, c.Addresses[1].Principal)
	for _, a := range c.Addresses {
		assert.Equal(t, c.ID, a.ClientID)
		assert.False(t, a.ID.IsZero())
	}

	stored, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, principals(stored.Addresses))

	assert.Equal(t, []string{EventCreated}, f.rec.eventTypes())
	require.Len(t, f.rec.changes, 1)
	assert.Equal(t, ActionCreate, f.rec.changes[0].Action)
	assert.Nil(t, f.rec.changes[0].Before)
}

func TestCreate_IndividualDropsLegalName(t *testing.T) {
	f := newFixture()
	in := ana()
	in.LegalName = "Ana Comercio LTDA"

	c, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)

	stored, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	_, isCompany := stored.Profile.(Company)
	assert.False(t, isCompany)
	assert.NotContains(t, stored.Snapshot(), "legalName")
}

func TestCreate_DuplicateTaxID(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, ana())
	require.NoError(t, err)

	b := ana()
	b.Email = "b@x.com"
	b.TaxID = "111.444.777-35"
	_, err = f.svc.Create(ctx, b)

	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicateTaxID))
	assert.Len(t, f.repo.clients, 1)
	assert.Equal(t, 1, f.txm.rollbacks)
}

func TestCreate_ValidationFailsBeforeStorage(t *testing.T) {
	f := newFixture()

	in := ana()
	in.TaxID = "11144477734"
	_, err := f.svc.Create(context.Background(), in)
	assert.True(t, apperror.IsValidation(err))

	assert.Empty(t, f.repo.calls)

	in = ana()
	in.Addresses = []AddressInput{{Street: "Rua A"}}
	_, err = f.svc.Create(context.Background(), in)
	assert.True(t, apperror.IsValidation(err))
	assert.NotContains(t, f.repo.calls, "Insert")
	assert.Empty(t, f.repo.clients)
}

func TestCreate_ConflictWinsOverInvalidAddress(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, ana())
	require.NoError(t, err)

	dup := ana()
	dup.Email = "b@x.com"
	bad := addrInput("Rua A", true)
	bad.PostalCode = "123"
	dup.Addresses = []AddressInput{bad}
	_, err = f.svc.Create(ctx, dup)

	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicateTaxID))
	assert.Len(t, f.repo.clients, 1)
}

func TestCreate_EmailConflictIgnoresCase(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := ana()
	first.Email = "  A@X.COM "
	c, err := f.svc.Create(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", c.Email)

	second := acme()
	second.Email = "a@x.com"
	_, err = f.svc.Create(ctx, second)
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicateEmail))

	second.Email = "A@x.Com"
	_, err = f.svc.Create(ctx, second)
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicateEmail))
	assert.Len(t, f.repo.clients, 1)
}

func TestCreate_StorageFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.repo.failOn = "InsertAddress"

	in := ana()
	in.Addresses = []AddressInput{addrInput("Rua A", true)}
	_, err := f.svc.Create(context.Background(), in)

	assert.True(t, errors.Is(err, errStorage))
	assert.Empty(t, f.repo.clients)
	assert.Empty(t, f.rec.events)
}

func TestUpdate_DuplicateEmailLeavesStateUnchanged(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.Create(ctx, ana())
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, acme())
	require.NoError(t, err)

	change := ana()
	change.Email = "CONTATO@acme.com.br"
	change.FullName = "Ana Maria"
	_, err = f.svc.Update(ctx, a.ID, change)

	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicateEmail))

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", stored.Email)
	assert.Equal(t, "Ana", stored.DisplayName())
	assert.Equal(t, 1, stored.Version)
}

func TestUpdate_KeepsOwnTaxIDAndEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.Create(ctx, ana())
	require.NoError(t, err)

	change := ana()
	change.FullName = "Ana Maria"
	active := false
	change.Active = &active

	updated, err := f.svc.Update(ctx, a.ID, change)
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.DisplayName())
	assert.False(t, updated.Active)
	assert.Equal(t, 2, updated.Version)
}

func TestUpdate_SwitchesKind(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.Create(ctx, ana())
	require.NoError(t, err)

	change := acme()
	change.Email = "a@x.com"
	change.FullName = "Ana"
	change.IDDocument = "1234567"
	updated, err := f.svc.Update(ctx, a.ID, change)
	require.NoError(t, err)

	assert.Equal(t, KindCompany, updated.Kind())
	assert.Equal(t, "11222333000181", updated.TaxID)

	stored, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	company, ok := stored.Profile.(Company)
	require.True(t, ok, "profile is %T", stored.Profile)
	assert.Equal(t, "Acme SA", company.LegalName)
	assert.Equal(t, "Acme SA", stored.DisplayName())

	snap := stored.Snapshot()
	assert.NotContains(t, snap, "fullName")
	assert.NotContains(t, snap, "idDocument")
}

func TestUpdate_DroppingPrincipalPromotesFirstSurvivor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := ana()
	in.Addresses = []AddressInput{addrInput("Rua A", true), addrInput("Rua B", false), addrInput("Rua C", false)}
	c, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	a, b, cc := c.Addresses[0], c.Addresses[1], c.Addresses[2]
	require.True(t, a.Principal)

	keepC := addrInput("Rua C", false)
	keepC.ID = cc.ID
	keepB := addrInput("Rua B", false)
	keepB.ID = b.ID

	change := ana()
	change.Addresses = []AddressInput{keepC, keepB}
	updated, err := f.svc.Update(ctx, c.ID, change)
	require.NoError(t, err)
	assertSinglePrincipal(t, updated.Addresses)

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, stored.Addresses, 2)
	principal, ok := PrincipalAddress(stored)
	require.True(t, ok)
	assert.Equal(t, cc.ID, principal.ID)
	assertSinglePrincipal(t, stored.Addresses)
	_, stillThere := f.repo.addresses[a.ID]
	assert.False(t, stillThere)
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Update(context.Background(), 42, ana())
	assert.True(t, apperror.IsNotFound(err))
}

func TestUpdate_VersionMismatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, err := f.svc.Create(ctx, ana())
	require.NoError(t, err)

	change := ana()
	change.Version = 5
	_, err = f.svc.Update(ctx, a.ID, change)
	assert.True(t, apperror.IsConcurrentModification(err))
}

func TestUpdate_ReconcilesAddressSet(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := ana()
	in.Addresses = []AddressInput{addrInput("Rua A", true), addrInput("Rua B", false), addrInput("Rua C", false)}
	c, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	a, b := c.Addresses[0], c.Addresses[1]

	keepB := addrInput("Rua B", true)
	keepB.ID = b.ID
	keepA := addrInput("Rua A (fundos)", false)
	keepA.ID = a.ID

	change := ana()
	change.Addresses = []AddressInput{keepB, addrInput("Rua D", false), keepA}
	updated, err := f.svc.Update(ctx, c.ID, change)
	require.NoError(t, err)

	require.Len(t, updated.Addresses, 3)
	assert.Equal(t, []bool{true, false, false}, principals(updated.Addresses))
	assert.Equal(t, b.ID, updated.Addresses[0].ID)
	assert.Equal(t, "Rua A (fundos)", updated.Addresses[2].Street)

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, stored.Addresses, 3)
	principal, ok := PrincipalAddress(stored)
	require.True(t, ok)
	assert.Equal(t, b.ID, principal.ID)
	assertSinglePrincipal(t, stored.Addresses)
}

func TestUpdate_NilAddressesKeepsSetEmptyClearsIt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := ana()
	in.Addresses = []AddressInput{addrInput("Rua A", false), addrInput("Rua B", false)}
	c, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	change := ana()
	updated, err := f.svc.Update(ctx, c.ID, change)
	require.NoError(t, err)
	assert.Len(t, updated.Addresses, 2)

	change.Addresses = []AddressInput{}
	updated, err = f.svc.Update(ctx, c.ID, change)
	require.NoError(t, err)
	assert.Empty(t, updated.Addresses)
	assert.Empty(t, f.repo.addresses)
}

func TestUpdate_RejectsAddressOfAnotherClient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := acme()
	in.Addresses = []AddressInput{addrInput("Rua A", false)}
	other, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	mine, err := f.svc.Create(ctx, ana())
	require.NoError(t, err)

	steal := addrInput("Rua A", false)
	steal.ID = other.Addresses[0].ID
	change := ana()
	change.Addresses = []AddressInput{steal}

	_, err = f.svc.Update(ctx, mine.ID, change)
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, other.ID, f.repo.addresses[steal.ID].ClientID)
}

func TestDelete_RemovesAddresses(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := ana()
	in.Addresses = []AddressInput{addrInput("Rua A", false)}
	c, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, c.ID))
	assert.Empty(t, f.repo.clients)
	assert.Empty(t, f.repo.addresses)
	assert.Contains(t, f.repo.calls, "DeleteAddresses")
	assert.Equal(t, []string{EventCreated, EventDeleted}, f.rec.eventTypes())

	assert.True(t, apperror.IsNotFound(f.svc.Delete(ctx, c.ID)))
}

func TestSetActive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	c, err := f.svc.Create(ctx, ana())
	require.NoError(t, err)

	got, err := f.svc.SetActive(ctx, c.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// Same value again writes nothing.
	_, err = f.svc.SetActive(ctx, c.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{EventCreated, EventActivationChanged}, f.rec.eventTypes())
	assert.Equal(t, ActionDeactivate, f.rec.changes[1].Action)

	_, err = f.svc.SetActive(ctx, 999, true)
	assert.True(t, apperror.IsNotFound(err))
}

func TestPromoteAddress(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := ana()
	in.Addresses = []AddressInput{addrInput("Rua A", false), addrInput("Rua B", false)}
	c, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	second := c.Addresses[1].ID

	got, err := f.svc.PromoteAddress(ctx, c.ID, second)
	require.NoError(t, err)
	p, _ := PrincipalAddress(got)
	assert.Equal(t, second, p.ID)

	stored, _ := f.svc.Get(ctx, c.ID)
	assert.Equal(t, []bool{false, true}, principals(stored.Addresses))

	other, err := f.svc.Create(ctx, acme())
	require.NoError(t, err)
	_, err = f.svc.PromoteAddress(ctx, other.ID, second)
	assert.True(t, apperror.IsNotFound(err), "address of another client")

	_, err = f.svc.PromoteAddress(ctx, 999, second)
	assert.True(t, apperror.IsNotFound(err))
}

func TestDeleteAddress_PrincipalGuard(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := ana()
	in.Addresses = []AddressInput{addrInput("Rua A", false)}
	c, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	sole := c.Addresses[0].ID

	err = f.svc.DeleteAddress(ctx, c.ID, sole)
	assert.True(t, apperror.IsOperationNotAllowed(err))
	assert.Len(t, f.repo.addresses, 1)

	extra, err := f.svc.AddAddress(ctx, c.ID, addrInput("Rua B", false))
	require.NoError(t, err)
	assert.False(t, extra.Principal)

	require.NoError(t, f.svc.DeleteAddress(ctx, c.ID, extra.ID))
	stored, _ := f.svc.Get(ctx, c.ID)
	require.Len(t, stored.Addresses, 1)
	assert.Equal(t, sole, stored.Addresses[0].ID)
	assert.True(t, stored.Addresses[0].Principal)

	assert.True(t, apperror.IsNotFound(f.svc.DeleteAddress(ctx, c.ID, 12345)))
}

func TestAddAddress(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	c, err := f.svc.Create(ctx, ana())
	require.NoError(t, err)

	first, err := f.svc.AddAddress(ctx, c.ID, addrInput("Rua A", false))
	require.NoError(t, err)
	assert.True(t, first.Principal, "first address of a client is principal")

	second, err := f.svc.AddAddress(ctx, c.ID, addrInput("Rua B", true))
	require.NoError(t, err)
	assert.True(t, second.Principal)

	stored, _ := f.svc.Get(ctx, c.ID)
	assertSinglePrincipal(t, stored.Addresses)
	p, _ := PrincipalAddress(stored)
	assert.Equal(t, second.ID, p.ID)
	assert.Equal(t, 3, stored.Version)
}

func TestUpdateAddress(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := ana()
	in.Addresses = []AddressInput{addrInput("Rua A", true), addrInput("Rua B", false)}
	c, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	a, b := c.Addresses[0].ID, c.Addresses[1].ID

	_, err = f.svc.UpdateAddress(ctx, c.ID, a, addrInput("Rua A", false))
	assert.True(t, apperror.IsOperationNotAllowed(err))

	updated, err := f.svc.UpdateAddress(ctx, c.ID, b, addrInput("Rua B 2", true))
	require.NoError(t, err)
	assert.True(t, updated.Principal)
	assert.Equal(t, "Rua B 2", updated.Street)

	stored, _ := f.svc.Get(ctx, c.ID)
	assertSinglePrincipal(t, stored.Addresses)
	p, _ := PrincipalAddress(stored)
	assert.Equal(t, b, p.ID)

	_, err = f.svc.UpdateAddress(ctx, c.ID, 999, addrInput("Rua Z", false))
	assert.True(t, apperror.IsNotFound(err))
}

func TestUpdateAddress_UnchangedWritesNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := ana()
	in.Addresses = []AddressInput{addrInput("Rua A", true), addrInput("Rua B", false)}
	c, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	b := c.Addresses[1]

	hooks := 0
	f.svc.Hooks().OnAfterCommit(func(context.Context, *Client) error {
		hooks++
		return nil
	})
	events, changes := len(f.rec.events), len(f.rec.changes)
	f.repo.calls = nil

	got, err := f.svc.UpdateAddress(ctx, c.ID, b.ID, addrInput("Rua B", false))
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.False(t, got.Principal)

	assert.NotContains(t, f.repo.calls, "UpdateAddress")
	assert.NotContains(t, f.repo.calls, "Update")
	assert.Len(t, f.rec.events, events)
	assert.Len(t, f.rec.changes, changes)
	assert.Zero(t, hooks)

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Version, stored.Version)
}

func TestQueries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := acme()
	in.Addresses = []AddressInput{func() AddressInput {
		a := addrInput("Rua A", true)
		a.Phone = "41 3333-0000"
		return a
	}()}
	company, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, ana())
	require.NoError(t, err)

	found, err := f.svc.FindByTaxID(ctx, "11.222.333/0001-81")
	require.NoError(t, err)
	assert.Equal(t, company.ID, found.ID)

	_, err = f.svc.FindByTaxID(ctx, "39053344705")
	assert.True(t, apperror.IsNotFound(err))
	_, err = f.svc.FindByTaxID(ctx, "abc")
	assert.True(t, apperror.IsValidation(err))

	list, err := f.svc.List(ctx, domain.ListFilter{Kind: "company"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, domain.DefaultLimit, list.Limit)

	rows, err := f.svc.Report(ctx, ReportFilter{Kind: KindCompany})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "41 3333-0000", rows[0].Phone)
	assert.Equal(t, "80010-000", rows[0].PostalCode)
	assert.Equal(t, "Acme SA", rows[0].DisplayName)

	rows, err = f.svc.Report(ctx, ReportFilter{Name: " aCmE "})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, company.ID, rows[0].ID)

	rows, err = f.svc.Report(ctx, ReportFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Acme SA", "Ana"}, []string{rows[0].DisplayName, rows[1].DisplayName})

	_, err = f.svc.Get(ctx, id.ID(999))
	assert.True(t, apperror.IsNotFound(err))
}

func TestQueries_UseReadOnlySnapshot(t *testing.T) {
	repo := newMemRepo()
	txm := &readOnlyTxManager{memTxManager: &memTxManager{repo: repo}}
	svc := NewService(ServiceConfig{Repo: repo, TxManager: txm})
	ctx := context.Background()

	created, err := svc.Create(ctx, ana())
	require.NoError(t, err)
	assert.Zero(t, txm.reads)

	_, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
	_, err = svc.List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	_, err = svc.FindByTaxID(ctx, "111.444.777-35")
	require.NoError(t, err)
	assert.Equal(t, 3, txm.reads)
}

func TestHooksRunAfterCommitOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var seen []id.ID
	f.svc.Hooks().OnAfterCommit(func(ctx context.Context, c *Client) error {
		seen = append(seen, c.ID)
		return errors.New("ignored")
	})

	c, err := f.svc.Create(ctx, ana())
	require.NoError(t, err)

	dup := ana()
	dup.Email = "other@x.com"
	_, err = f.svc.Create(ctx, dup)
	require.Error(t, err)

	assert.Equal(t, []id.ID{c.ID}, seen)
}

func assertSinglePrincipal(t *testing.T, addrs []Address) {
	t.Helper()
	n := 0
	for _, a := range addrs {
		if a.Principal {
			n++
		}
	}
	if len(addrs) == 0 {
		assert.Zero(t, n)
		return
	}
	assert.Equal(t, 1, n)
}
