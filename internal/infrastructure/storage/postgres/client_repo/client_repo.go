// Package client_repo is the PostgreSQL storage of the client aggregate.
// Every method runs on the transaction carried by ctx when there is one.
package client_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"clientregistry/internal/core/apperror"
	"clientregistry/internal/core/id"
	"clientregistry/internal/domain"
	"clientregistry/internal/domain/client"
	"clientregistry/internal/infrastructure/storage/postgres"
)

const (
	clientsTable   = "clients"
	addressesTable = "client_addresses"
)

// Generated by the database on insert; never written by the repository.
var generatedCols = []string{"id", "version", "created_at", "updated_at"}

// Repo implements client.Repository.
type Repo struct {
	txm         *postgres.TxManager
	clientCols  []string
	addressCols []string
}

var _ client.Repository = (*Repo)(nil)

// New creates a new client repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:         txm,
		clientCols:  postgres.ExtractDBColumns[clientRow](),
		addressCols: postgres.ExtractDBColumns[addressRow](),
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) querier(ctx context.Context) postgres.Querier {
	return r.txm.GetQuerier(ctx)
}

func (r *Repo) selectClients() squirrel.SelectBuilder {
	return r.Builder().Select(r.clientCols...).From(clientsTable)
}

func (r *Repo) selectAddresses() squirrel.SelectBuilder {
	return r.Builder().Select(r.addressCols...).From(addressesTable).OrderBy("id ASC")
}

// uniqueViolation maps the unique constraints of the clients schema.
func uniqueViolation(c *client.Client) postgres.UniqueViolationMapper {
	return func(pgErr *pgconn.PgError) *apperror.AppError {
		switch pgErr.ConstraintName {
		case postgres.ConstraintClientsTaxID:
			return apperror.NewDuplicateTaxID(c.TaxID)
		case postgres.ConstraintClientsEmail:
			return apperror.NewDuplicateEmail(c.Email)
		case postgres.ConstraintAddressPrincipal:
			return apperror.NewConflict("client already has a principal address")
		}
		return nil
	}
}

func principalViolation(pgErr *pgconn.PgError) *apperror.AppError {
	if pgErr.ConstraintName == postgres.ConstraintAddressPrincipal {
		return apperror.NewConflict("client already has a principal address")
	}
	return nil
}

// --- Clients ---

// GetByID loads a client with its addresses.
func (r *Repo) GetByID(ctx context.Context, clientID id.ID) (*client.Client, error) {
	return r.get(ctx, r.selectClients().Where(squirrel.Eq{"id": clientID.Int64()}), clientID.Int64())
}

// GetForUpdate loads a client and locks its row until the transaction ends.
func (r *Repo) GetForUpdate(ctx context.Context, clientID id.ID) (*client.Client, error) {
	if r.txm.GetTx(ctx) == nil {
		return nil, fmt.Errorf("get client for update requires transaction context")
	}
	q := r.selectClients().Where(squirrel.Eq{"id": clientID.Int64()}).Suffix("FOR UPDATE")
	return r.get(ctx, q, clientID.Int64())
}

// FindByTaxID loads a client by its digits-only tax id.
func (r *Repo) FindByTaxID(ctx context.Context, taxID string) (*client.Client, error) {
	return r.get(ctx, r.selectClients().Where(squirrel.Eq{"tax_id": taxID}), taxID)
}

func (r *Repo) get(ctx context.Context, q squirrel.SelectBuilder, key any) (*client.Client, error) {
	sql, args, err := q.Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row clientRow
	if err := pgxscan.Get(ctx, r.querier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("client", key)
		}
		return nil, postgres.MapError(err, "get client", nil)
	}

	c := row.toDomain()
	if c.Addresses, err = r.ListAddresses(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// FindOwnerByTaxID returns the ID of the client holding taxID.
func (r *Repo) FindOwnerByTaxID(ctx context.Context, taxID string) (id.ID, error) {
	return r.findOwner(ctx, squirrel.Eq{"tax_id": taxID}, "taxId", taxID)
}

// FindOwnerByEmail returns the ID of the client holding email, compared
// case-insensitively.
func (r *Repo) FindOwnerByEmail(ctx context.Context, email string) (id.ID, error) {
	return r.findOwner(ctx, squirrel.Expr("lower(email) = lower(?)", email), "email", email)
}

func (r *Repo) findOwner(ctx context.Context, cond squirrel.Sqlizer, field, value string) (id.ID, error) {
	sql, args, err := r.Builder().Select("id").From(clientsTable).Where(cond).Limit(1).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var owner int64
	if err := r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NewNotFound("client", value).WithDetail("field", field)
		}
		return 0, postgres.MapError(err, "find client owner", nil)
	}
	return id.ID(owner), nil
}

// Insert stores the client row and assigns the generated columns.
func (r *Repo) Insert(ctx context.Context, c *client.Client) error {
	row := toClientRow(c)
	sql, args, err := r.Builder().
		Insert(clientsTable).
		SetMap(postgres.StructToMap(row, generatedCols...)).
		Suffix("RETURNING id, version, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	var clientID int64
	err = r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&clientID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return postgres.MapError(err, "insert client", uniqueViolation(c))
	}
	c.ID = id.ID(clientID)
	return nil
}

// Update stores the client row with optimistic locking on version.
func (r *Repo) Update(ctx context.Context, c *client.Client) error {
	row := toClientRow(c)
	sql, args, err := r.Builder().
		Update(clientsTable).
		SetMap(postgres.StructToMap(row, generatedCols...)).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": row.ID}).
		Where(squirrel.Eq{"version": row.Version}).
		Suffix("RETURNING version, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	err = r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&c.Version, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NewConcurrentModification("client", row.ID)
		}
		return postgres.MapError(err, "update client", uniqueViolation(c))
	}
	return nil
}

// Delete removes the client row. Remaining addresses cascade.
func (r *Repo) Delete(ctx context.Context, clientID id.ID) error {
	sql, args, err := r.Builder().Delete(clientsTable).Where(squirrel.Eq{"id": clientID.Int64()}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "delete client", nil)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("client", clientID.Int64())
	}
	return nil
}

// List returns one page of clients with their addresses.
func (r *Repo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*client.Client], error) {
	result := domain.ListResult[*client.Client]{
		Items:  []*client.Client{},
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := applyListFilter(r.selectClients(), filter)

	countSQL, countArgs, err := r.Builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	querier := r.querier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, postgres.MapError(err, "count clients", nil)
	}

	orderBy, err := parseOrderBy(filter.OrderBy)
	if err != nil {
		return result, err
	}
	q = q.OrderBy(orderBy)
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	var rows []clientRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return result, postgres.MapError(err, "list clients", nil)
	}
	if len(rows) == 0 {
		return result, nil
	}

	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	byClient, err := r.addressesOf(ctx, ids)
	if err != nil {
		return result, err
	}
	for _, row := range rows {
		c := row.toDomain()
		c.Addresses = byClient[row.ID]
		result.Items = append(result.Items, c)
	}
	return result, nil
}

func applyListFilter(q squirrel.SelectBuilder, filter domain.ListFilter) squirrel.SelectBuilder {
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"full_name": pattern},
			squirrel.ILike{"legal_name": pattern},
			squirrel.ILike{"tax_id": pattern},
			squirrel.ILike{"email": pattern},
		})
	}
	if filter.Kind != "" {
		q = q.Where(squirrel.Eq{"kind": filter.Kind})
	}
	if filter.Active != nil {
		q = q.Where(squirrel.Eq{"active": *filter.Active})
	}
	return q
}

// Sortable columns; display_name sorts individuals and companies together.
var orderColumns = map[string]string{
	"id":           "id",
	"kind":         "kind",
	"tax_id":       "tax_id",
	"email":        "email",
	"active":       "active",
	"display_name": "COALESCE(full_name, legal_name)",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
}

// parseOrderBy accepts "field", "+field" or "-field" (descending).
func parseOrderBy(orderBy string) (string, error) {
	if orderBy == "" {
		return "id ASC", nil
	}

	direction := "ASC"
	field := orderBy
	if strings.HasPrefix(orderBy, "-") {
		direction = "DESC"
		field = strings.TrimPrefix(orderBy, "-")
	} else if strings.HasPrefix(orderBy, "+") {
		field = strings.TrimPrefix(orderBy, "+")
	}

	expr, ok := orderColumns[strings.TrimSpace(field)]
	if !ok {
		return "", apperror.NewFieldValidation("orderBy", "invalid", "invalid orderBy").
			WithDetail("orderBy", orderBy)
	}
	if expr == "id" {
		return "id " + direction, nil
	}
	return expr + " " + direction + ", id ASC", nil
}

// ReportRows projects every matching client with its principal address.
func (r *Repo) ReportRows(ctx context.Context, filter client.ReportFilter) ([]client.ReportRow, error) {
	sql, args, err := reportQuery(r.Builder(), filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build report query: %w", err)
	}

	var rows []reportRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return nil, postgres.MapError(err, "report clients", nil)
	}

	out := make([]client.ReportRow, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func reportQuery(b squirrel.StatementBuilderType, filter client.ReportFilter) squirrel.SelectBuilder {
	q := b.Select(
		"c.id",
		"c.kind",
		"c.tax_id",
		"COALESCE(c.full_name, c.legal_name, '') AS display_name",
		"c.email",
		"COALESCE(a.phone, '') AS phone",
		"COALESCE(a.postal_code, '') AS postal_code",
		"c.active",
	).
		From(clientsTable + " c").
		LeftJoin(addressesTable + " a ON a.client_id = c.id AND a.principal").
		OrderBy("display_name ASC", "c.id ASC")

	if filter.Kind != "" {
		q = q.Where(squirrel.Eq{"c.kind": string(filter.Kind)})
	}
	if filter.Active != nil {
		q = q.Where(squirrel.Eq{"c.active": *filter.Active})
	}
	if filter.Name != "" {
		q = q.Where(squirrel.ILike{"COALESCE(c.full_name, c.legal_name)": "%" + filter.Name + "%"})
	}
	return q
}

// --- Addresses ---

// ListAddresses returns the client's addresses ordered by ID.
func (r *Repo) ListAddresses(ctx context.Context, clientID id.ID) ([]client.Address, error) {
	byClient, err := r.addressesOf(ctx, []int64{clientID.Int64()})
	if err != nil {
		return nil, err
	}
	return byClient[clientID.Int64()], nil
}

func (r *Repo) addressesOf(ctx context.Context, clientIDs []int64) (map[int64][]client.Address, error) {
	sql, args, err := r.selectAddresses().Where(squirrel.Eq{"client_id": clientIDs}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []addressRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return nil, postgres.MapError(err, "list addresses", nil)
	}

	out := make(map[int64][]client.Address, len(clientIDs))
	for _, row := range rows {
		out[row.ClientID] = append(out[row.ClientID], row.toDomain())
	}
	return out, nil
}

// InsertAddress stores a new address and assigns its ID and timestamps.
func (r *Repo) InsertAddress(ctx context.Context, a *client.Address) error {
	row := toAddressRow(a)
	sql, args, err := r.Builder().
		Insert(addressesTable).
		SetMap(postgres.StructToMap(row, "id", "created_at", "updated_at")).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	var addressID int64
	if err := r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&addressID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return postgres.MapError(err, "insert address", principalViolation)
	}
	a.ID = id.ID(addressID)
	return nil
}

// UpdateAddress stores the editable fields of an address of a.ClientID.
func (r *Repo) UpdateAddress(ctx context.Context, a *client.Address) error {
	row := toAddressRow(a)
	sql, args, err := r.Builder().
		Update(addressesTable).
		SetMap(postgres.StructToMap(row, "id", "client_id", "created_at", "updated_at")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": row.ID, "client_id": row.ClientID}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if err := r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.NewNotFound("address", row.ID)
		}
		return postgres.MapError(err, "update address", principalViolation)
	}
	return nil
}

// DeleteAddress removes one address of the client.
func (r *Repo) DeleteAddress(ctx context.Context, clientID, addressID id.ID) error {
	sql, args, err := r.Builder().
		Delete(addressesTable).
		Where(squirrel.Eq{"id": addressID.Int64(), "client_id": clientID.Int64()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "delete address", nil)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("address", addressID.Int64())
	}
	return nil
}

// DeleteAddresses removes every address of the client.
func (r *Repo) DeleteAddresses(ctx context.Context, clientID id.ID) error {
	sql, args, err := r.Builder().Delete(addressesTable).Where(squirrel.Eq{"client_id": clientID.Int64()}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "delete addresses", nil)
	}
	return nil
}

// SetPrincipal demotes the current principal and promotes addressID. The
// partial unique index is checked per statement, so the demotion runs first.
func (r *Repo) SetPrincipal(ctx context.Context, clientID, addressID id.ID) error {
	querier := r.querier(ctx)

	demote, args, err := r.Builder().
		Update(addressesTable).
		Set("principal", false).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"client_id": clientID.Int64(), "principal": true}).
		Where(squirrel.NotEq{"id": addressID.Int64()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build demote: %w", err)
	}
	if _, err := querier.Exec(ctx, demote, args...); err != nil {
		return postgres.MapError(err, "demote principal", nil)
	}

	promote, args, err := r.Builder().
		Update(addressesTable).
		Set("principal", true).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": addressID.Int64(), "client_id": clientID.Int64()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build promote: %w", err)
	}
	result, err := querier.Exec(ctx, promote, args...)
	if err != nil {
		return postgres.MapError(err, "promote address", principalViolation)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("address", addressID.Int64())
	}
	return nil
}
