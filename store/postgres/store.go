// Package postgres implements the composite store on PostgreSQL via the
// Grove ORM. Claiming relies on FOR UPDATE SKIP LOCKED, so every delivery
// row is handed to exactly one worker even with many dispatcher processes
// sharing the database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/storefront-kit/webhooks"
	"github.com/storefront-kit/webhooks/delivery"
	"github.com/storefront-kit/webhooks/endpoint"
	"github.com/storefront-kit/webhooks/id"
	whstore "github.com/storefront-kit/webhooks/store"
)

// compile-time interface check
var _ whstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("webhooks/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("webhooks/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Endpoint Store ====================

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	m := new(endpointModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", epID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, webhooks.ErrEndpointNotFound
		}
		return nil, err
	}
	return fromEndpointModel(m)
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return webhooks.ErrEndpointNotFound
	}
	return nil
}

func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	res, err := s.pg.NewDelete((*endpointModel)(nil)).
		Where("id = $1", epID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return webhooks.ErrEndpointNotFound
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.EventType != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("event_type = $%d", argIdx), opts.EventType)
	}
	if opts.Active != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("active = $%d", argIdx), *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*endpoint.Endpoint, len(models))
	for i := range models {
		ep, err := fromEndpointModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = ep
	}
	return result, nil
}

func (s *Store) Resolve(ctx context.Context, eventType string) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	if err := s.pg.NewSelect(&models).
		Where("event_type = $1", eventType).
		Where("active = true").
		OrderExpr("created_at ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*endpoint.Endpoint, len(models))
	for i := range models {
		ep, err := fromEndpointModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = ep
	}
	return result, nil
}

func (s *Store) SetActive(ctx context.Context, epID id.ID, active bool) error {
	now := time.Now().UTC()
	res, err := s.pg.NewUpdate((*endpointModel)(nil)).
		Set("active = $1", active).
		Set("updated_at = $2", now).
		Where("id = $3", epID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return webhooks.ErrEndpointNotFound
	}
	return nil
}

// ==================== Delivery Store ====================

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	res, err := s.pg.NewInsert(m).
		OnConflict("(idempotency_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return webhooks.ErrDuplicateIdempotencyKey
	}
	return nil
}

// Claim moves due pending rows to processing and counts the attempt in the
// same statement. SKIP LOCKED keeps concurrent dispatchers from ever
// claiming the same row.
func (s *Store) Claim(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	err := s.pg.NewRaw(`
		UPDATE webhook_deliveries
		SET status = 'processing',
		    attempts = attempts + 1,
		    last_attempt_at = NOW(),
		    updated_at = NOW()
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE status = 'pending' AND next_retry_at <= NOW()
			ORDER BY next_retry_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

// Transition writes the outcome only if the row is still in the from state.
func (s *Store) Transition(ctx context.Context, d *delivery.Delivery, from delivery.Status) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Where("status = $1", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return webhooks.ErrStaleDelivery
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", delID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, webhooks.ErrDeliveryNotFound
		}
		return nil, err
	}
	return fromDeliveryModel(m)
}

func (s *Store) GetDeliveryByKey(ctx context.Context, key string) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.pg.NewSelect(m).
		Where("idempotency_key = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, webhooks.ErrDeliveryNotFound
		}
		return nil, err
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListDeliveries(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Status != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(*opts.Status))
	}
	if opts.EventType != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("event_type = $%d", argIdx), opts.EventType)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.pg.NewSelect(&models).Where("endpoint_id = $1", epID.String())

	if opts.Status != nil {
		q = q.Where("status = $2", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.pg.NewSelect(&models).
		Where("status = $1", string(delivery.StatusProcessing)).
		Where("last_attempt_at <= $2", cutoff).
		OrderExpr("last_attempt_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	counts := make(map[delivery.Status]int64)
	for _, st := range []delivery.Status{
		delivery.StatusPending,
		delivery.StatusProcessing,
		delivery.StatusCompleted,
		delivery.StatusFailed,
	} {
		n, err := s.pg.NewSelect((*deliveryModel)(nil)).
			Where("status = $1", string(st)).
			Count(ctx)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			counts[st] = n
		}
	}
	return counts, nil
}

func (s *Store) CountReplays(ctx context.Context, origID id.ID) (int, error) {
	n, err := s.pg.NewSelect((*deliveryModel)(nil)).
		Where("replay_of = $1", origID.String()).
		Count(ctx)
	return int(n), err
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
