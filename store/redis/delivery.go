package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/storefront-kit/webhooks"
	"github.com/storefront-kit/webhooks/delivery"
	"github.com/storefront-kit/webhooks/id"
	"github.com/storefront-kit/webhooks/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis.
type deliveryModel struct {
	ID             string          `json:"id"`
	EndpointID     string          `json:"endpoint_id"`
	SourceEventID  string          `json:"source_event_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	EventType      string          `json:"event_type"`
	TargetURL      string          `json:"target_url"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	ResponseStatus int             `json:"response_status"`
	ResponseBody   string          `json:"response_body,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ReplayOf       string          `json:"replay_of,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	m := &deliveryModel{
		ID:             d.ID.String(),
		EndpointID:     d.EndpointID.String(),
		SourceEventID:  d.SourceEventID,
		IdempotencyKey: d.IdempotencyKey,
		EventType:      d.EventType,
		TargetURL:      d.TargetURL,
		Payload:        d.Payload,
		Status:         string(d.Status),
		Attempts:       d.Attempts,
		MaxAttempts:    d.MaxAttempts,
		LastAttemptAt:  d.LastAttemptAt,
		NextRetryAt:    d.NextRetryAt,
		CompletedAt:    d.CompletedAt,
		ResponseStatus: d.ResponseStatus,
		ResponseBody:   d.ResponseBody,
		ErrorMessage:   d.LastError,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if !d.ReplayOf.IsNil() {
		m.ReplayOf = d.ReplayOf.String()
	}
	return m
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	epID, err := id.ParseEndpointID(m.EndpointID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.EndpointID, err)
	}
	d := &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             delID,
		EndpointID:     epID,
		SourceEventID:  m.SourceEventID,
		IdempotencyKey: m.IdempotencyKey,
		EventType:      m.EventType,
		TargetURL:      m.TargetURL,
		Payload:        m.Payload,
		Status:         delivery.Status(m.Status),
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		LastAttemptAt:  m.LastAttemptAt,
		NextRetryAt:    m.NextRetryAt,
		CompletedAt:    m.CompletedAt,
		ResponseStatus: m.ResponseStatus,
		ResponseBody:   m.ResponseBody,
		LastError:      m.ErrorMessage,
	}
	if m.ReplayOf != "" {
		origID, parseErr := id.ParseDeliveryID(m.ReplayOf)
		if parseErr != nil {
			return nil, fmt.Errorf("parse replay_of ID %q: %w", m.ReplayOf, parseErr)
		}
		d.ReplayOf = origID
	}
	return d, nil
}

// claimScript atomically moves due delivery IDs from the pending set to the
// processing set. Each ID leaves one set and enters the other in a single
// Redis execution, so no two claimers ever hold the same delivery.
// KEYS[1] = pending zset, KEYS[2] = processing zset
// ARGV[1] = current unix timestamp (due threshold and claim score)
// ARGV[2] = limit
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    redis.call('ZADD', KEYS[2], ARGV[1], id)
end
return ids
`)

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	key := entityKey(prefixDelivery, m.ID)

	// The unique index claim is the dedup gate.
	ok, err := s.rdb.SetNX(ctx, uniqueDeliveryIdem+m.IdempotencyKey, m.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("webhooks/redis: claim idempotency key: %w", err)
	}
	if !ok {
		return webhooks.ErrDuplicateIdempotencyKey
	}

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("webhooks/redis: enqueue delivery: %w", err)
	}

	due := m.CreatedAt
	if m.NextRetryAt != nil {
		due = *m.NextRetryAt
	}

	pipe := s.rdb.Pipeline()
	switch delivery.Status(m.Status) {
	case delivery.StatusPending:
		pipe.ZAdd(ctx, zPending, goredis.Z{Score: scoreFromTime(due), Member: m.ID})
	case delivery.StatusProcessing:
		claimedAt := m.UpdatedAt
		if m.LastAttemptAt != nil {
			claimedAt = *m.LastAttemptAt
		}
		pipe.ZAdd(ctx, zProcessing, goredis.Z{Score: scoreFromTime(claimedAt), Member: m.ID})
	}
	pipe.ZAdd(ctx, zDeliveryAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	pipe.ZAdd(ctx, zDeliveryEP+m.EndpointID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if m.ReplayOf != "" {
		pipe.Incr(ctx, cReplays+m.ReplayOf)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("webhooks/redis: enqueue delivery indexes: %w", err)
	}
	return nil
}

func (s *Store) Claim(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	ts := now()
	nowScore := strconv.FormatFloat(scoreFromTime(ts), 'f', -1, 64)
	ids, err := claimScript.Run(ctx, s.rdb, []string{zPending, zProcessing}, nowScore, limit).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("webhooks/redis: claim script: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// The set move made ownership exclusive; entity updates need no lock.
	result := make([]*delivery.Delivery, 0, len(ids))
	for _, entryID := range ids {
		key := entityKey(prefixDelivery, entryID)
		var m deliveryModel
		if err := s.getEntity(ctx, key, &m); err != nil {
			if isNotFound(err) {
				s.rdb.ZRem(ctx, zProcessing, entryID)
				continue
			}
			return nil, fmt.Errorf("webhooks/redis: claim get: %w", err)
		}

		at := ts
		m.Status = string(delivery.StatusProcessing)
		m.Attempts++
		m.LastAttemptAt = &at
		m.UpdatedAt = ts
		if err := s.setEntity(ctx, key, &m); err != nil {
			return nil, fmt.Errorf("webhooks/redis: claim update: %w", err)
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return result, nil
}

func (s *Store) Transition(ctx context.Context, d *delivery.Delivery, from delivery.Status) error {
	var fromSet string
	switch from {
	case delivery.StatusPending:
		fromSet = zPending
	case delivery.StatusProcessing:
		fromSet = zProcessing
	default:
		return fmt.Errorf("webhooks/redis: transition from %s not supported", from)
	}

	// Removing the membership is the conditional check: if the ID is gone,
	// another actor already moved this delivery on.
	removed, err := s.rdb.ZRem(ctx, fromSet, d.ID.String()).Result()
	if err != nil {
		return fmt.Errorf("webhooks/redis: transition zrem: %w", err)
	}
	if removed == 0 {
		return webhooks.ErrStaleDelivery
	}

	m := toDeliveryModel(d)
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, entityKey(prefixDelivery, m.ID), m); err != nil {
		return fmt.Errorf("webhooks/redis: transition update: %w", err)
	}

	switch d.Status {
	case delivery.StatusPending:
		due := m.UpdatedAt
		if m.NextRetryAt != nil {
			due = *m.NextRetryAt
		}
		s.rdb.ZAdd(ctx, zPending, goredis.Z{Score: scoreFromTime(due), Member: m.ID})
	case delivery.StatusProcessing:
		s.rdb.ZAdd(ctx, zProcessing, goredis.Z{Score: scoreFromTime(m.UpdatedAt), Member: m.ID})
	case delivery.StatusCompleted:
		s.rdb.Incr(ctx, cCompleted)
	case delivery.StatusFailed:
		s.rdb.Incr(ctx, cFailed)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, webhooks.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("webhooks/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

func (s *Store) GetDeliveryByKey(ctx context.Context, idemKey string) (*delivery.Delivery, error) {
	delID, err := s.rdb.Get(ctx, uniqueDeliveryIdem+idemKey).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, webhooks.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("webhooks/redis: get by idempotency key: %w", err)
	}

	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), &m); err != nil {
		if isNotFound(err) {
			return nil, webhooks.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("webhooks/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

func (s *Store) ListDeliveries(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("webhooks/redis: list deliveries: %w", err)
	}
	return s.collectDeliveries(ctx, ids, opts)
}

func (s *Store) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryEP+epID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("webhooks/redis: list by endpoint: %w", err)
	}
	return s.collectDeliveries(ctx, ids, opts)
}

// collectDeliveries fetches entities for IDs in reverse (newest first) and
// applies the list filters.
func (s *Store) collectDeliveries(ctx context.Context, ids []string, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, ids[i]), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.Status != nil && delivery.Status(m.Status) != *opts.Status {
			continue
		}
		if opts.EventType != "" && m.EventType != opts.EventType {
			continue
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*delivery.Delivery, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zProcessing, math.Inf(-1), scoreFromTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("webhooks/redis: list stuck: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, entryID := range ids {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, entryID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[delivery.Status]int64, error) {
	counts := make(map[delivery.Status]int64)

	pending, err := s.rdb.ZCard(ctx, zPending).Result()
	if err != nil {
		return nil, fmt.Errorf("webhooks/redis: count pending: %w", err)
	}
	if pending > 0 {
		counts[delivery.StatusPending] = pending
	}

	processing, err := s.rdb.ZCard(ctx, zProcessing).Result()
	if err != nil {
		return nil, fmt.Errorf("webhooks/redis: count processing: %w", err)
	}
	if processing > 0 {
		counts[delivery.StatusProcessing] = processing
	}

	for key, st := range map[string]delivery.Status{
		cCompleted: delivery.StatusCompleted,
		cFailed:    delivery.StatusFailed,
	} {
		n, err := s.counterValue(ctx, key)
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
	n, err := s.counterValue(ctx, cReplays+origID.String())
	return int(n), err
}

func (s *Store) counterValue(ctx context.Context, key string) (int64, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if isRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("webhooks/redis: read counter %s: %w", key, err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("webhooks/redis: parse counter %s: %w", key, err)
	}
	return n, nil
}
