package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/storefront-kit/webhooks"
	"github.com/storefront-kit/webhooks/endpoint"
	"github.com/storefront-kit/webhooks/id"
	"github.com/storefront-kit/webhooks/internal/entity"
)

// endpointModel is the JSON representation stored in Redis.
type endpointModel struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	EventType        string            `json:"event_type"`
	URL              string            `json:"url"`
	Secret           string            `json:"secret"`
	Headers          map[string]string `json:"headers,omitempty"`
	RetryMaxAttempts int               `json:"retry_max_attempts"`
	RetryBaseDelayMs int64             `json:"retry_base_delay_ms"`
	RetryMultiplier  float64           `json:"retry_multiplier"`
	RetryMaxDelayMs  int64             `json:"retry_max_delay_ms"`
	Active           bool              `json:"active"`
	RateLimit        int               `json:"rate_limit"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func toEndpointModel(ep *endpoint.Endpoint) *endpointModel {
	return &endpointModel{
		ID:               ep.ID.String(),
		Name:             ep.Name,
		Description:      ep.Description,
		EventType:        ep.EventType,
		URL:              ep.URL,
		Secret:           ep.Secret,
		Headers:          ep.Headers,
		RetryMaxAttempts: ep.RetryPolicy.MaxAttempts,
		RetryBaseDelayMs: ep.RetryPolicy.BaseDelay.Milliseconds(),
		RetryMultiplier:  ep.RetryPolicy.Multiplier,
		RetryMaxDelayMs:  ep.RetryPolicy.MaxDelay.Milliseconds(),
		Active:           ep.Active,
		RateLimit:        ep.RateLimit,
		CreatedAt:        ep.CreatedAt,
		UpdatedAt:        ep.UpdatedAt,
	}
}

func fromEndpointModel(m *endpointModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseEndpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.ID, err)
	}
	return &endpoint.Endpoint{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          epID,
		Name:        m.Name,
		Description: m.Description,
		EventType:   m.EventType,
		URL:         m.URL,
		Secret:      m.Secret,
		Headers:     m.Headers,
		RetryPolicy: endpoint.RetryPolicy{
			MaxAttempts: m.RetryMaxAttempts,
			BaseDelay:   time.Duration(m.RetryBaseDelayMs) * time.Millisecond,
			Multiplier:  m.RetryMultiplier,
			MaxDelay:    time.Duration(m.RetryMaxDelayMs) * time.Millisecond,
		},
		Active:    m.Active,
		RateLimit: m.RateLimit,
	}, nil
}

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)
	key := entityKey(prefixEndpoint, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("webhooks/redis: create endpoint: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zEndpointAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if m.Active {
		pipe.SAdd(ctx, activeSetKey(m.EventType), m.ID)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("webhooks/redis: create endpoint indexes: %w", err)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	var m endpointModel
	if err := s.getEntity(ctx, entityKey(prefixEndpoint, epID.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, webhooks.ErrEndpointNotFound
		}
		return nil, fmt.Errorf("webhooks/redis: get endpoint: %w", err)
	}
	return fromEndpointModel(&m)
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	key := entityKey(prefixEndpoint, ep.ID.String())

	var existing endpointModel
	if err := s.getEntity(ctx, key, &existing); err != nil {
		if isNotFound(err) {
			return webhooks.ErrEndpointNotFound
		}
		return fmt.Errorf("webhooks/redis: update endpoint get: %w", err)
	}

	m := toEndpointModel(ep)
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("webhooks/redis: update endpoint: %w", err)
	}

	// Rebuild subscription membership; the event type may have changed.
	pipe := s.rdb.Pipeline()
	pipe.SRem(ctx, activeSetKey(existing.EventType), m.ID)
	if m.Active {
		pipe.SAdd(ctx, activeSetKey(m.EventType), m.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("webhooks/redis: update endpoint indexes: %w", err)
	}
	return nil
}

func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	key := entityKey(prefixEndpoint, epID.String())

	var m endpointModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return webhooks.ErrEndpointNotFound
		}
		return fmt.Errorf("webhooks/redis: delete endpoint get: %w", err)
	}

	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("webhooks/redis: delete endpoint: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZRem(ctx, zEndpointAll, m.ID)
	pipe.SRem(ctx, activeSetKey(m.EventType), m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("webhooks/redis: delete endpoint indexes: %w", err)
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	ids, err := s.rdb.ZRange(ctx, zEndpointAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("webhooks/redis: list endpoints: %w", err)
	}

	result := make([]*endpoint.Endpoint, 0, len(ids))
	for _, entryID := range ids {
		var m endpointModel
		if err := s.getEntity(ctx, entityKey(prefixEndpoint, entryID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if opts.EventType != "" && m.EventType != opts.EventType {
			continue
		}
		if opts.Active != nil && m.Active != *opts.Active {
			continue
		}
		ep, err := fromEndpointModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) Resolve(ctx context.Context, eventType string) ([]*endpoint.Endpoint, error) {
	ids, err := s.rdb.SMembers(ctx, activeSetKey(eventType)).Result()
	if err != nil {
		return nil, fmt.Errorf("webhooks/redis: resolve: %w", err)
	}

	var result []*endpoint.Endpoint
	for _, entryID := range ids {
		var m endpointModel
		if err := s.getEntity(ctx, entityKey(prefixEndpoint, entryID), &m); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if !m.Active {
			continue
		}
		ep, err := fromEndpointModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}
	return result, nil
}

func (s *Store) SetActive(ctx context.Context, epID id.ID, active bool) error {
	key := entityKey(prefixEndpoint, epID.String())

	var m endpointModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isNotFound(err) {
			return webhooks.ErrEndpointNotFound
		}
		return fmt.Errorf("webhooks/redis: set active get: %w", err)
	}

	m.Active = active
	m.UpdatedAt = now()

	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("webhooks/redis: set active: %w", err)
	}

	if active {
		s.rdb.SAdd(ctx, activeSetKey(m.EventType), m.ID)
	} else {
		s.rdb.SRem(ctx, activeSetKey(m.EventType), m.ID)
	}
	return nil
}
