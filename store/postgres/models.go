package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/storefront-kit/webhooks/delivery"
	"github.com/storefront-kit/webhooks/endpoint"
	"github.com/storefront-kit/webhooks/id"
	"github.com/storefront-kit/webhooks/internal/entity"
)

// --- Endpoint models ---

type endpointModel struct {
	grove.BaseModel `grove:"table:webhook_endpoints"`

	ID               string            `grove:"id,pk"`
	Name             string            `grove:"name"`
	Description      string            `grove:"description"`
	EventType        string            `grove:"event_type"`
	URL              string            `grove:"url"`
	Secret           string            `grove:"secret"`
	Headers          map[string]string `grove:"headers,type:jsonb"`
	RetryMaxAttempts int               `grove:"retry_max_attempts"`
	RetryBaseDelayMs int64             `grove:"retry_base_delay_ms"`
	RetryMultiplier  float64           `grove:"retry_multiplier"`
	RetryMaxDelayMs  int64             `grove:"retry_max_delay_ms"`
	Active           bool              `grove:"active"`
	RateLimit        int               `grove:"rate_limit"`
	CreatedAt        time.Time         `grove:"created_at"`
	UpdatedAt        time.Time         `grove:"updated_at"`
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

// --- Delivery models ---

type deliveryModel struct {
	grove.BaseModel `grove:"table:webhook_deliveries"`

	ID             string          `grove:"id,pk"`
	EndpointID     string          `grove:"endpoint_id"`
	SourceEventID  string          `grove:"source_event_id"`
	IdempotencyKey string          `grove:"idempotency_key,unique"`
	EventType      string          `grove:"event_type"`
	TargetURL      string          `grove:"target_url"`
	Payload        json.RawMessage `grove:"payload,type:jsonb"`
	Status         string          `grove:"status"`
	Attempts       int             `grove:"attempts"`
	MaxAttempts    int             `grove:"max_attempts"`
	LastAttemptAt  *time.Time      `grove:"last_attempt_at"`
	NextRetryAt    *time.Time      `grove:"next_retry_at"`
	CompletedAt    *time.Time      `grove:"completed_at"`
	ResponseStatus int             `grove:"response_status"`
	ResponseBody   string          `grove:"response_body"`
	ErrorMessage   string          `grove:"error_message"`
	ReplayOf       string          `grove:"replay_of"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
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
