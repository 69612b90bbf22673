package endpoint

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/storefront-kit/webhooks/catalog"
	"github.com/storefront-kit/webhooks/id"
	"github.com/storefront-kit/webhooks/internal/entity"
	"github.com/storefront-kit/webhooks/signature"
)

// Service provides endpoint management operations. It owns all configuration
// validation; delivery side effects never originate here.
type Service struct {
	store    Store
	catalog  *catalog.Registry
	logger   *slog.Logger
	onDelete func(epID string)
}

// NewService creates a new endpoint service.
func NewService(store Store, cat *catalog.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		catalog: cat,
		logger:  logger,
	}
}

// Create registers a new webhook endpoint. The target URL and event type are
// validated here, once; queued deliveries carry copies and are never
// re-validated.
func (svc *Service) Create(ctx context.Context, in Input) (*Endpoint, error) {
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "required"}
	}
	if err := validateTargetURL(in.URL); err != nil {
		return nil, err
	}
	if !svc.catalog.Known(in.EventType) {
		return nil, &ValidationError{Field: "event_type", Message: "unknown event type " + in.EventType}
	}

	policy := in.RetryPolicy
	if policy == (RetryPolicy{}) {
		policy = DefaultRetryPolicy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	secret := in.Secret
	if secret == "" {
		secret = signature.GenerateSecret()
	}

	ep := &Endpoint{
		Entity:      entity.New(),
		ID:          id.NewEndpointID(),
		Name:        in.Name,
		Description: in.Description,
		EventType:   in.EventType,
		URL:         in.URL,
		Secret:      secret,
		Headers:     in.Headers,
		RetryPolicy: policy,
		Active:      true,
		RateLimit:   in.RateLimit,
	}

	if err := svc.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "endpoint created",
		"endpoint_id", ep.ID, "event_type", ep.EventType, "url", ep.URL)

	return ep, nil
}

// Get returns an endpoint by ID.
func (svc *Service) Get(ctx context.Context, epID id.ID) (*Endpoint, error) {
	return svc.store.GetEndpoint(ctx, epID)
}

// Update applies a partial patch to an existing endpoint. Edits affect future
// enqueues only; in-flight deliveries keep the values copied at enqueue time.
func (svc *Service) Update(ctx context.Context, epID id.ID, patch Patch) (*Endpoint, error) {
	ep, err := svc.store.GetEndpoint(ctx, epID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, &ValidationError{Field: "name", Message: "required"}
		}
		ep.Name = *patch.Name
	}
	if patch.Description != nil {
		ep.Description = *patch.Description
	}
	if patch.URL != nil {
		if err := validateTargetURL(*patch.URL); err != nil {
			return nil, err
		}
		ep.URL = *patch.URL
	}
	if patch.Headers != nil {
		ep.Headers = *patch.Headers
	}
	if patch.RetryPolicy != nil {
		if err := patch.RetryPolicy.Validate(); err != nil {
			return nil, err
		}
		ep.RetryPolicy = *patch.RetryPolicy
	}
	if patch.RateLimit != nil && *patch.RateLimit >= 0 {
		ep.RateLimit = *patch.RateLimit
	}

	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	return ep, nil
}

// OnDelete registers a callback invoked after an endpoint is removed, so
// per-endpoint runtime state elsewhere can be released.
func (svc *Service) OnDelete(fn func(epID string)) {
	svc.onDelete = fn
}

// Delete removes an endpoint.
func (svc *Service) Delete(ctx context.Context, epID id.ID) error {
	if err := svc.store.DeleteEndpoint(ctx, epID); err != nil {
		return err
	}
	if svc.onDelete != nil {
		svc.onDelete(epID.String())
	}
	return nil
}

// List returns endpoints matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Endpoint, error) {
	return svc.store.ListEndpoints(ctx, opts)
}

// SetActive enables or disables future enqueuing for an endpoint. Records
// already queued are unaffected.
func (svc *Service) SetActive(ctx context.Context, epID id.ID, active bool) error {
	return svc.store.SetActive(ctx, epID, active)
}

// RotateSecret generates a new signing secret for an endpoint and returns it.
func (svc *Service) RotateSecret(ctx context.Context, epID id.ID) (string, error) {
	ep, err := svc.store.GetEndpoint(ctx, epID)
	if err != nil {
		return "", err
	}

	ep.Secret = signature.GenerateSecret()
	if err := svc.store.UpdateEndpoint(ctx, ep); err != nil {
		return "", err
	}

	return ep.Secret, nil
}

// validateTargetURL requires an absolute HTTPS URL with a host.
func validateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "url", Message: "invalid URL"}
	}
	if u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "must use https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "url", Message: "must be absolute"}
	}
	return nil
}
