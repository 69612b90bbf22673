package redis

// Key prefixes for primary entity storage.
const (
	prefixEndpoint = "webhooks:ep:"
	prefixDelivery = "webhooks:del:"
)

// Key prefixes for unique indexes.
const (
	uniqueDeliveryIdem = "webhooks:u:del:idem:"
)

// Sorted set indexes. The pending set is scored by next_retry_at, the
// processing set by claim time; membership in the processing set is the
// delivery lease.
const (
	zEndpointAll = "webhooks:z:ep:all"
	zDeliveryAll = "webhooks:z:del:all"
	zDeliveryEP  = "webhooks:z:del:ep:" // + endpoint ID
	zPending     = "webhooks:z:del:pending"
	zProcessing  = "webhooks:z:del:processing"
)

// Set indexes.
const (
	sActiveByType = "webhooks:s:ep:type:" // + event type
)

// Counter keys for terminal states and replays.
const (
	cCompleted = "webhooks:c:del:completed"
	cFailed    = "webhooks:c:del:failed"
	cReplays   = "webhooks:c:del:replays:" // + original delivery ID
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// activeSetKey returns the set key for active endpoints of an event type.
func activeSetKey(eventType string) string {
	return sActiveByType + eventType
}
