// Package cache holds short-lived pipeline state such as the last cycle
// report and the trigger rate-limit window. Two backends are provided: an
// in-process map for single-instance deployments and Redis when several
// instances must share state.
package cache

import (
	"encoding/json"
	"time"
)

// Cache is the key/value surface the pipeline reads and writes. Backends
// never return errors: a failed read is a miss and a failed write is
// dropped, since every cached value can be rebuilt on the next cycle.
type Cache interface {
	// Get returns the value stored under key, or false when it is absent
	// or expired.
	Get(key string) (interface{}, bool)
	// Set stores value under key with the backend's default ttl.
	Set(key string, value interface{})
	// SetWithTTL stores value under key for ttl.
	SetWithTTL(key string, value interface{}, ttl time.Duration)
	// Delete removes key. Deleting a missing key is a no-op.
	Delete(key string)
}

// GetInto loads key into dst. Values stored in memory are copied through
// JSON as well, so callers see the same shape from every backend.
func GetInto(c Cache, key string, dst interface{}) bool {
	if c == nil {
		return false
	}

	cached, ok := c.Get(key)
	if !ok || cached == nil {
		return false
	}

	raw, err := json.Marshal(cached)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
