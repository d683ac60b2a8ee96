// Package cache provides a TTL cache for slow-changing reference data.
package cache

import "time"

// Cache is a key/value store with per-entry TTL.
type Cache interface {
	// Get returns (value, true) if the key is present and unexpired.
	Get(key string) (interface{}, bool)

	// Set stores a value. It may be dropped under contention; callers must
	// tolerate a miss on the next Get.
	Set(key string, value interface{}, ttl time.Duration) bool

	Delete(key string)

	Clear()

	Close()
}

// Get is a typed lookup. A present value of the wrong type is a miss.
func Get[T any](c Cache, key string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}

	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}

	typed, ok := v.(T)
	if !ok {
		return zero, false
	}

	return typed, true
}
