package cache

import (
	"time"

	"github.com/sourcehub/sourcehub/internal/domain"
)

// Store is the key-value + TTL backend behind the permission cache.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) (domain.Role, bool)
	Set(key string, role domain.Role, ttl time.Duration)
	Delete(key string)
}

// Key builds the cache key for a (user, project) pair.
func Key(userId, projectId string) string {
	return userId + ":" + projectId
}
