package fusion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DecisionCache memoizes full match decisions keyed by an image
// fingerprint. Entries expire on a TTL so re-indexed reference data
// eventually takes effect without a restart.
type DecisionCache struct {
	lru *expirable.LRU[string, Decision]
}

func NewDecisionCache(capacity int, ttl time.Duration) *DecisionCache {
	return &DecisionCache{
		lru: expirable.NewLRU[string, Decision](capacity, nil, ttl),
	}
}

func (c *DecisionCache) Get(fingerprint string) (Decision, bool) {
	return c.lru.Get(fingerprint)
}

func (c *DecisionCache) Add(fingerprint string, d Decision) {
	c.lru.Add(fingerprint, d)
}

func (c *DecisionCache) Len() int {
	return c.lru.Len()
}

func (c *DecisionCache) Purge() {
	c.lru.Purge()
}

// FingerprintBytes derives the cache key for raw image bytes.
func FingerprintBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintFile derives a cache key for an on-disk image from its
// path, size and modification time. Cheaper than hashing the pixels,
// and invalidated whenever the file changes.
func FingerprintFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())))
	return hex.EncodeToString(sum[:]), nil
}
