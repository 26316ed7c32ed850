// Package version guards persisted cache data against changes in the labeling algorithm.
package version

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"go.uber.org/zap"

	"github.com/FairForge/spancache/internal/kvstore"
)

// StorageKey holds the token persisted alongside the cache snapshot
const StorageKey = "span_cache_version"

// Versions are the inputs the token is derived from
type Versions struct {
	Taxonomy       string `yaml:"taxonomy"`
	PromptTemplate string `yaml:"prompt_template"`
	CacheFormat    string `yaml:"cache_format"`
}

// Gate holds the version token in effect for this process
type Gate struct {
	token  string
	logger *zap.Logger
}

// NewGate computes the token for v
func NewGate(v Versions, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{token: Token(v), logger: logger.Named("version")}
}

// Token hashes the three version strings into one token
func Token(v Versions) string {
	h := sha256.New()
	h.Write([]byte(v.Taxonomy))
	h.Write([]byte{0})
	h.Write([]byte(v.PromptTemplate))
	h.Write([]byte{0})
	h.Write([]byte(v.CacheFormat))
	return hex.EncodeToString(h.Sum(nil)[:12])
}

// Token returns the current token
func (g *Gate) Token() string {
	return g.token
}

// Matches reports whether a stamped entry was written under the current token
func (g *Gate) Matches(token string) bool {
	return token == g.token
}

// Check compares the persisted token with the current one. On mismatch it deletes the
// persisted snapshot under namespace and stores the new token. It reports whether the
// snapshot was invalidated. Storage failures are logged, never returned.
func (g *Gate) Check(ctx context.Context, store kvstore.Store, namespace string) bool {
	stored, err := store.Get(ctx, StorageKey)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		g.logger.Warn("failed to read cache version", zap.Error(err))
		return false
	}
	if err == nil && string(stored) == g.token {
		return false
	}

	g.logger.Info("cache version changed, clearing persisted cache",
		zap.String("stored", string(stored)),
		zap.String("current", g.token))

	if err := store.Delete(ctx, namespace); err != nil {
		g.logger.Warn("failed to clear persisted cache", zap.Error(err))
	}
	if err := store.Set(ctx, StorageKey, []byte(g.token)); err != nil {
		g.logger.Warn("failed to persist cache version", zap.Error(err))
	}
	return true
}
