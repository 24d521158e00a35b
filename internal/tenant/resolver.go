// Copyright 2024 Video Portal Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tenant

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	// DefaultCacheSize bounds the resolver cache
	DefaultCacheSize = 256
	// DefaultCacheTTL bounds how stale a cached tenant may get; credential
	// rotation takes at most this long to propagate
	DefaultCacheTTL = 5 * time.Minute
)

// Resolver resolves tenant slugs with an expiring LRU cache in front of the
// store. Every request path resolves the tenant before anything else, so
// lookups must be cheap.
type Resolver struct {
	store  *Store
	cache  *expirable.LRU[string, *Tenant]
	logger *zap.Logger
}

// NewResolver creates a resolver over the given store. Size and ttl fall
// back to the package defaults when zero.
func NewResolver(store *Store, size int, ttl time.Duration, logger *zap.Logger) *Resolver {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &Resolver{
		store:  store,
		cache:  expirable.NewLRU[string, *Tenant](size, nil, ttl),
		logger: logger,
	}
}

// Resolve returns the active tenant for a slug. Inactive tenants resolve as
// ErrNotFound, indistinguishable from absent ones.
func (r *Resolver) Resolve(ctx context.Context, slug string) (*Tenant, error) {
	if t, ok := r.cache.Get(slug); ok {
		return t, nil
	}

	t, err := r.store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !t.Active {
		r.logger.Debug("Rejected inactive tenant", zap.String("slug", slug))
		return nil, ErrNotFound
	}

	r.cache.Add(slug, t)
	return t, nil
}

// Invalidate drops a tenant from the cache, forcing the next resolve to hit
// the store
func (r *Resolver) Invalidate(slug string) {
	r.cache.Remove(slug)
}
