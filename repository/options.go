/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"time"

	"github.com/tomoncle/roster/audit"
	"github.com/tomoncle/roster/cache"
	"github.com/tomoncle/roster/database"
	"github.com/tomoncle/roster/types"
)

type settings struct {
	audit       *audit.Interceptor
	cache       cache.Cache
	namespace   string
	cacheTTL    time.Duration
	lockTimeout time.Duration
	logger      database.Logger
}

func defaultSettings() *settings {
	return &settings{
		namespace:   cache.DefaultConfig().Namespace,
		cacheTTL:    cache.DefaultConfig().TTL,
		lockTimeout: database.DefaultConfig().Query.LockTimeout,
	}
}

// Option configures a repository.
type Option func(*settings)

// WithInterceptor sets the auditing interceptor. Repositories without one use
// audit.New().
func WithInterceptor(i *audit.Interceptor) Option {
	return func(s *settings) {
		s.audit = i
	}
}

// WithCache enables the second-level cache for FindByID.
func WithCache(c cache.Cache) Option {
	return func(s *settings) {
		s.cache = c
	}
}

// WithCacheConfig applies the namespace and TTL of cfg.
func WithCacheConfig(cfg cache.Config) Option {
	return func(s *settings) {
		if cfg.Namespace != "" {
			s.namespace = cfg.Namespace
		}
		if cfg.TTL > 0 {
			s.cacheTTL = cfg.TTL
		}
	}
}

// WithLockTimeout bounds how long FindForUpdate waits for a row lock.
// Zero waits for as long as the context allows.
func WithLockTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.lockTimeout = d
	}
}

// WithQueryConfig applies the query section of the database configuration.
func WithQueryConfig(cfg database.QueryConfig) Option {
	return func(s *settings) {
		s.lockTimeout = cfg.LockTimeout
	}
}

func WithLogger(logger database.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

type queryOptions struct {
	sort     types.Sort
	limit    int
	fetch    map[string]types.FetchMode
	readOnly bool
}

// QueryOption tunes a single finder call.
type QueryOption func(*queryOptions)

// WithSort orders the result. Fields name struct fields or columns.
func WithSort(orders ...types.Order) QueryOption {
	return func(o *queryOptions) {
		o.sort = append(o.sort, orders...)
	}
}

// WithLimit caps the number of returned rows.
func WithLimit(n int) QueryOption {
	return func(o *queryOptions) {
		o.limit = n
	}
}

// WithFetch overrides the fetch mode declared by the relation's fetch tag.
func WithFetch(relation string, mode types.FetchMode) QueryOption {
	return func(o *queryOptions) {
		if o.fetch == nil {
			o.fetch = make(map[string]types.FetchMode)
		}
		o.fetch[relation] = mode
	}
}

// WithEager is shorthand for WithFetch(relation, types.FetchEager).
func WithEager(relations ...string) QueryOption {
	return func(o *queryOptions) {
		for _, rel := range relations {
			WithFetch(rel, types.FetchEager)(o)
		}
	}
}

// WithReadOnly returns entities that are not tracked by the persistence
// context, so changes made to them are never flushed.
func WithReadOnly() QueryOption {
	return func(o *queryOptions) {
		o.readOnly = true
	}
}

func applyQueryOptions(opts []QueryOption) *queryOptions {
	o := &queryOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *queryOptions) overridesFetch() bool { return len(o.fetch) > 0 }
