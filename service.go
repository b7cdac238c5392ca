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

package roster

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomoncle/roster/database"
	"github.com/tomoncle/roster/repository"
	"github.com/tomoncle/roster/types"

	"github.com/uptrace/bun"
)

type Service[T any] interface {
	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided predicate.
	List(ctx context.Context, pred *types.Predicate, opts ...repository.QueryOption) ([]*T, error)

	// Query executes a native query and maps the results to entities.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, pred *types.Predicate, req types.PageRequest, opts ...repository.QueryOption) (*types.Page[*T], error)

	// Count returns the number of entities that match the predicate.
	Count(ctx context.Context, pred *types.Predicate) (int64, error)

	// Update writes an existing entity.
	Update(ctx context.Context, model *T) (*T, error)

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id any) error

	// Save inserts or updates entities in one transaction.
	Save(ctx context.Context, model ...*T) ([]*T, error)

	// SaveOrUpdate upserts entities colliding on the conflict fields.
	SaveOrUpdate(ctx context.Context, conflict []string, model ...*T) error

	// Transactional runs fn as one unit of work.
	Transactional(ctx context.Context, fn func(ctx context.Context) error) error

	// Repository exposes the underlying repository.
	Repository() (repository.Repository[T], error)

	// SelectBuilder returns a Bun select query builder for the entity bound
	// to the transaction of ctx, if any.
	SelectBuilder(ctx context.Context) (*bun.SelectQuery, error)
}

type baseServiceImpl[T any] struct {
	opts []repository.Option
	repo repository.Repository[T]
	err  error
	once sync.Once
}

// NewService returns a default Service implementation using the generic
// repository backed by the global database connection. The repository is
// built on first use with the query and cache settings of the global
// configuration, followed by opts.
func NewService[T any](opts ...repository.Option) Service[T] {
	return &baseServiceImpl[T]{opts: opts}
}

func (s *baseServiceImpl[T]) baseRepo() (repository.Repository[T], error) {
	s.once.Do(func() {
		db := database.GetDB()
		if db == nil {
			s.err = fmt.Errorf("%w: database not initialized", database.ErrStoreUnavailable)
			return
		}
		var opts []repository.Option
		if cfg := database.GetConfig(); cfg != nil {
			opts = append(opts, repository.WithQueryConfig(cfg.Query), repository.WithCacheConfig(cfg.Cache))
			if c := database.GetCache(); c != nil {
				opts = append(opts, repository.WithCache(c))
			}
		}
		s.repo, s.err = repository.NewRepository[T](db, append(opts, s.opts...)...)
	})
	return s.repo, s.err
}

func (s *baseServiceImpl[T]) Repository() (repository.Repository[T], error) {
	return s.baseRepo()
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.SaveAll(ctx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, conflict []string, model ...*T) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.Upsert(ctx, conflict, model...)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindByID(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindAll(ctx)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, pred *types.Predicate, opts ...repository.QueryOption) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindBy(ctx, pred, opts...)
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repository.NativeQuery[*T](ctx, repo, query, args...)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, pred *types.Predicate, req types.PageRequest, opts ...repository.QueryOption) (*types.Page[*T], error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindPage(ctx, pred, req, opts...)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, pred *types.Predicate) (int64, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return 0, err
	}
	return repo.CountBy(ctx, pred)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Save(ctx, model)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.DeleteByID(ctx, id)
}

func (s *baseServiceImpl[T]) Transactional(ctx context.Context, fn func(ctx context.Context) error) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	return repo.Transactional(ctx, fn)
}

func (s *baseServiceImpl[T]) SelectBuilder(ctx context.Context) (*bun.SelectQuery, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Conn(ctx).NewSelect().Model((*T)(nil)), nil
}
