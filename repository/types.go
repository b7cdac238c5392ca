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
	"context"

	"github.com/tomoncle/roster/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// CrudRepository defines basic CRUD operations for a generic entity type.
type CrudRepository[T any] interface {
	Save(ctx context.Context, entity *T) (*T, error)

	SaveAll(ctx context.Context, entities ...*T) ([]*T, error)

	Upsert(ctx context.Context, conflict []string, entities ...*T) error

	FindByID(ctx context.Context, id any, opts ...QueryOption) (*T, error)

	FindAll(ctx context.Context, opts ...QueryOption) ([]*T, error)

	Count(ctx context.Context) (int64, error)

	Delete(ctx context.Context, entity *T) error

	DeleteByID(ctx context.Context, id any) error
}

// PredicateRepository defines finders driven by an explicit predicate.
type PredicateRepository[T any] interface {
	FindBy(ctx context.Context, pred *types.Predicate, opts ...QueryOption) ([]*T, error)

	FindOneBy(ctx context.Context, pred *types.Predicate, opts ...QueryOption) (*T, error)

	CountBy(ctx context.Context, pred *types.Predicate) (int64, error)

	ExistsBy(ctx context.Context, pred *types.Predicate) (bool, error)

	BulkUpdate(ctx context.Context, pred *types.Predicate, set *types.UpdateSet) (int64, error)

	FindForUpdate(ctx context.Context, pred *types.Predicate, opts ...QueryOption) ([]*T, error)
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	FindPage(ctx context.Context, pred *types.Predicate, req types.PageRequest, opts ...QueryOption) (*types.Page[*T], error)

	FindSlice(ctx context.Context, pred *types.Predicate, req types.PageRequest, opts ...QueryOption) (*types.Slice[*T], error)
}

// UnitOfWork controls the persistence context bound to a context.
type UnitOfWork interface {
	Transactional(ctx context.Context, fn func(ctx context.Context) error) error
	Flush(ctx context.Context) error
	Clear(ctx context.Context)
}

// Querier is the handle projection and native helpers run on.
type Querier interface {
	Conn(ctx context.Context) bun.IDB
	Flush(ctx context.Context) error
}

// Repository combines CRUD, predicate, pagination and unit-of-work
// operations and exposes the Bun handles for advanced use cases.
type Repository[T any] interface {
	CrudRepository[T]
	PredicateRepository[T]
	PageQueryRepository[T]
	UnitOfWork
	Querier
	Table() *schema.Table
	Dialect() schema.Dialect
	DB() *bun.DB
}
