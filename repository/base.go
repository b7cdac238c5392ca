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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/tomoncle/roster/audit"
	"github.com/tomoncle/roster/cache"
	"github.com/tomoncle/roster/database"
	"github.com/tomoncle/roster/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

// loadHook runs after a finder has resolved the rows of a query. relations
// lists the relations loaded eagerly.
type loadHook[T any] func(ctx context.Context, rows []*T, relations []string)

type baseRepositoryImpl[T any] struct {
	db          *bun.DB
	table       *schema.Table
	pk          *schema.Field
	fetch       map[string]types.FetchMode
	audit       *audit.Interceptor
	cache       cache.Cache
	namespace   string
	cacheTTL    time.Duration
	lockTimeout time.Duration
	logger      database.Logger
	hooks       []loadHook[T]
}

// NewRepository returns a generic repository for the bun model T backed by
// the provided Bun DB. T must declare exactly one primary key.
func NewRepository[T any](db *bun.DB, opts ...Option) (Repository[T], error) {
	return newRepository[T](db, opts...)
}

func newRepository[T any](db *bun.DB, opts ...Option) (*baseRepositoryImpl[T], error) {
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model %s is not a struct", typ)
	}
	table := db.Table(typ)
	if len(table.PKs) != 1 {
		return nil, fmt.Errorf("model %s must declare exactly one primary key, got %d", table.TypeName, len(table.PKs))
	}
	fetch, err := fetchDefaults(table)
	if err != nil {
		return nil, err
	}

	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}
	if s.audit == nil {
		s.audit = audit.New()
	}
	if s.logger == nil {
		s.logger = database.GetLogger()
	}
	return &baseRepositoryImpl[T]{
		db:          db,
		table:       table,
		pk:          table.PKs[0],
		fetch:       fetch,
		audit:       s.audit,
		cache:       s.cache,
		namespace:   s.namespace,
		cacheTTL:    s.cacheTTL,
		lockTimeout: s.lockTimeout,
		logger:      s.logger,
	}, nil
}

func (r *baseRepositoryImpl[T]) onLoad(hook loadHook[T]) { r.hooks = append(r.hooks, hook) }

func (r *baseRepositoryImpl[T]) Table() *schema.Table { return r.table }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) DB() *bun.DB { return r.db }

func (r *baseRepositoryImpl[T]) Conn(ctx context.Context) bun.IDB { return database.Conn(ctx, r.db) }

// IdentityKey is the persistence-context key of the row id in table.
func IdentityKey(table string, id interface{}) string {
	return fmt.Sprintf("%s:%v", table, id)
}

func (r *baseRepositoryImpl[T]) key(id interface{}) string { return IdentityKey(r.table.Name, id) }

func (r *baseRepositoryImpl[T]) idOf(entity *T) (interface{}, bool) {
	v := r.pk.Value(reflect.ValueOf(entity).Elem())
	return v.Interface(), !v.IsZero()
}

func (r *baseRepositoryImpl[T]) snapshot(model interface{}) []interface{} {
	v := reflect.ValueOf(model).Elem()
	out := make([]interface{}, len(r.table.DataFields))
	for i, f := range r.table.DataFields {
		out[i] = f.Value(v).Interface()
	}
	return out
}

func (r *baseRepositoryImpl[T]) flushEntity(ctx context.Context, model interface{}) error {
	entity := model.(*T)
	n, err := r.update(ctx, entity)
	if err != nil {
		return err
	}
	if n == 0 {
		id, _ := r.idOf(entity)
		r.logger.Warn("Flushed entity no longer exists", "table", r.table.Name, "id", id)
		return nil
	}
	id, _ := r.idOf(entity)
	r.evict(ctx, id)
	return nil
}

func (r *baseRepositoryImpl[T]) plan(pred *types.Predicate, o *queryOptions) (*selectPlan, error) {
	where, err := whereClauses(r.table, pred, true)
	if err != nil {
		return nil, err
	}
	order, err := orderClauses(r.table, o.sort)
	if err != nil {
		return nil, err
	}
	relations, err := eagerRelations(r.table, r.fetch, o)
	if err != nil {
		return nil, err
	}
	return &selectPlan{where: where, order: order, relations: relations, limit: o.limit, readOnly: o.readOnly}, nil
}

// postLoad swaps rows for the instances already managed by the unit of work
// and runs the load hooks.
func (r *baseRepositoryImpl[T]) postLoad(ctx context.Context, rows []*T, plan *selectPlan) []*T {
	r.normalize(ctx, rows...)
	if pc, ok := PersistenceContextFrom(ctx); ok && !plan.readOnly {
		for i, row := range rows {
			id, _ := r.idOf(row)
			managed := pc.manage(r.key(id), row, r).(*T)
			if managed != row {
				r.copyRelations(managed, row, plan.relations)
				rows[i] = managed
			}
		}
	}
	for _, hook := range r.hooks {
		hook(ctx, rows, plan.relations)
	}
	return rows
}

func (r *baseRepositoryImpl[T]) copyRelations(dst, src *T, relations []string) {
	dv, sv := reflect.ValueOf(dst).Elem(), reflect.ValueOf(src).Elem()
	for _, name := range relations {
		rel := r.table.Relations[name]
		rel.Field.Value(dv).Set(rel.Field.Value(sv))
	}
}

func (r *baseRepositoryImpl[T]) insert(ctx context.Context, entity *T) error {
	if err := r.audit.BeforeInsert(ctx, entity); err != nil {
		return err
	}
	_, err := r.Conn(ctx).NewInsert().Model(entity).Exec(ctx)
	return database.Translate(err)
}

func (r *baseRepositoryImpl[T]) update(ctx context.Context, entity *T) (int64, error) {
	if err := r.audit.BeforeUpdate(ctx, entity); err != nil {
		return 0, err
	}
	res, err := r.Conn(ctx).NewUpdate().
		Model(entity).
		WherePK().
		ExcludeColumn(r.audit.InsertOnlyColumns(entity)...).
		Exec(ctx)
	if err != nil {
		return 0, database.Translate(err)
	}
	n, err := res.RowsAffected()
	return n, database.Translate(err)
}

func (r *baseRepositoryImpl[T]) reload(ctx context.Context, entity *T) error {
	if err := r.Conn(ctx).NewSelect().Model(entity).WherePK().Scan(ctx); err != nil {
		return database.Translate(err)
	}
	r.normalize(ctx, entity)
	return nil
}

// scanNormalizer is implemented by models that adjust scanned values, such
// as timestamps returned in the driver's location.
type scanNormalizer interface {
	AfterScanRow(ctx context.Context) error
}

// normalize applies the model's scan hook to rows read by the repository or
// decoded from the cache, so both sources yield identical values.
func (r *baseRepositoryImpl[T]) normalize(ctx context.Context, rows ...*T) {
	for _, row := range rows {
		if n, ok := any(row).(scanNormalizer); ok {
			if err := n.AfterScanRow(ctx); err != nil {
				r.logger.Warn("Failed to normalize entity", "table", r.table.Name, "error", err)
			}
		}
	}
}

func (r *baseRepositoryImpl[T]) cacheKey(id interface{}) string {
	return cache.Key(r.namespace, r.table.Name, id)
}

func (r *baseRepositoryImpl[T]) evict(ctx context.Context, ids ...interface{}) {
	if r.cache == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.cacheKey(id)
	}
	// A reader outside the transaction may cache the committed row again
	// before this transaction commits, so eviction is repeated after commit.
	r.afterWrite(ctx, func(ctx context.Context) {
		if err := r.cache.Delete(ctx, keys...); err != nil {
			r.logger.Warn("Failed to evict cached entity", "table", r.table.Name, "error", err)
		}
	})
}

func (r *baseRepositoryImpl[T]) evictTable(ctx context.Context) {
	if r.cache == nil {
		return
	}
	prefix := cache.TablePrefix(r.namespace, r.table.Name)
	r.afterWrite(ctx, func(ctx context.Context) {
		if err := r.cache.DeletePrefix(ctx, prefix); err != nil {
			r.logger.Warn("Failed to evict cached entities", "table", r.table.Name, "error", err)
		}
	})
}

// afterWrite runs f now and, inside a transaction, once more after commit.
func (r *baseRepositoryImpl[T]) afterWrite(ctx context.Context, f func(ctx context.Context)) {
	f(ctx)
	if database.InTx(ctx) {
		database.AfterCommit(ctx, f)
	}
}

func (r *baseRepositoryImpl[T]) cached(ctx context.Context, id interface{}) (*T, bool) {
	data, ok, err := r.cache.Get(ctx, r.cacheKey(id))
	if err != nil {
		r.logger.Warn("Failed to read cached entity", "table", r.table.Name, "id", id, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	entity := new(T)
	if err := json.Unmarshal(data, entity); err != nil {
		r.logger.Warn("Discarding undecodable cached entity", "table", r.table.Name, "id", id, "error", err)
		return nil, false
	}
	r.normalize(ctx, entity)
	return entity, true
}

func (r *baseRepositoryImpl[T]) store(ctx context.Context, id interface{}, entity *T) {
	data, err := json.Marshal(entity)
	if err == nil {
		err = r.cache.Set(ctx, r.cacheKey(id), data, r.cacheTTL)
	}
	if err != nil {
		r.logger.Warn("Failed to cache entity", "table", r.table.Name, "id", id, "error", err)
	}
}

// Save inserts entity when its primary key is zero and updates it
// otherwise. An update that matches no row inserts the entity with its key.
// entity is refreshed from the store and becomes managed by the unit of
// work bound to ctx.
func (r *baseRepositoryImpl[T]) Save(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: cannot save a nil %s", database.ErrInvalidQuery, r.table.TypeName)
	}
	if _, ok := r.idOf(entity); ok {
		n, err := r.update(ctx, entity)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if err := r.insert(ctx, entity); err != nil {
				return nil, err
			}
		}
	} else if err := r.insert(ctx, entity); err != nil {
		return nil, err
	}
	if err := r.reload(ctx, entity); err != nil {
		return nil, err
	}

	id, _ := r.idOf(entity)
	r.evict(ctx, id)
	if pc, ok := PersistenceContextFrom(ctx); ok {
		pc.refresh(r.key(id), entity, r)
	}
	return entity, nil
}

// SaveAll saves every entity inside one transaction.
func (r *baseRepositoryImpl[T]) SaveAll(ctx context.Context, entities ...*T) ([]*T, error) {
	out := make([]*T, 0, len(entities))
	err := database.RunInTx(ctx, r.db, nil, func(ctx context.Context, _ bun.Tx) error {
		for _, entity := range entities {
			saved, err := r.Save(ctx, entity)
			if err != nil {
				return err
			}
			out = append(out, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert inserts entities and updates the rows that collide on the conflict
// columns, which default to the primary key. Creation audit columns of
// existing rows are preserved. Entities are refreshed from the store.
func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, conflict []string, entities ...*T) error {
	if len(entities) == 0 {
		return nil
	}
	keys := []string{r.pk.Name}
	if len(conflict) > 0 {
		keys = keys[:0]
		for _, field := range conflict {
			col, err := resolveColumn(r.table, field)
			if err != nil {
				return err
			}
			keys = append(keys, col)
		}
	}
	for _, entity := range entities {
		if entity == nil {
			return fmt.Errorf("%w: cannot upsert a nil %s", database.ErrInvalidQuery, r.table.TypeName)
		}
		if err := r.audit.BeforeInsert(ctx, entity); err != nil {
			return err
		}
	}
	columns := r.upsertColumns(keys)

	err := database.RunInTx(ctx, r.db, nil, func(ctx context.Context, tx bun.Tx) error {
		switch {
		case r.db.HasFeature(feature.InsertOnConflict):
			return r.upsertOnConflict(ctx, tx, keys, columns, entities)
		case r.db.HasFeature(feature.InsertOnDuplicateKey):
			return r.upsertOnDuplicateKey(ctx, tx, columns, entities)
		default:
			return r.upsertFallback(ctx, keys, entities)
		}
	})
	if err != nil {
		return err
	}
	for _, entity := range entities {
		if err := r.reloadBy(ctx, keys, entity); err != nil {
			return err
		}
		id, _ := r.idOf(entity)
		r.evict(ctx, id)
		if pc, ok := PersistenceContextFrom(ctx); ok {
			pc.refresh(r.key(id), entity, r)
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) upsertColumns(keys []string) []string {
	skip := map[string]bool{r.pk.Name: true}
	for _, k := range keys {
		skip[k] = true
	}
	for _, col := range r.audit.InsertOnlyColumns((*T)(nil)) {
		skip[col] = true
	}
	var columns []string
	for _, f := range r.table.DataFields {
		if !skip[f.Name] {
			columns = append(columns, f.Name)
		}
	}
	return columns
}

func (r *baseRepositoryImpl[T]) upsertOnConflict(ctx context.Context, tx bun.Tx, keys, columns []string, entities []*T) error {
	target := make([]interface{}, len(keys))
	for i, k := range keys {
		target[i] = bun.Ident(k)
	}
	conflict := "CONFLICT (" + strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ") + ")"
	q := tx.NewInsert().Model(&entities)
	if len(columns) == 0 {
		q = q.On(conflict+" DO NOTHING", target...)
	} else {
		q = q.On(conflict+" DO UPDATE", target...)
		for _, col := range columns {
			q = q.Set("? = EXCLUDED.?", bun.Ident(col), bun.Ident(col))
		}
	}
	_, err := q.Exec(ctx)
	return database.Translate(err)
}

func (r *baseRepositoryImpl[T]) upsertOnDuplicateKey(ctx context.Context, tx bun.Tx, columns []string, entities []*T) error {
	q := tx.NewInsert().Model(&entities).On("DUPLICATE KEY UPDATE")
	if len(columns) == 0 {
		q = q.Set("? = ?", bun.Ident(r.pk.Name), bun.Ident(r.pk.Name))
	}
	for _, col := range columns {
		q = q.Set("? = VALUES(?)", bun.Ident(col), bun.Ident(col))
	}
	_, err := q.Exec(ctx)
	return database.Translate(err)
}

func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, keys []string, entities []*T) error {
	for _, entity := range entities {
		existing := new(T)
		err := r.byColumns(r.Conn(ctx).NewSelect().Model(existing), keys, entity).Scan(ctx)
		switch {
		case err == nil:
			id, _ := r.idOf(existing)
			r.pk.Value(reflect.ValueOf(entity).Elem()).Set(reflect.ValueOf(id))
			if _, err := r.update(ctx, entity); err != nil {
				return err
			}
		case database.IsNotFound(database.Translate(err)):
			if err := r.insert(ctx, entity); err != nil {
				return err
			}
		default:
			return database.Translate(err)
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) byColumns(q *bun.SelectQuery, columns []string, entity *T) *bun.SelectQuery {
	v := reflect.ValueOf(entity).Elem()
	for _, col := range columns {
		q = q.Where("?TableAlias.? = ?", bun.Ident(col), r.table.FieldMap[col].Value(v).Interface())
	}
	return q
}

func (r *baseRepositoryImpl[T]) reloadBy(ctx context.Context, columns []string, entity *T) error {
	if err := r.byColumns(r.Conn(ctx).NewSelect().Model(entity), columns, entity).Scan(ctx); err != nil {
		return database.Translate(err)
	}
	r.normalize(ctx, entity)
	return nil
}

// FindByID returns the managed instance for id, then a cached copy, then
// the stored row. It fails with database.ErrNotFound when no row matches.
func (r *baseRepositoryImpl[T]) FindByID(ctx context.Context, id any, opts ...QueryOption) (*T, error) {
	o := applyQueryOptions(opts)
	plan, err := r.plan(nil, o)
	if err != nil {
		return nil, err
	}
	pc, inUnit := PersistenceContextFrom(ctx)
	if inUnit && !o.readOnly && len(plan.relations) == 0 {
		if managed, ok := pc.get(r.key(id)); ok {
			return managed.(*T), nil
		}
	}

	cacheable := r.cache != nil && !database.InTx(ctx) && !o.overridesFetch() && len(plan.relations) == 0
	if cacheable {
		if entity, ok := r.cached(ctx, id); ok {
			return entity, nil
		}
	}

	entity := new(T)
	q := r.Conn(ctx).NewSelect().Model(entity).Where("?TableAlias.? = ?", bun.Ident(r.pk.Name), id)
	if err := plan.apply(q).Scan(ctx); err != nil {
		return nil, fmt.Errorf("%s %v: %w", r.table.TypeName, id, database.Translate(err))
	}
	entity = r.postLoad(ctx, []*T{entity}, plan)[0]
	if cacheable {
		r.store(ctx, id, entity)
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) FindAll(ctx context.Context, opts ...QueryOption) ([]*T, error) {
	return r.FindBy(ctx, nil, opts...)
}

// FindBy returns every row matching pred. Pending changes of the unit of
// work are flushed first.
func (r *baseRepositoryImpl[T]) FindBy(ctx context.Context, pred *types.Predicate, opts ...QueryOption) ([]*T, error) {
	plan, err := r.plan(pred, applyQueryOptions(opts))
	if err != nil {
		return nil, err
	}
	if err := r.Flush(ctx); err != nil {
		return nil, err
	}
	rows := make([]*T, 0)
	if err := plan.apply(r.Conn(ctx).NewSelect().Model(&rows)).Scan(ctx); err != nil {
		return nil, database.Translate(err)
	}
	return r.postLoad(ctx, rows, plan), nil
}

// FindOneBy returns the single row matching pred. No match is
// database.ErrNotFound and more than one is database.ErrInvalidQuery.
func (r *baseRepositoryImpl[T]) FindOneBy(ctx context.Context, pred *types.Predicate, opts ...QueryOption) (*T, error) {
	rows, err := r.FindBy(ctx, pred, append(append([]QueryOption{}, opts...), WithLimit(2))...)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("%w: no %s matches", database.ErrNotFound, r.table.TypeName)
	case 1:
		return rows[0], nil
	default:
		return nil, fmt.Errorf("%w: more than one %s matches", database.ErrInvalidQuery, r.table.TypeName)
	}
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context) (int64, error) {
	return r.CountBy(ctx, nil)
}

func (r *baseRepositoryImpl[T]) CountBy(ctx context.Context, pred *types.Predicate) (int64, error) {
	plan, err := r.plan(pred, &queryOptions{})
	if err != nil {
		return 0, err
	}
	if err := r.Flush(ctx); err != nil {
		return 0, err
	}
	return r.count(ctx, plan)
}

// count never joins relations; the predicate only references T's columns.
func (r *baseRepositoryImpl[T]) count(ctx context.Context, plan *selectPlan) (int64, error) {
	n, err := plan.applyWhere(r.Conn(ctx).NewSelect().Model((*T)(nil))).Count(ctx)
	if err != nil {
		return 0, database.Translate(err)
	}
	return int64(n), nil
}

func (r *baseRepositoryImpl[T]) ExistsBy(ctx context.Context, pred *types.Predicate) (bool, error) {
	plan, err := r.plan(pred, &queryOptions{})
	if err != nil {
		return false, err
	}
	if err := r.Flush(ctx); err != nil {
		return false, err
	}
	ok, err := plan.applyWhere(r.Conn(ctx).NewSelect().Model((*T)(nil))).Exists(ctx)
	return ok, database.Translate(err)
}

// Delete removes entity. Deleting an unsaved or already deleted entity is
// not an error.
func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, entity *T) error {
	if entity == nil {
		return nil
	}
	id, ok := r.idOf(entity)
	if !ok {
		return nil
	}
	return r.DeleteByID(ctx, id)
}

func (r *baseRepositoryImpl[T]) DeleteByID(ctx context.Context, id any) error {
	_, err := r.Conn(ctx).NewDelete().
		Model((*T)(nil)).
		Where("? = ?", bun.Ident(r.pk.Name), id).
		Exec(ctx)
	if err != nil {
		return database.Translate(err)
	}
	if pc, ok := PersistenceContextFrom(ctx); ok {
		pc.detach(r.key(id))
	}
	r.evict(ctx, id)
	return nil
}

// FindPage returns the requested window of rows matching pred. The count
// query runs only when the window does not determine the total and never
// joins eager relations.
func (r *baseRepositoryImpl[T]) FindPage(ctx context.Context, pred *types.Predicate, req types.PageRequest, opts ...QueryOption) (*types.Page[*T], error) {
	plan, err := r.windowPlan(pred, req, opts, req.GetPageSize())
	if err != nil {
		return nil, err
	}
	if err := r.Flush(ctx); err != nil {
		return nil, err
	}
	rows := make([]*T, 0)
	q := plan.apply(r.Conn(ctx).NewSelect().Model(&rows)).Offset(req.Offset())
	if err := q.Scan(ctx); err != nil {
		return nil, database.Translate(err)
	}

	total := int64(req.Offset() + len(rows))
	if len(rows) == req.GetPageSize() || (len(rows) == 0 && req.Offset() > 0) {
		if total, err = r.count(ctx, plan); err != nil {
			return nil, err
		}
	}
	return types.NewPage(r.postLoad(ctx, rows, plan), req, total), nil
}

// FindSlice fetches one row past the window to learn whether a next slice
// exists, without counting.
func (r *baseRepositoryImpl[T]) FindSlice(ctx context.Context, pred *types.Predicate, req types.PageRequest, opts ...QueryOption) (*types.Slice[*T], error) {
	plan, err := r.windowPlan(pred, req, opts, req.GetPageSize()+1)
	if err != nil {
		return nil, err
	}
	if err := r.Flush(ctx); err != nil {
		return nil, err
	}
	rows := make([]*T, 0)
	q := plan.apply(r.Conn(ctx).NewSelect().Model(&rows)).Offset(req.Offset())
	if err := q.Scan(ctx); err != nil {
		return nil, database.Translate(err)
	}
	slice := types.NewSlice(rows, req)
	slice.Content = r.postLoad(ctx, slice.Content, plan)
	return slice, nil
}

func (r *baseRepositoryImpl[T]) windowPlan(pred *types.Predicate, req types.PageRequest, opts []QueryOption, limit int) (*selectPlan, error) {
	o := applyQueryOptions(opts)
	o.sort = append(append(types.Sort{}, req.GetSort()...), o.sort...)
	plan, err := r.plan(pred, o)
	if err != nil {
		return nil, err
	}
	plan.limit = limit
	return plan, nil
}

// BulkUpdate applies set to every row matching pred in a single statement
// and returns the number of affected rows. The unit of work is flushed
// before and cleared after the statement, and cached copies of T are
// evicted.
func (r *baseRepositoryImpl[T]) BulkUpdate(ctx context.Context, pred *types.Predicate, set *types.UpdateSet) (int64, error) {
	if err := set.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", database.ErrInvalidQuery, err)
	}
	where, err := whereClauses(r.table, pred, false)
	if err != nil {
		return 0, err
	}
	if err := r.Flush(ctx); err != nil {
		return 0, err
	}

	q := r.Conn(ctx).NewUpdate().Model((*T)(nil))
	assigned := make(map[string]bool)
	for _, a := range set.Assignments() {
		col, err := resolveColumn(r.table, a.Field)
		if err != nil {
			return 0, err
		}
		if col == r.pk.Name {
			return 0, fmt.Errorf("%w: primary key %s cannot be bulk updated", database.ErrInvalidQuery, col)
		}
		if a.Delta {
			q = q.Set("? = ? + ?", bun.Ident(col), bun.Ident(col), a.Value)
		} else {
			q = q.Set("? = ?", bun.Ident(col), a.Value)
		}
		assigned[col] = true
	}
	for _, a := range r.audit.UpdateAssignments(ctx, (*T)(nil)) {
		if !assigned[a.Column] {
			q = q.Set("? = ?", bun.Ident(a.Column), a.Value)
		}
	}
	if len(where) == 0 {
		q = q.Where("1 = 1")
	}
	for _, c := range where {
		q = q.Where(c.query, c.args...)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, database.Translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Translate(err)
	}

	r.Clear(ctx)
	r.evictTable(ctx)
	return n, nil
}

// FindForUpdate reads the rows matching pred and holds a write lock on them
// until the transaction bound to ctx ends. Waiting longer than the lock
// timeout fails with database.ErrLockTimeout.
func (r *baseRepositoryImpl[T]) FindForUpdate(ctx context.Context, pred *types.Predicate, opts ...QueryOption) ([]*T, error) {
	tx, ok := database.TxFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: locking read of %s requires a transaction", database.ErrInvalidQuery, r.table.TypeName)
	}
	plan, err := r.plan(pred, applyQueryOptions(opts))
	if err != nil {
		return nil, err
	}
	if err := r.Flush(ctx); err != nil {
		return nil, err
	}
	restore, err := r.setLockTimeout(ctx, tx)
	if err != nil {
		return nil, err
	}
	defer restore()

	lockCtx := ctx
	if r.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, r.lockTimeout)
		defer cancel()
	}
	rows := make([]*T, 0)
	if err := r.lockedSelect(tx, plan, &rows).Scan(lockCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(lockCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", database.ErrLockTimeout, err)
		}
		return nil, database.Translate(err)
	}
	return r.postLoad(ctx, rows, plan), nil
}

// lockedSelect renders the locking read; sqlite locks the whole database
// for the writing transaction and has no row lock clause.
func (r *baseRepositoryImpl[T]) lockedSelect(idb bun.IDB, plan *selectPlan, dest *[]*T) *bun.SelectQuery {
	q := plan.apply(idb.NewSelect().Model(dest))
	switch r.db.Dialect().Name() {
	case dialect.SQLite:
	case dialect.PG:
		q = q.For("UPDATE OF ?", r.table.SQLAlias)
	default:
		q = q.For("UPDATE")
	}
	return q
}

// lockTimeoutStatements returns the statement bounding lock waits for the
// rest of the transaction and, for MySQL where the setting is session scoped,
// the statement restoring prev once the locked read is done.
func lockTimeoutStatements(name dialect.Name, timeout time.Duration, prev int) (set, restore string) {
	switch name {
	case dialect.PG:
		return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds()), ""
	case dialect.MySQL:
		secs := int(math.Ceil(timeout.Seconds()))
		return fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs),
			fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", prev)
	}
	return "", ""
}

// setLockTimeout applies the lock timeout to tx. The returned func restores
// the previous session value and must be called after the locked read.
func (r *baseRepositoryImpl[T]) setLockTimeout(ctx context.Context, tx bun.Tx) (func(), error) {
	noop := func() {}
	if r.lockTimeout <= 0 {
		return noop, nil
	}
	name := r.db.Dialect().Name()
	prev := 0
	if name == dialect.MySQL {
		if err := tx.QueryRowContext(ctx, "SELECT @@SESSION.innodb_lock_wait_timeout").Scan(&prev); err != nil {
			return nil, database.Translate(err)
		}
	}
	set, restore := lockTimeoutStatements(name, r.lockTimeout, prev)
	if set == "" {
		return noop, nil
	}
	if _, err := tx.ExecContext(ctx, set); err != nil {
		return nil, database.Translate(err)
	}
	if restore == "" {
		return noop, nil
	}
	return func() {
		if _, err := tx.ExecContext(ctx, restore); err != nil {
			r.logger.Warn("Failed to restore lock wait timeout", "table", r.table.Name, "error", err)
		}
	}, nil
}

// Flush writes the pending changes of the unit of work bound to ctx.
func (r *baseRepositoryImpl[T]) Flush(ctx context.Context) error {
	pc, ok := PersistenceContextFrom(ctx)
	if !ok {
		return nil
	}
	return pc.Flush(ctx)
}

// Clear detaches every instance managed by the unit of work bound to ctx.
func (r *baseRepositoryImpl[T]) Clear(ctx context.Context) {
	if pc, ok := PersistenceContextFrom(ctx); ok {
		pc.Clear()
	}
}

func (r *baseRepositoryImpl[T]) Transactional(ctx context.Context, fn func(ctx context.Context) error) error {
	return Transactional(ctx, r.db, fn)
}

// Transactional runs fn as a unit of work: a transaction with a persistence
// context that is flushed before commit. Nested calls join the outer unit.
func Transactional(ctx context.Context, db *bun.DB, fn func(ctx context.Context) error) error {
	return database.RunInTx(ctx, db, nil, func(ctx context.Context, _ bun.Tx) error {
		pc, joined := PersistenceContextFrom(ctx)
		if !joined {
			pc = NewPersistenceContext()
			ctx = WithPersistenceContext(ctx, pc)
			database.GetLogger().Debug("Unit of work started", "unit", pc.ID())
		}
		if err := fn(ctx); err != nil {
			return err
		}
		if joined {
			return nil
		}
		return pc.Flush(ctx)
	})
}
