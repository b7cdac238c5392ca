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
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/tomoncle/roster/database"
	"github.com/tomoncle/roster/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Projector is a repository whose rows can be read through reduced views.
type Projector interface {
	Querier
	Table() *schema.Table
	Dialect() schema.Dialect
}

// FindProjections selects only the columns of the view P for the rows
// matching pred. A P field maps to the model column named by its bun tag.
// A field tagged source:"Relation.column" reads column of the belongs-to
// relation, joined without selecting its other columns.
func FindProjections[P any](ctx context.Context, src Projector, pred *types.Predicate, opts ...QueryOption) ([]P, error) {
	table := src.Table()
	view := reflect.TypeOf((*P)(nil)).Elem()
	if view.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: projection %s is not a struct", database.ErrInvalidQuery, view)
	}
	columns, joins, err := projectionColumns(table, src.Dialect().Tables().Get(view))
	if err != nil {
		return nil, err
	}
	q, err := projectionQuery(ctx, src, pred, opts)
	if err != nil {
		return nil, err
	}
	for _, rel := range joins {
		q = q.Relation(rel, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.ExcludeColumn("*")
		})
	}
	for _, c := range columns {
		q = q.ColumnExpr(c.query, c.args...)
	}

	out := make([]P, 0)
	if err := q.Scan(ctx, &out); err != nil {
		return nil, database.Translate(err)
	}
	return out, nil
}

// FindScalars selects a single column for the rows matching pred.
func FindScalars[V any](ctx context.Context, src Projector, field string, pred *types.Predicate, opts ...QueryOption) ([]V, error) {
	col, err := resolveColumn(src.Table(), field)
	if err != nil {
		return nil, err
	}
	q, err := projectionQuery(ctx, src, pred, opts)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0)
	if err := q.ColumnExpr("?TableAlias.?", bun.Ident(col)).Scan(ctx, &out); err != nil {
		return nil, database.Translate(err)
	}
	return out, nil
}

func projectionQuery(ctx context.Context, src Projector, pred *types.Predicate, opts []QueryOption) (*bun.SelectQuery, error) {
	table := src.Table()
	o := applyQueryOptions(opts)
	where, err := whereClauses(table, pred, true)
	if err != nil {
		return nil, err
	}
	order, err := orderClauses(table, o.sort)
	if err != nil {
		return nil, err
	}
	if err := src.Flush(ctx); err != nil {
		return nil, err
	}
	plan := &selectPlan{where: where, order: order, limit: o.limit}
	return plan.apply(src.Conn(ctx).NewSelect().Model(reflect.New(table.Type).Interface())), nil
}

func projectionColumns(table, view *schema.Table) ([]clause, []string, error) {
	var (
		columns []clause
		joined  = make(map[string]bool)
	)
	for _, f := range view.Fields {
		source := f.StructField.Tag.Get("source")
		if source == "" {
			if _, ok := table.FieldMap[f.Name]; !ok {
				return nil, nil, fmt.Errorf("%w: %s has no column %q for %s.%s",
					database.ErrInvalidQuery, table.TypeName, f.Name, view.TypeName, f.GoName)
			}
			columns = append(columns, clause{
				query: "?TableAlias.? AS ?",
				args:  []interface{}{bun.Ident(f.Name), bun.Ident(f.Name)},
			})
			continue
		}

		relName, relCol, ok := strings.Cut(source, ".")
		rel, found := table.Relations[relName]
		if !ok || !found || rel.Type != schema.BelongsToRelation {
			return nil, nil, fmt.Errorf("%w: source %q of %s.%s is not a belongs-to column",
				database.ErrInvalidQuery, source, view.TypeName, f.GoName)
		}
		col, err := resolveColumn(rel.JoinTable, relCol)
		if err != nil {
			return nil, nil, err
		}
		joined[relName] = true
		columns = append(columns, clause{
			query: "?.? AS ?",
			args:  []interface{}{bun.Ident(rel.Field.Name), bun.Ident(col), bun.Ident(f.Name)},
		})
	}

	joins := make([]string, 0, len(joined))
	for name := range joined {
		joins = append(joins, name)
	}
	sort.Strings(joins)
	return columns, joins, nil
}
