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
	"fmt"
	"sort"
	"strings"

	"github.com/tomoncle/roster/database"
	"github.com/tomoncle/roster/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type clause struct {
	query string
	args  []interface{}
}

// resolveColumn maps a struct field name or column name of table to its
// column.
func resolveColumn(table *schema.Table, field string) (string, error) {
	if f, ok := table.FieldMap[field]; ok {
		return f.Name, nil
	}
	for _, f := range table.Fields {
		if strings.EqualFold(f.GoName, field) {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("%w: unknown field %q on %s", database.ErrInvalidQuery, field, table.Name)
}

// whereClauses renders pred against table. Qualified clauses reference the
// table alias and are used by selects that may join relations.
func whereClauses(table *schema.Table, pred *types.Predicate, qualified bool) ([]clause, error) {
	if err := pred.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", database.ErrInvalidQuery, err)
	}
	ref := "?"
	if qualified {
		ref = "?TableAlias.?"
	}
	var out []clause
	for _, c := range pred.Conditions() {
		col, err := resolveColumn(table, c.Field)
		if err != nil {
			return nil, err
		}
		ident := bun.Ident(col)
		op := c.Op
		if c.Value == nil && op == types.OpEq {
			op = types.OpIsNull
		} else if c.Value == nil && op == types.OpNe {
			op = types.OpNotNull
		}
		switch {
		case op.Unary():
			out = append(out, clause{query: ref + " " + op.Name(), args: []interface{}{ident}})
		case op == types.OpIn:
			out = append(out, clause{query: ref + " IN (?)", args: []interface{}{ident, bun.In(c.Value)}})
		default:
			out = append(out, clause{query: ref + " " + op.Name() + " ?", args: []interface{}{ident, c.Value}})
		}
	}
	return out, nil
}

func orderClauses(table *schema.Table, orders types.Sort) ([]clause, error) {
	out := make([]clause, 0, len(orders))
	for _, o := range orders {
		col, err := resolveColumn(table, o.Field)
		if err != nil {
			return nil, err
		}
		if !o.Direction.IsValid() {
			return nil, fmt.Errorf("%w: invalid sort direction on %s", database.ErrInvalidQuery, o.Field)
		}
		out = append(out, clause{query: "?TableAlias.? " + o.Direction.Name(), args: []interface{}{bun.Ident(col)}})
	}
	return out, nil
}

// fetchDefaults reads the fetch tag of every relation of table.
func fetchDefaults(table *schema.Table) (map[string]types.FetchMode, error) {
	out := make(map[string]types.FetchMode, len(table.Relations))
	for name, rel := range table.Relations {
		mode := types.FetchLazy
		if tag := rel.Field.StructField.Tag.Get("fetch"); tag != "" {
			m, ok := types.ParseFetchMode(tag)
			if !ok {
				return nil, fmt.Errorf("invalid fetch tag %q on %s.%s", tag, table.TypeName, name)
			}
			mode = m
		}
		out[name] = mode
	}
	return out, nil
}

// eagerRelations merges the per-call fetch overrides into defaults and
// returns the relations to load, sorted by name.
func eagerRelations(table *schema.Table, defaults map[string]types.FetchMode, o *queryOptions) ([]string, error) {
	modes := make(map[string]types.FetchMode, len(defaults))
	for name, mode := range defaults {
		modes[name] = mode
	}
	for name, mode := range o.fetch {
		if _, ok := table.Relations[name]; !ok {
			return nil, fmt.Errorf("%w: unknown relation %q on %s", database.ErrInvalidQuery, name, table.TypeName)
		}
		modes[name] = mode
	}
	var out []string
	for name, mode := range modes {
		if mode == types.FetchEager {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// selectPlan is a resolved finder call.
type selectPlan struct {
	where     []clause
	order     []clause
	relations []string
	limit     int
	readOnly  bool
}

func (p *selectPlan) apply(q *bun.SelectQuery) *bun.SelectQuery {
	for _, c := range p.where {
		q = q.Where(c.query, c.args...)
	}
	for _, c := range p.order {
		q = q.OrderExpr(c.query, c.args...)
	}
	for _, rel := range p.relations {
		q = q.Relation(rel)
	}
	if p.limit > 0 {
		q = q.Limit(p.limit)
	}
	return q
}

// applyWhere applies only the predicate, as count queries do.
func (p *selectPlan) applyWhere(q *bun.SelectQuery) *bun.SelectQuery {
	for _, c := range p.where {
		q = q.Where(c.query, c.args...)
	}
	return q
}
