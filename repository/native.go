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
	"strings"

	"github.com/tomoncle/roster/database"
	"github.com/tomoncle/roster/types"

	"github.com/uptrace/bun"
)

// NativeQuery runs query as written and scans every row into P. Arguments
// bind to ? placeholders in order, or to :name placeholders when the only
// argument is a types.NamedArgs.
func NativeQuery[P any](ctx context.Context, q Querier, query string, args ...interface{}) ([]P, error) {
	query, args, err := bindArgs(query, args)
	if err != nil {
		return nil, err
	}
	if err := q.Flush(ctx); err != nil {
		return nil, err
	}
	out := make([]P, 0)
	if err := q.Conn(ctx).NewRaw(query, args...).Scan(ctx, &out); err != nil {
		return nil, database.Translate(err)
	}
	return out, nil
}

// NativePage runs query for the window of req, ordered by the request sort,
// and countQuery for the total. An empty countQuery counts the rows of
// query.
func NativePage[P any](ctx context.Context, q Querier, query, countQuery string, req types.PageRequest, args ...interface{}) (*types.Page[P], error) {
	bound, boundArgs, err := bindArgs(query, args)
	if err != nil {
		return nil, err
	}
	count, countArgs := "SELECT count(*) FROM ("+bound+") AS native_count", boundArgs
	if countQuery != "" {
		if count, countArgs, err = bindArgs(countQuery, args); err != nil {
			return nil, err
		}
	}
	if err := q.Flush(ctx); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM (")
	sb.WriteString(bound)
	sb.WriteString(") AS native_page")
	windowArgs := append([]interface{}{}, boundArgs...)
	for i, o := range req.GetSort() {
		if !o.Direction.IsValid() {
			return nil, fmt.Errorf("%w: invalid sort direction on %s", database.ErrInvalidQuery, o.Field)
		}
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString("? " + o.Direction.Name())
		windowArgs = append(windowArgs, bun.Ident(o.Field))
	}
	sb.WriteString(" LIMIT ? OFFSET ?")
	windowArgs = append(windowArgs, req.GetPageSize(), req.Offset())

	idb := q.Conn(ctx)
	content := make([]P, 0)
	if err := idb.NewRaw(sb.String(), windowArgs...).Scan(ctx, &content); err != nil {
		return nil, database.Translate(err)
	}
	var total int64
	if err := idb.NewRaw(count, countArgs...).Scan(ctx, &total); err != nil {
		return nil, database.Translate(err)
	}
	return types.NewPage(content, req, total), nil
}

func bindArgs(query string, args []interface{}) (string, []interface{}, error) {
	if len(args) != 1 {
		return query, args, nil
	}
	named, ok := args[0].(types.NamedArgs)
	if !ok {
		return query, args, nil
	}
	bound, ordered, err := types.BindNamed(query, named)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", database.ErrInvalidQuery, err)
	}
	for i, arg := range ordered {
		if lit, ok := arg.(types.Literal); ok {
			ordered[i] = bun.Safe(lit)
		}
	}
	return bound, ordered, nil
}
