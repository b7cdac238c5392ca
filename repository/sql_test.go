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
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/roster/cache"
	"github.com/tomoncle/roster/entity"
	"github.com/tomoncle/roster/types"
)

// offlineDB renders queries for d without talking to its server.
func offlineDB(t *testing.T, d schema.Dialect) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	return bun.NewDB(sqldb, d)
}

func TestLockedSelectPerDialect(t *testing.T) {
	tests := []struct {
		name     string
		dialect  schema.Dialect
		contains []string
		excludes []string
	}{
		{
			name:     "postgres",
			dialect:  pgdialect.New(),
			contains: []string{`"m"."username" = 'm1'`, `FOR UPDATE OF "m"`, `LEFT JOIN "team" AS "team"`},
		},
		{
			name:     "mysql",
			dialect:  mysqldialect.New(),
			contains: []string{"`m`.`username` = 'm1'", "FOR UPDATE"},
		},
		{
			name:     "sqlite",
			dialect:  sqlitedialect.New(),
			contains: []string{`"m"."username" = 'm1'`},
			excludes: []string{"FOR UPDATE"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := offlineDB(t, tt.dialect)
			repo, err := newRepository[entity.Member](db)
			require.NoError(t, err)

			plan, err := repo.plan(types.Eq("Username", "m1"), applyQueryOptions([]QueryOption{WithEager("Team")}))
			require.NoError(t, err)
			var rows []*entity.Member
			query := repo.lockedSelect(db, plan, &rows).String()
			for _, s := range tt.contains {
				assert.Contains(t, query, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, query, s)
			}
		})
	}
}

func TestWhereClausesRendering(t *testing.T) {
	db := offlineDB(t, pgdialect.New())
	repo, err := newRepository[entity.Member](db)
	require.NoError(t, err)

	pred := types.Eq("Username", "a").
		And("Age", types.OpGte, 20).
		And("TeamID", types.OpIn, []int64{1, 2}).
		And("TeamID", types.OpNe, nil)
	plan, err := repo.plan(pred, applyQueryOptions([]QueryOption{WithSort(types.Desc("age"))}))
	require.NoError(t, err)

	var rows []*entity.Member
	query := plan.apply(db.NewSelect().Model(&rows)).String()
	assert.Contains(t, query, `"m"."username" = 'a'`)
	assert.Contains(t, query, `"m"."age" >= 20`)
	assert.Contains(t, query, `"m"."team_id" IN (1, 2)`)
	assert.Contains(t, query, `"m"."team_id" IS NOT NULL`)
	assert.Contains(t, query, `ORDER BY "m"."age" DESC`)
}

func TestFetchDefaultsFollowTags(t *testing.T) {
	db := offlineDB(t, sqlitedialect.New())
	repo, err := newRepository[entity.Member](db)
	require.NoError(t, err)
	assert.Equal(t, types.FetchLazy, repo.fetch["Team"])

	relations, err := eagerRelations(repo.table, repo.fetch, applyQueryOptions(nil))
	require.NoError(t, err)
	assert.Empty(t, relations)

	relations, err = eagerRelations(repo.table, repo.fetch, applyQueryOptions([]QueryOption{
		WithEager("Team"),
		WithFetch("Team", types.FetchLazy),
	}))
	require.NoError(t, err)
	assert.Empty(t, relations)
}

func TestRepositoryRejectsModelsWithoutSinglePK(t *testing.T) {
	type keyless struct {
		bun.BaseModel `bun:"table:keyless"`
		Name          string `bun:"name"`
	}
	_, err := NewRepository[keyless](offlineDB(t, sqlitedialect.New()))
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	s := defaultSettings()
	WithLockTimeout(time.Second)(s)
	assert.Equal(t, time.Second, s.lockTimeout)
	WithCacheConfig(cache.Config{Namespace: "app", TTL: time.Hour})(s)
	assert.Equal(t, "app", s.namespace)
	assert.Equal(t, time.Hour, s.cacheTTL)
}

func TestLockTimeoutStatementsPerDialect(t *testing.T) {
	set, restore := lockTimeoutStatements(dialect.PG, 1500*time.Millisecond, 0)
	assert.Equal(t, "SET LOCAL lock_timeout = '1500ms'", set)
	assert.Empty(t, restore, "SET LOCAL ends with the transaction")

	set, restore = lockTimeoutStatements(dialect.MySQL, 1500*time.Millisecond, 50)
	assert.Equal(t, "SET SESSION innodb_lock_wait_timeout = 2", set)
	assert.Equal(t, "SET SESSION innodb_lock_wait_timeout = 50", restore)

	set, restore = lockTimeoutStatements(dialect.SQLite, time.Second, 0)
	assert.Empty(t, set)
	assert.Empty(t, restore)
}
