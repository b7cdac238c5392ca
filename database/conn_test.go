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

package database

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/roster/cache"
)

func TestInitDBLifecycle(t *testing.T) {
	_, err := InitDB(nil)
	require.Error(t, err)

	reg := prometheus.NewRegistry()
	cfg := DefaultConfig()
	cfg.Connection.DBName = MemoryDBName
	cfg.Connection.EnableMetrics = true
	cfg.Migrate.EnableMigrateOnStartup = true
	cfg.Migrate.SeedPath = t.TempDir()
	cfg.Cache.Driver = cache.DriverMemory

	db, err := InitDB(cfg, WithMetricsRegisterer(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB() })

	assert.Same(t, db, GetDB())
	assert.Same(t, cfg, GetConfig())
	assert.IsType(t, &cache.Memory{}, GetCache())
	require.NoError(t, RunMigrations(context.Background()))
	require.NoError(t, Seed(context.Background()))

	status := GetHealthStatus(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, status.MaxOpenConns)
	assert.Equal(t, 1, GetDatabaseStats().MaxOpenConns)

	count, err := testutil.GatherAndCount(reg, "roster_db_queries_total")
	require.NoError(t, err)
	assert.Positive(t, count)

	require.NoError(t, CloseDB())
	assert.Nil(t, GetDB())
	assert.Nil(t, GetCache())
	assert.NotSame(t, cfg, GetConfig())
	assert.True(t, IsStoreUnavailable(RunMigrations(context.Background())))
	assert.Equal(t, "Database not initialized", GetHealthStatus(context.Background()).LastError)
}

func TestInitDBRejectsUnknownType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Connection.Type = "oracle"
	_, err := InitDB(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type: oracle")
}

func TestInitDBRejectsBadCacheConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Connection.DBName = MemoryDBName
	cfg.Cache.Driver = cache.DriverRedis
	_, err := InitDB(cfg)
	require.Error(t, err)
	assert.Nil(t, GetDB())
	assert.Nil(t, GetCache())
}

func TestManagerPingAfterDisconnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Connection.DBName = MemoryDBName
	dm := NewDatabaseManager(cfg)
	ctx := context.Background()
	require.NoError(t, dm.Connect(ctx))
	require.NoError(t, dm.Ping(ctx))
	require.NoError(t, dm.Disconnect())
	assert.True(t, IsStoreUnavailable(dm.Ping(ctx)))
	assert.Equal(t, &DBStats{}, dm.GetStats())
}

// cancelPragma fails PRAGMA statements by running them on a canceled context.
type cancelPragma struct{}

func (cancelPragma) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	if strings.HasPrefix(event.Query, "PRAGMA") {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		return canceled
	}
	return ctx
}

func (cancelPragma) AfterQuery(context.Context, *bun.QueryEvent) {}

func TestManagerConnectClosesOnPragmaFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Connection.DBName = MemoryDBName
	dm := NewDatabaseManager(cfg, WithQueryHooks(cancelPragma{}))
	ctx := context.Background()

	err := dm.Connect(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to enable sqlite foreign keys")
	assert.Nil(t, dm.GetDB())
	assert.Nil(t, dm.GetSQLDB())
	assert.True(t, IsStoreUnavailable(dm.Ping(ctx)))
	assert.NotEmpty(t, dm.HealthCheck(ctx).LastError)
}
