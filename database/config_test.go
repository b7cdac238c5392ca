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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Connection.Type)
	assert.Equal(t, 3*time.Second, cfg.Query.LockTimeout)
	assert.Equal(t, 10, cfg.Query.DefaultPageSize)
	assert.Equal(t, "none", cfg.Cache.Driver)
	assert.True(t, cfg.Migrate.EnableForeignKey)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`connection:
  type: postgres
  host: db.internal
  port: 5432
  dbname: roster
cache:
  driver: redis
  addr: localhost:6379
  ttl: 1m
query:
  lock_timeout: 500ms
log:
  level: debug
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DB_PASSWORD=from-dotenv\n"), 0o644))
	t.Setenv("DB_HOST", "override.internal")
	t.Setenv("DB_LOCK_TIMEOUT", "7")
	// restored on cleanup after godotenv sets it
	t.Setenv("DB_PASSWORD", "")
	require.NoError(t, os.Unsetenv("DB_PASSWORD"))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Connection.Type)
	assert.Equal(t, "override.internal", cfg.Connection.Host)
	assert.Equal(t, 5432, cfg.Connection.Port)
	assert.Equal(t, "from-dotenv", cfg.Connection.Password)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 7*time.Second, cfg.Query.LockTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 100, cfg.Connection.MaxOpenConns)
}

func TestLoadConfigRejectsBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := LoadConfig(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connection: [unterminated"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
