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

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/roster/database"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	seeds := filepath.Join(dir, "sql", "common")
	require.NoError(t, os.MkdirAll(seeds, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(seeds, "001_team.sql"), []byte(
		"INSERT INTO team (name, created_at, updated_at)\n"+
			"SELECT 'teamZ', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP\n"+
			"WHERE NOT EXISTS (SELECT 1 FROM team WHERE name = 'teamZ');\n"), 0o644))

	cfg := `connection:
  type: sqlite
  dbname: ` + filepath.Join(dir, "roster") + `
migrate:
  enable_migrate_on_startup: true
  enable_foreign_key: true
  seed_path: ` + filepath.Join(dir, "sql") + `
query:
  default_page_size: 2
`
	path := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func countRows(t *testing.T, table string) int {
	t.Helper()
	n, err := database.GetDB().NewSelect().Table(table).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestSeedDemoIsRepeatable(t *testing.T) {
	path := writeConfig(t)
	t.Cleanup(func() { _ = database.CloseDB() })

	require.NoError(t, run(t, "--config", path, "seed", "--demo"))
	assert.Equal(t, 3, countRows(t, "team"))
	assert.Equal(t, 4, countRows(t, "member"))

	require.NoError(t, run(t, "--config", path, "seed", "--demo", "--out", "json"))
	assert.Equal(t, 4, countRows(t, "member"))
}

func TestSeedDemoCountsAddedMembers(t *testing.T) {
	path := writeConfig(t)
	t.Cleanup(func() { _ = database.CloseDB() })
	require.NoError(t, run(t, "--config", path, "seed", "--demo"))

	ctx := context.Background()
	_, err := database.GetDB().NewDelete().Table("member").Where("username = ?", "member4").Exec(ctx)
	require.NoError(t, err)

	a := &app{cfg: database.GetConfig()}
	members, teams, err := a.repositories()
	require.NoError(t, err)
	added, err := seedDemo(ctx, members, teams)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = seedDemo(ctx, members, teams)
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Equal(t, 4, countRows(t, "member"))
}

func TestListingCommands(t *testing.T) {
	path := writeConfig(t)
	t.Cleanup(func() { _ = database.CloseDB() })

	require.NoError(t, run(t, "--config", path, "migrate"))
	require.NoError(t, run(t, "--config", path, "seed", "--demo"))
	assert.NoError(t, run(t, "--config", path, "members", "list"))
	assert.NoError(t, run(t, "--config", path, "members", "list", "--username", "member1"))
	assert.NoError(t, run(t, "--config", path, "members", "page", "--age", "20"))
	assert.NoError(t, run(t, "--config", path, "--out", "json", "teams", "--members"))
}

func TestMissingConfigFails(t *testing.T) {
	err := run(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "teams")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
