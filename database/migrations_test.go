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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type testAuthor struct {
	bun.BaseModel `bun:"table:mig_author"`

	ID   int64  `bun:"author_id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type testBook struct {
	bun.BaseModel `bun:"table:mig_book"`

	ID       int64  `bun:"book_id,pk,autoincrement"`
	Title    string `bun:"title,notnull"`
	AuthorID int64  `bun:"author_id,nullzero"`
}

var registerTestModels sync.Once

func migrateMemory(t *testing.T) (*bun.DB, *MigrationManager) {
	t.Helper()
	registerTestModels.Do(func() {
		RegisteredModel(NewModelAdapter((*testBook)(nil), 20))
		RegisteredModel(NewModelAdapter((*testAuthor)(nil), 10))
		RegisterForeignKey(ForeignKeyConstraint{Table: "mig_book", Column: "author_id", ReferenceTable: "mig_author", ReferenceColumn: "author_id"})
		RegisterIndex(IndexSpec{Table: "mig_book", Name: "idx_mig_book_title", Columns: []string{"title"}})
	})
	db := openMemory(t)
	cfg := DefaultConfig().Migrate
	return db, NewMigrationManager(db, nil, cfg)
}

func TestRegisteredModelsFollowPriority(t *testing.T) {
	migrateMemory(t)
	var names []string
	for _, m := range RegisteredModelInstances() {
		switch m.(type) {
		case *testAuthor:
			names = append(names, "author")
		case *testBook:
			names = append(names, "book")
		}
	}
	assert.Equal(t, []string{"author", "book"}, names)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db, mm := migrateMemory(t)
	ctx := context.Background()
	require.NoError(t, mm.RunMigrations(ctx))
	require.NoError(t, mm.RunMigrations(ctx))

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "001", applied[0].Version)
	assert.Equal(t, "create_indexes", applied[1].Name)

	_, err = db.NewInsert().Model(&testAuthor{Name: "ann"}).Exec(ctx)
	require.NoError(t, err)
}

func TestMigrationsCreateForeignKeys(t *testing.T) {
	db, mm := migrateMemory(t)
	ctx := context.Background()
	require.NoError(t, mm.RunMigrations(ctx))

	_, err := db.NewInsert().Model(&testBook{Title: "orphan", AuthorID: 42}).Exec(ctx)
	assert.True(t, IsConstraintViolation(Translate(err)))
}

func TestAddMigrationRunsOnce(t *testing.T) {
	db, mm := migrateMemory(t)
	ctx := context.Background()
	calls := 0
	mm.AddMigration(MigrationItem{
		Version: "100",
		Name:    "add_note",
		Up: func(ctx context.Context, db bun.IDB) error {
			calls++
			_, err := db.ExecContext(ctx, "CREATE TABLE mig_note (id INTEGER PRIMARY KEY)")
			return err
		},
	})
	require.NoError(t, mm.RunMigrations(ctx))
	require.NoError(t, mm.RunMigrations(ctx))
	assert.Equal(t, 1, calls)

	exists, err := db.NewSelect().Model((*Migration)(nil)).Where("version = ?", "100").Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFailedMigrationIsNotRecorded(t *testing.T) {
	db, mm := migrateMemory(t)
	ctx := context.Background()
	mm.AddMigration(MigrationItem{
		Version: "200",
		Name:    "broken",
		Up: func(ctx context.Context, db bun.IDB) error {
			_, err := db.ExecContext(ctx, "CREATE TABLE")
			return Translate(err)
		},
	})
	err := mm.RunMigrations(ctx)
	require.Error(t, err)
	assert.True(t, IsInvalidQuery(err))

	exists, err := db.NewSelect().Model((*Migration)(nil)).Where("version = ?", "200").Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}
