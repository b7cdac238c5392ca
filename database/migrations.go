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
	"fmt"
	"os"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Migration represents an applied migration record stored in the database.
type Migration struct {
	bun.BaseModel `bun:"table:roster_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// MigrationItem describes a single migration version.
type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

// IndexSpec is a secondary index created by migrations.
type IndexSpec struct {
	Table   string
	Name    string
	Columns []string
	Unique  bool
}

var (
	indexesMu sync.RWMutex
	indexes   []IndexSpec
)

// RegisterIndex adds an index to the set created by migration 002.
func RegisterIndex(idx IndexSpec) {
	indexesMu.Lock()
	defer indexesMu.Unlock()
	for _, existing := range indexes {
		if existing.Name == idx.Name {
			return
		}
	}
	indexes = append(indexes, idx)
}

func RegisteredIndexes() []IndexSpec {
	indexesMu.RLock()
	defer indexesMu.RUnlock()
	out := make([]IndexSpec, len(indexes))
	copy(out, indexes)
	return out
}

// MigrationManager applies versioned migrations exactly once per database.
type MigrationManager struct {
	db     *bun.DB
	logger Logger
	config MigrateConfig
	extra  []MigrationItem
}

func NewMigrationManager(db *bun.DB, logger Logger, config MigrateConfig) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	return &MigrationManager{db: db, logger: logger, config: config}
}

// AddMigration appends an application-defined migration; versions sort as strings.
func (mm *MigrationManager) AddMigration(item MigrationItem) {
	mm.extra = append(mm.extra, item)
}

// RunMigrations creates the tracking table if needed and executes every
// pending migration in ascending version order, each in its own transaction.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	// silent migration
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		EnableBunSqlSilent(true)
		defer EnableBunSqlSilent(false)
	}

	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", Translate(err))
	}

	migrations := mm.migrations()
	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	for _, migration := range migrations {
		if err := mm.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", migration.Version, err)
		}
	}

	mm.logger.Info("Database migrations completed!")
	return nil
}

func (mm *MigrationManager) migrations() []MigrationItem {
	migrations := []MigrationItem{
		{
			Version:     "001",
			Name:        "create_base_tables",
			Description: "Create registered tables with their foreign keys",
			Up:          mm.createBaseTables,
		},
		{
			Version:     "002",
			Name:        "create_indexes",
			Description: "Create registered secondary indexes",
			Up:          mm.createIndexes,
		},
	}
	return append(migrations, mm.extra...)
}

func (mm *MigrationManager) runMigration(ctx context.Context, migration MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", migration.Version).
		Exists(ctx)
	if err != nil {
		return Translate(err)
	}
	if exists {
		return nil
	}

	err = RunInTx(ctx, mm.db, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := migration.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     migration.Version,
			Name:        migration.Name,
			AppliedAt:   time.Now().UTC(),
			Description: migration.Description,
		}).Exec(ctx)
		return Translate(err)
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration executed successfully", "version", migration.Version, "name", migration.Name)
	return nil
}

func (mm *MigrationManager) createBaseTables(ctx context.Context, db bun.IDB) error {
	var fkm *ForeignKeyManager
	if mm.config.EnableForeignKey {
		var err error
		if fkm, err = NewForeignKeyManager(mm.logger, mm.config.ForeignKeyFile); err != nil {
			return fmt.Errorf("foreign key constraint validation failed: %w", err)
		}
	}
	for _, model := range RegisteredModelInstances() {
		q := db.NewCreateTable().Model(model).IfNotExists()
		if fkm != nil {
			table := db.Dialect().Tables().Get(typeOf(model))
			for _, fk := range fkm.GetConstraintsByTable(table.Name) {
				query, args := fk.Clause()
				q = q.ForeignKey(query, args...)
				mm.logger.Debug("Adding foreign key constraint", "constraint", fk.GenerateConstraintName())
			}
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, Translate(err))
		}
	}
	return nil
}

func (mm *MigrationManager) createIndexes(ctx context.Context, db bun.IDB) error {
	mysql := db.Dialect().Name() == dialect.MySQL
	for _, idx := range RegisteredIndexes() {
		q := db.NewCreateIndex().Table(idx.Table).Index(idx.Name).Column(idx.Columns...)
		if idx.Unique {
			q = q.Unique()
		}
		if !mysql {
			q = q.IfNotExists()
		}
		if _, err := q.Exec(ctx); err != nil {
			if is, kind := IsSqlError(err); is && kind == ExistIndexErr {
				continue
			}
			return fmt.Errorf("failed to create index %s: %w", idx.Name, Translate(err))
		}
	}
	return nil
}

func typeOf(model interface{}) reflect.Type {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// GetAppliedMigrations returns migration records ordered by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var migrations []Migration
	err := mm.db.NewSelect().
		Model(&migrations).
		Order("version ASC").
		Scan(ctx)
	return migrations, Translate(err)
}
