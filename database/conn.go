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
	"sync"

	"github.com/uptrace/bun"

	"github.com/tomoncle/roster/cache"
)

var (
	globalMu      sync.RWMutex
	globalFactory *BaseDatabaseFactory
	globalConfig  *Config
	globalCache   cache.Cache
)

// GetDB returns the global Bun database instance.
func GetDB() *bun.DB {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalFactory != nil {
		return globalFactory.GetDB()
	}
	return nil
}

// GetConfig returns the configuration passed to InitDB, or DefaultConfig.
func GetConfig() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalConfig != nil {
		return globalConfig
	}
	return DefaultConfig()
}

// GetCache returns the entity cache shared by every repository built on the
// global database, or nil when caching is disabled or the database is not
// initialized.
func GetCache() cache.Cache {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalCache
}

// GetDatabaseManager returns the global database manager.
func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalFactory != nil {
		return globalFactory.GetManager()
	}
	return nil
}

// InitDB initializes the global database using the provided configuration.
func InitDB(cfg *Config, opts ...ManagerOption) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	return InitDatabaseWithOptions(cfg, cfg.Migrate.EnableMigrateOnStartup, opts...)
}

// InitDatabaseWithOptions initializes the global database and optionally
// runs migrations. A previously initialized database is closed first.
func InitDatabaseWithOptions(cfg *Config, runMigrations bool, opts ...ManagerOption) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	entityCache, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity cache: %w", err)
	}
	factory := NewDatabaseFactory()
	manager, err := factory.CreateFromConfig(cfg, opts...)
	if err == nil {
		err = factory.InitializeDatabase(context.Background(), runMigrations)
		if err != nil {
			err = fmt.Errorf("failed to initialize database: %w", err)
		}
	} else {
		err = fmt.Errorf("failed to create database manager: %w", err)
	}
	if err != nil {
		if entityCache != nil {
			_ = entityCache.Close()
		}
		return nil, err
	}

	db := manager.GetDB()
	db.RegisterModel(RegisteredModelInstances()...)

	globalMu.Lock()
	previous, previousCache := globalFactory, globalCache
	globalFactory, globalConfig, globalCache = factory, cfg, entityCache
	globalMu.Unlock()
	if previousCache != nil {
		_ = previousCache.Close()
	}
	if previous != nil {
		_ = previous.Close()
	}
	return db, nil
}

// CloseDB closes the global database connection.
func CloseDB() error {
	globalMu.Lock()
	factory, entityCache := globalFactory, globalCache
	globalFactory, globalConfig, globalCache = nil, nil, nil
	globalMu.Unlock()
	if entityCache != nil {
		_ = entityCache.Close()
	}
	if factory != nil {
		return factory.Close()
	}
	return nil
}

// GetHealthStatus returns the current database health status.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	globalMu.RLock()
	factory := globalFactory
	globalMu.RUnlock()
	if factory != nil {
		return factory.GetHealthStatus(ctx)
	}
	return &HealthStatus{LastError: "Database not initialized"}
}

// GetDatabaseStats returns global database statistics.
func GetDatabaseStats() *DBStats {
	globalMu.RLock()
	factory := globalFactory
	globalMu.RUnlock()
	if factory != nil {
		return factory.GetStats()
	}
	return &DBStats{}
}

// RunMigrations executes database migrations on the global database.
func RunMigrations(ctx context.Context) error {
	manager := GetDatabaseManager()
	if manager == nil {
		return fmt.Errorf("%w: database not initialized", ErrStoreUnavailable)
	}
	return manager.RunMigrations(ctx)
}

// Seed executes the SQL seed files configured for the global database.
func Seed(ctx context.Context) error {
	manager := GetDatabaseManager()
	if manager == nil {
		return fmt.Errorf("%w: database not initialized", ErrStoreUnavailable)
	}
	return manager.Seed(ctx)
}
