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
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tomoncle/roster/cache"
)

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type            string        `yaml:"type" json:"type"` // postgres, mysql, sqlite
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"password"`
	DBName          string        `yaml:"dbname" json:"dbname"` // sqlite: file name without .db, or ":memory:"
	SSLMode         string        `yaml:"sslmode" json:"sslmode"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	EnableQueryLog  bool          `yaml:"enable_query_log" json:"enable_query_log"`
	SlowQueryTime   time.Duration `yaml:"slow_query_time" json:"slow_query_time"`
	EnableMetrics   bool          `yaml:"enable_metrics" json:"enable_metrics"`
	Charset         string        `yaml:"charset" json:"charset"` // MySQL: utf8mb4
}

// MigrateConfig controls schema migration behavior on startup.
type MigrateConfig struct {
	EnableMigrateOnStartup bool   `yaml:"enable_migrate_on_startup" json:"enable_migrate_on_startup"`
	EnableForeignKey       bool   `yaml:"enable_foreign_key" json:"enable_foreign_key"`
	ForeignKeyFile         string `yaml:"foreign_key_file" json:"foreign_key_file"`
	SeedPath               string `yaml:"seed_path" json:"seed_path"`
	Environment            string `yaml:"environment" json:"environment"`
}

// QueryConfig holds defaults applied by repositories.
type QueryConfig struct {
	LockTimeout     time.Duration `yaml:"lock_timeout" json:"lock_timeout"`
	DefaultPageSize int           `yaml:"default_page_size" json:"default_page_size"`
}

// LogConfig configures the named loggers.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // text, json
}

// Config aggregates every setting of the data-access layer.
type Config struct {
	Connection ConnectionConfig `yaml:"connection" json:"connection"`
	Migrate    MigrateConfig    `yaml:"migrate" json:"migrate"`
	Cache      cache.Config     `yaml:"cache" json:"cache"`
	Query      QueryConfig      `yaml:"query" json:"query"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:            "sqlite",
		DBName:          "roster",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		ConnectTimeout:  time.Second * 10,
		ReadTimeout:     time.Second * 30,
		WriteTimeout:    time.Second * 30,
		SlowQueryTime:   time.Second * 2,
	}
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Connection: *DefaultConnectionConfig(),
		Migrate: MigrateConfig{
			EnableForeignKey: true,
			SeedPath:         "configs/sql",
			Environment:      "development",
		},
		Cache: cache.DefaultConfig(),
		Query: QueryConfig{
			LockTimeout:     time.Second * 3,
			DefaultPageSize: 10,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads the YAML file at path on top of DefaultConfig, loads an
// optional .env file from the working directory and applies DB_*
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	ApplyEnv(cfg)
	return cfg, nil
}

// ApplyEnv overrides configuration values from environment variables.
func ApplyEnv(cfg *Config) {
	c := &cfg.Connection
	if v := os.Getenv("DB_TYPE"); v != "" {
		c.Type = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Host = v
	}
	envInt("DB_PORT", &c.Port)
	if v := os.Getenv("DB_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.DBName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		c.SSLMode = v
	}
	// Connection pool config
	envInt("DB_MAX_IDLE_CONNS", &c.MaxIdleConns)
	envInt("DB_MAX_OPEN_CONNS", &c.MaxOpenConns)
	envSeconds("DB_CONN_MAX_LIFETIME", &c.ConnMaxLifetime)
	envSeconds("DB_CONN_MAX_IDLE_TIME", &c.ConnMaxIdleTime)
	envBool("DB_ENABLE_QUERY_LOG", &c.EnableQueryLog)
	envBool("DB_ENABLE_METRICS", &c.EnableMetrics)

	envSeconds("DB_LOCK_TIMEOUT", &cfg.Query.LockTimeout)
	if v := os.Getenv("CACHE_DRIVER"); v != "" {
		cfg.Cache.Driver = v
	}
	if v := os.Getenv("CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envSeconds(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
