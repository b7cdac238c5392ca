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

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Cache is the second-level entity cache shared across units of work.
// Values are opaque encoded entities.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config selects and tunes the cache backend.
type Config struct {
	Driver    string        `yaml:"driver" json:"driver"`
	Addr      string        `yaml:"addr" json:"addr"`
	Password  string        `yaml:"password" json:"password"`
	DB        int           `yaml:"db" json:"db"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
	Namespace string        `yaml:"namespace" json:"namespace"`
}

// DefaultConfig disables caching.
func DefaultConfig() Config {
	return Config{Driver: DriverNone, TTL: 5 * time.Minute, Namespace: "roster"}
}

var ErrUnsupportedDriver = errors.New("unsupported cache driver")

// New builds the backend named by cfg.Driver. The none driver (or an empty
// driver) returns a nil Cache, which callers treat as caching disabled.
func New(cfg Config) (Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	switch strings.ToLower(cfg.Driver) {
	case "", DriverNone:
		return nil, nil
	case DriverMemory:
		return NewMemory(cfg.TTL), nil
	case DriverRedis:
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redis cache requires an address")
		}
		return NewRedis(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.Driver)
	}
}

// Key builds the cache key of one entity.
func Key(namespace, table string, id interface{}) string {
	return fmt.Sprintf("%s%v", TablePrefix(namespace, table), id)
}

// TablePrefix is the key prefix shared by every entity of table.
func TablePrefix(namespace, table string) string {
	if namespace == "" {
		return table + ":"
	}
	return namespace + ":" + table + ":"
}
