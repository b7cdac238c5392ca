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
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

// ForeignKeyConstraint describes a foreign key relationship between tables.
type ForeignKeyConstraint struct {
	Table           string `yaml:"table"`
	Column          string `yaml:"column"`
	ReferenceTable  string `yaml:"reference_table"`
	ReferenceColumn string `yaml:"reference_column"`
	OnDelete        string `yaml:"on_delete"` // CASCADE, RESTRICT, SET NULL, NO ACTION
	OnUpdate        string `yaml:"on_update"`
	ConstraintName  string `yaml:"constraint_name"`
}

var referentialActions = []string{"CASCADE", "RESTRICT", "SET NULL", "NO ACTION"}

// GenerateConstraintName returns the explicit name or a derived name.
func (fk *ForeignKeyConstraint) GenerateConstraintName() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
}

// Clause returns the body of a FOREIGN KEY clause for CREATE TABLE, the only
// form sqlite accepts.
func (fk *ForeignKeyConstraint) Clause() (string, []interface{}) {
	query := "(?) REFERENCES ? (?)"
	args := []interface{}{bun.Ident(fk.Column), bun.Ident(fk.ReferenceTable), bun.Ident(fk.ReferenceColumn)}
	if fk.OnDelete != "" {
		query += " ON DELETE " + strings.ToUpper(fk.OnDelete)
	}
	if fk.OnUpdate != "" {
		query += " ON UPDATE " + strings.ToUpper(fk.OnUpdate)
	}
	return query, args
}

// GenerateSQL returns the ALTER TABLE statement that adds the constraint to
// an existing table (postgres and mysql).
func (fk *ForeignKeyConstraint) GenerateSQL() string {
	sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
		fk.Table, fk.GenerateConstraintName(), fk.Column, fk.ReferenceTable, fk.ReferenceColumn)
	if fk.OnDelete != "" {
		sql += fmt.Sprintf(" ON DELETE %s", strings.ToUpper(fk.OnDelete))
	}
	if fk.OnUpdate != "" {
		sql += fmt.Sprintf(" ON UPDATE %s", strings.ToUpper(fk.OnUpdate))
	}
	return sql
}

// Validate checks the constraint for missing names and unknown actions.
func (fk *ForeignKeyConstraint) Validate() error {
	var errs []error
	if fk.Table == "" {
		errs = append(errs, fmt.Errorf("table name cannot be empty"))
	}
	if fk.Column == "" {
		errs = append(errs, fmt.Errorf("column name cannot be empty: %s", fk.Table))
	}
	if fk.ReferenceTable == "" {
		errs = append(errs, fmt.Errorf("reference table name cannot be empty: %s.%s", fk.Table, fk.Column))
	}
	if fk.ReferenceColumn == "" {
		errs = append(errs, fmt.Errorf("reference column name cannot be empty: %s.%s -> %s", fk.Table, fk.Column, fk.ReferenceTable))
	}
	for _, action := range []string{fk.OnDelete, fk.OnUpdate} {
		if action != "" && !validAction(action) {
			errs = append(errs, fmt.Errorf("invalid referential action: %s, constraint: %s", action, fk.GenerateConstraintName()))
		}
	}
	return errors.Join(errs...)
}

func validAction(action string) bool {
	for _, a := range referentialActions {
		if strings.EqualFold(action, a) {
			return true
		}
	}
	return false
}

// ForeignKeyConfig is the YAML structure that lists foreign key constraints.
type ForeignKeyConfig struct {
	ForeignKeys []ForeignKeyConstraint `yaml:"foreign_keys"`
}

var (
	foreignKeysMu sync.RWMutex
	foreignKeys   []ForeignKeyConstraint
)

// RegisterForeignKey adds a code-defined constraint; duplicates by name are ignored.
func RegisterForeignKey(fk ForeignKeyConstraint) {
	foreignKeysMu.Lock()
	defer foreignKeysMu.Unlock()
	for _, existing := range foreignKeys {
		if existing.GenerateConstraintName() == fk.GenerateConstraintName() {
			return
		}
	}
	foreignKeys = append(foreignKeys, fk)
}

func RegisteredForeignKeys() []ForeignKeyConstraint {
	foreignKeysMu.RLock()
	defer foreignKeysMu.RUnlock()
	out := make([]ForeignKeyConstraint, len(foreignKeys))
	copy(out, foreignKeys)
	return out
}

// ForeignKeyManager resolves the constraints that migrations apply.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	logger      Logger
}

// NewForeignKeyManager uses the registered constraints, extended by the YAML
// file at configPath when it is not empty. File entries replace registered
// entries with the same constraint name.
func NewForeignKeyManager(logger Logger, configPath string) (*ForeignKeyManager, error) {
	constraints := RegisteredForeignKeys()
	if configPath != "" {
		fromFile, err := LoadForeignKeyFile(configPath)
		if err != nil {
			return nil, err
		}
		constraints = mergeConstraints(constraints, fromFile)
		if logger != nil {
			logger.Debug("Loaded foreign key constraints from config", "config_path", configPath, "count", len(fromFile))
		}
	}
	m := &ForeignKeyManager{constraints: constraints, logger: logger}
	if err := m.ValidateConstraints(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadForeignKeyFile parses a foreign key YAML file.
func LoadForeignKeyFile(path string) ([]ForeignKeyConstraint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign key file: %w", err)
	}
	var cfg ForeignKeyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse foreign key file: %w", err)
	}
	return cfg.ForeignKeys, nil
}

func mergeConstraints(base, override []ForeignKeyConstraint) []ForeignKeyConstraint {
	out := make([]ForeignKeyConstraint, 0, len(base)+len(override))
	names := make(map[string]int)
	for _, fk := range append(base, override...) {
		if i, ok := names[fk.GenerateConstraintName()]; ok {
			out[i] = fk
			continue
		}
		names[fk.GenerateConstraintName()] = len(out)
		out = append(out, fk)
	}
	return out
}

// GetConstraintsByTable returns the constraints defined for a table.
func (fkm *ForeignKeyManager) GetConstraintsByTable(tableName string) []ForeignKeyConstraint {
	var result []ForeignKeyConstraint
	for _, constraint := range fkm.constraints {
		if strings.EqualFold(constraint.Table, tableName) {
			result = append(result, constraint)
		}
	}
	return result
}

// ListAllConstraints returns all configured constraints.
func (fkm *ForeignKeyManager) ListAllConstraints() []ForeignKeyConstraint {
	return fkm.constraints
}

// ValidateConstraints checks every constraint and joins the failures.
func (fkm *ForeignKeyManager) ValidateConstraints() error {
	var errs []error
	for i := range fkm.constraints {
		if err := fkm.constraints[i].Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
