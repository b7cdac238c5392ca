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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForeignKeyConstraint(t *testing.T) {
	fk := ForeignKeyConstraint{Table: "book", Column: "author_id", ReferenceTable: "author", ReferenceColumn: "author_id", OnDelete: "set null"}
	require.NoError(t, fk.Validate())
	assert.Equal(t, "fk_book_author_id", fk.GenerateConstraintName())
	assert.Equal(t, "ALTER TABLE book ADD CONSTRAINT fk_book_author_id FOREIGN KEY (author_id) REFERENCES author(author_id) ON DELETE SET NULL", fk.GenerateSQL())

	query, args := fk.Clause()
	assert.Equal(t, "(?) REFERENCES ? (?) ON DELETE SET NULL", query)
	assert.Len(t, args, 3)

	bad := ForeignKeyConstraint{Table: "book", OnUpdate: "EXPLODE"}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column name cannot be empty")
	assert.Contains(t, err.Error(), "invalid referential action: EXPLODE")
}

func TestForeignKeyFileOverridesRegistered(t *testing.T) {
	RegisterForeignKey(ForeignKeyConstraint{Table: "fk_child", Column: "parent_id", ReferenceTable: "fk_parent", ReferenceColumn: "id"})
	RegisterForeignKey(ForeignKeyConstraint{Table: "fk_child", Column: "parent_id", ReferenceTable: "ignored", ReferenceColumn: "id"})

	path := filepath.Join(t.TempDir(), "foreign_keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`foreign_keys:
  - table: fk_child
    column: parent_id
    reference_table: fk_parent
    reference_column: id
    on_delete: CASCADE
  - table: fk_other
    column: child_id
    reference_table: fk_child
    reference_column: id
`), 0o644))

	fkm, err := NewForeignKeyManager(nil, path)
	require.NoError(t, err)

	child := fkm.GetConstraintsByTable("FK_CHILD")
	require.Len(t, child, 1)
	assert.Equal(t, "fk_parent", child[0].ReferenceTable)
	assert.Equal(t, "CASCADE", child[0].OnDelete)
	assert.Len(t, fkm.GetConstraintsByTable("fk_other"), 1)
}

func TestForeignKeyFileErrors(t *testing.T) {
	_, err := NewForeignKeyManager(nil, filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("foreign_keys:\n  - table: t\n"), 0o644))
	_, err = NewForeignKeyManager(nil, path)
	assert.Error(t, err)
}
