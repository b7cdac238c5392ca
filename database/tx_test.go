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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func openMemory(t *testing.T) *bun.DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Connection.DBName = MemoryDBName
	dm := NewDatabaseManager(cfg)
	require.NoError(t, dm.Connect(context.Background()))
	t.Cleanup(func() { _ = dm.Disconnect() })
	return dm.GetDB()
}

func execRows(t *testing.T, db *bun.DB) int {
	t.Helper()
	n, err := db.NewSelect().Table("note").Count(context.Background())
	require.NoError(t, err)
	return n
}

func newNoteTable(t *testing.T) *bun.DB {
	t.Helper()
	db := openMemory(t)
	_, err := db.ExecContext(context.Background(), "CREATE TABLE note (id INTEGER PRIMARY KEY, body TEXT NOT NULL)")
	require.NoError(t, err)
	return db
}

func TestRunInTxCommits(t *testing.T) {
	db := newNoteTable(t)
	ctx := context.Background()

	err := RunInTx(ctx, db, nil, func(ctx context.Context, tx bun.Tx) error {
		assert.True(t, InTx(ctx))
		_, err := Conn(ctx, db).ExecContext(ctx, "INSERT INTO note (body) VALUES (?)", "a")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, execRows(t, db))
	assert.False(t, InTx(ctx))
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	db := newNoteTable(t)
	boom := errors.New("boom")

	err := RunInTx(context.Background(), db, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO note (body) VALUES (?)", "a"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, execRows(t, db))
}

func TestRunInTxRollsBackOnPanic(t *testing.T) {
	db := newNoteTable(t)

	assert.Panics(t, func() {
		_ = RunInTx(context.Background(), db, nil, func(ctx context.Context, tx bun.Tx) error {
			_, _ = tx.ExecContext(ctx, "INSERT INTO note (body) VALUES (?)", "a")
			panic("boom")
		})
	})
	assert.Equal(t, 0, execRows(t, db))
}

func TestRunInTxJoinsOuterTransaction(t *testing.T) {
	db := newNoteTable(t)
	boom := errors.New("boom")

	err := RunInTx(context.Background(), db, nil, func(ctx context.Context, outer bun.Tx) error {
		err := RunInTx(ctx, db, nil, func(ctx context.Context, inner bun.Tx) error {
			assert.Equal(t, outer, inner)
			_, err := inner.ExecContext(ctx, "INSERT INTO note (body) VALUES (?)", "a")
			return err
		})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, execRows(t, db))
}

func TestRunInTxTranslatesConstraintErrors(t *testing.T) {
	db := newNoteTable(t)

	err := RunInTx(context.Background(), db, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO note (body) VALUES (NULL)")
		return Translate(err)
	})
	assert.True(t, IsConstraintViolation(err))
}

func TestAfterCommitRunsOnceCommitted(t *testing.T) {
	db := newNoteTable(t)
	var seen []int

	err := RunInTx(context.Background(), db, nil, func(ctx context.Context, tx bun.Tx) error {
		AfterCommit(ctx, func(ctx context.Context) {
			assert.False(t, InTx(ctx))
			seen = append(seen, execRows(t, db))
		})
		_, err := tx.ExecContext(ctx, "INSERT INTO note (body) VALUES (?)", "a")
		require.NoError(t, err)
		assert.Empty(t, seen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, seen)
}

func TestAfterCommitDroppedOnRollback(t *testing.T) {
	db := newNoteTable(t)
	boom := errors.New("boom")
	ran := false

	err := RunInTx(context.Background(), db, nil, func(ctx context.Context, tx bun.Tx) error {
		AfterCommit(ctx, func(context.Context) { ran = true })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran)
}

func TestAfterCommitOutsideTransactionRunsNow(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func(context.Context) { ran = true })
	assert.True(t, ran)
}
