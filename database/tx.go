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
	"database/sql"
	"errors"
	"sync"

	"github.com/uptrace/bun"
)

type txKey struct{}

type commitHooksKey struct{}

type commitHooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

// WithTx returns a context carrying tx; repositories resolve it through Conn.
func WithTx(ctx context.Context, tx bun.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction bound to ctx, if any.
func TxFromContext(ctx context.Context) (bun.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(bun.Tx)
	return tx, ok
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := TxFromContext(ctx)
	return ok
}

// Conn resolves the handle queries should run on: the transaction bound to
// ctx, or db itself.
func Conn(ctx context.Context, db *bun.DB) bun.IDB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db
}

// RunInTx runs fn inside a transaction and commits when fn returns nil. Any
// error or panic rolls the transaction back. When ctx already carries a
// transaction fn joins it and the outermost call decides the outcome.
func RunInTx(ctx context.Context, db *bun.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	if tx, ok := TxFromContext(ctx); ok {
		return fn(ctx, tx)
	}
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return Translate(err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				GetLogger().Warn("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()
	hooks := &commitHooks{}
	txCtx := context.WithValue(WithTx(ctx, tx), commitHooksKey{}, hooks)
	if err := fn(txCtx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return Translate(err)
	}
	committed = true

	hooks.mu.Lock()
	fns := hooks.fns
	hooks.fns = nil
	hooks.mu.Unlock()
	for _, f := range fns {
		f(ctx)
	}
	return nil
}

// AfterCommit defers f until the transaction started by RunInTx for ctx has
// committed; it is dropped on rollback. Without such a transaction f runs
// immediately. f receives a context without the transaction.
func AfterCommit(ctx context.Context, f func(ctx context.Context)) {
	hooks, ok := ctx.Value(commitHooksKey{}).(*commitHooks)
	if !ok {
		f(ctx)
		return
	}
	hooks.mu.Lock()
	hooks.fns = append(hooks.fns, f)
	hooks.mu.Unlock()
}
