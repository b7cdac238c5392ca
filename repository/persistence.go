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

package repository

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// entityOwner is implemented by repositories whose entities can be managed
// by a PersistenceContext.
type entityOwner interface {
	snapshot(model interface{}) []interface{}
	flushEntity(ctx context.Context, model interface{}) error
}

type managedEntry struct {
	model    interface{}
	owner    entityOwner
	snapshot []interface{}
}

// PersistenceContext is the identity map of one unit of work. Every row is
// represented by at most one instance, and changes made to managed
// instances are written back on Flush.
type PersistenceContext struct {
	id      string
	mu      sync.Mutex
	entries map[string]*managedEntry
	order   []string
}

func NewPersistenceContext() *PersistenceContext {
	return &PersistenceContext{
		id:      uuid.NewString(),
		entries: make(map[string]*managedEntry),
	}
}

// ID identifies the unit of work in logs.
func (pc *PersistenceContext) ID() string { return pc.id }

// Len returns the number of managed instances.
func (pc *PersistenceContext) Len() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.entries)
}

func (pc *PersistenceContext) get(key string) (interface{}, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	e, ok := pc.entries[key]
	if !ok {
		return nil, false
	}
	return e.model, true
}

// manage returns the instance already managed under key, or registers model
// and returns it.
func (pc *PersistenceContext) manage(key string, model interface{}, owner entityOwner) interface{} {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if e, ok := pc.entries[key]; ok {
		return e.model
	}
	pc.entries[key] = &managedEntry{model: model, owner: owner, snapshot: owner.snapshot(model)}
	pc.order = append(pc.order, key)
	return model
}

// refresh records model as the managed instance for key with its current
// state as the clean snapshot.
func (pc *PersistenceContext) refresh(key string, model interface{}, owner entityOwner) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if e, ok := pc.entries[key]; ok {
		e.model = model
		e.snapshot = owner.snapshot(model)
		return
	}
	pc.entries[key] = &managedEntry{model: model, owner: owner, snapshot: owner.snapshot(model)}
	pc.order = append(pc.order, key)
}

func (pc *PersistenceContext) detach(key string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if _, ok := pc.entries[key]; !ok {
		return
	}
	delete(pc.entries, key)
	for i, k := range pc.order {
		if k == key {
			pc.order = append(pc.order[:i], pc.order[i+1:]...)
			break
		}
	}
}

// Clear detaches every managed instance without writing pending changes.
func (pc *PersistenceContext) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.entries = make(map[string]*managedEntry)
	pc.order = nil
}

// Dirty reports whether any managed instance differs from its snapshot.
func (pc *PersistenceContext) Dirty() bool {
	return len(pc.dirty()) > 0
}

func (pc *PersistenceContext) dirty() []string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	var keys []string
	for _, key := range pc.order {
		e := pc.entries[key]
		if !reflect.DeepEqual(e.snapshot, e.owner.snapshot(e.model)) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Flush writes every changed managed instance in registration order. ctx
// must carry the transaction of the unit of work.
func (pc *PersistenceContext) Flush(ctx context.Context) error {
	for _, key := range pc.dirty() {
		pc.mu.Lock()
		e, ok := pc.entries[key]
		pc.mu.Unlock()
		if !ok {
			continue
		}
		if err := e.owner.flushEntity(ctx, e.model); err != nil {
			return err
		}
		pc.refresh(key, e.model, e.owner)
	}
	return nil
}

type persistenceKey struct{}

// WithPersistenceContext binds pc to ctx.
func WithPersistenceContext(ctx context.Context, pc *PersistenceContext) context.Context {
	return context.WithValue(ctx, persistenceKey{}, pc)
}

// PersistenceContextFrom returns the persistence context bound to ctx.
func PersistenceContextFrom(ctx context.Context) (*PersistenceContext, bool) {
	pc, ok := ctx.Value(persistenceKey{}).(*PersistenceContext)
	return pc, ok
}
