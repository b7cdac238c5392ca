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

package audit

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Values of the `audit` struct tag.
const (
	TagCreatedAt = "created_at"
	TagUpdatedAt = "updated_at"
	TagCreatedBy = "created_by"
	TagUpdatedBy = "updated_by"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	timePtrType = reflect.TypeOf((*time.Time)(nil))
)

// Assignment is a column/value pair produced for set-based updates.
type Assignment struct {
	Column string
	Value  interface{}
}

type auditField struct {
	index  []int
	column string
	typ    reflect.Type
}

type layout struct {
	fields map[string]auditField
}

func (l *layout) empty() bool { return len(l.fields) == 0 }

// Interceptor stamps audit attributes on models before they are written.
// Fields are discovered through the `audit` tag, including fields promoted
// from embedded structs; the column name comes from the `bun` tag.
type Interceptor struct {
	clock   Clock
	actors  ActorResolver
	layouts sync.Map // reflect.Type -> *layout
}

type Option func(*Interceptor)

func WithClock(c Clock) Option {
	return func(i *Interceptor) {
		if c != nil {
			i.clock = c
		}
	}
}

func WithActorResolver(r ActorResolver) Option {
	return func(i *Interceptor) {
		if r != nil {
			i.actors = r
		}
	}
}

// New returns an interceptor using SystemClock and the context actor with
// "system" as fallback unless overridden by opts.
func New(opts ...Option) *Interceptor {
	i := &Interceptor{
		clock:  SystemClock,
		actors: ContextActor{Default: "system"},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Now returns the interceptor's current instant.
func (i *Interceptor) Now() time.Time { return i.clock.Now() }

// Audited reports whether the model declares any audit field.
func (i *Interceptor) Audited(model interface{}) bool {
	l, err := i.layoutOf(reflect.TypeOf(model))
	return err == nil && !l.empty()
}

// BeforeInsert sets every audit attribute. created_at and updated_at receive
// the same instant.
func (i *Interceptor) BeforeInsert(ctx context.Context, model interface{}) error {
	v, l, err := i.target(model)
	if err != nil || l.empty() {
		return err
	}
	now := i.clock.Now()
	actor := i.actors.CurrentActor(ctx)
	for tag, f := range l.fields {
		var val interface{} = now
		if tag == TagCreatedBy || tag == TagUpdatedBy {
			val = actor
		}
		if err := assign(v, f, val); err != nil {
			return err
		}
	}
	return nil
}

// BeforeUpdate sets updated_at and updated_by only.
func (i *Interceptor) BeforeUpdate(ctx context.Context, model interface{}) error {
	v, l, err := i.target(model)
	if err != nil || l.empty() {
		return err
	}
	if f, ok := l.fields[TagUpdatedAt]; ok {
		if err := assign(v, f, i.clock.Now()); err != nil {
			return err
		}
	}
	if f, ok := l.fields[TagUpdatedBy]; ok {
		if err := assign(v, f, i.actors.CurrentActor(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// InsertOnlyColumns lists the columns an update must never rewrite.
func (i *Interceptor) InsertOnlyColumns(model interface{}) []string {
	l, err := i.layoutOf(reflect.TypeOf(model))
	if err != nil {
		return nil
	}
	var cols []string
	for _, tag := range []string{TagCreatedAt, TagCreatedBy} {
		if f, ok := l.fields[tag]; ok {
			cols = append(cols, f.column)
		}
	}
	return cols
}

// UpdateAssignments returns the audit columns a set-based update writes
// alongside its own assignments. model is only used for its type.
func (i *Interceptor) UpdateAssignments(ctx context.Context, model interface{}) []Assignment {
	l, err := i.layoutOf(reflect.TypeOf(model))
	if err != nil || l.empty() {
		return nil
	}
	var out []Assignment
	if f, ok := l.fields[TagUpdatedAt]; ok {
		out = append(out, Assignment{Column: f.column, Value: valueFor(f.typ, i.clock.Now())})
	}
	if f, ok := l.fields[TagUpdatedBy]; ok {
		out = append(out, Assignment{Column: f.column, Value: valueFor(f.typ, i.actors.CurrentActor(ctx))})
	}
	return out
}

func (i *Interceptor) target(model interface{}) (reflect.Value, *layout, error) {
	v := reflect.ValueOf(model)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, nil, fmt.Errorf("audit: model must be a non-nil struct pointer, got %T", model)
	}
	l, err := i.layoutOf(v.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return v.Elem(), l, nil
}

func (i *Interceptor) layoutOf(t reflect.Type) (*layout, error) {
	if t == nil {
		return nil, fmt.Errorf("audit: nil model")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("audit: %s is not a struct", t)
	}
	if l, ok := i.layouts.Load(t); ok {
		return l.(*layout), nil
	}
	l, err := buildLayout(t)
	if err != nil {
		return nil, err
	}
	actual, _ := i.layouts.LoadOrStore(t, l)
	return actual.(*layout), nil
}

func buildLayout(t reflect.Type) (*layout, error) {
	l := &layout{fields: make(map[string]auditField)}
	for _, sf := range reflect.VisibleFields(t) {
		tag, ok := sf.Tag.Lookup("audit")
		if !ok || !sf.IsExported() {
			continue
		}
		tag = strings.TrimSpace(tag)
		switch tag {
		case TagCreatedAt, TagUpdatedAt:
			if sf.Type != timeType && sf.Type != timePtrType {
				return nil, fmt.Errorf("audit: %s.%s tagged %s must be time.Time", t, sf.Name, tag)
			}
		case TagCreatedBy, TagUpdatedBy:
			if sf.Type.Kind() != reflect.String && !(sf.Type.Kind() == reflect.Ptr && sf.Type.Elem().Kind() == reflect.String) {
				return nil, fmt.Errorf("audit: %s.%s tagged %s must be a string", t, sf.Name, tag)
			}
		default:
			return nil, fmt.Errorf("audit: unknown tag %q on %s.%s", tag, t, sf.Name)
		}
		if _, dup := l.fields[tag]; dup {
			return nil, fmt.Errorf("audit: duplicate %s field on %s", tag, t)
		}
		l.fields[tag] = auditField{index: sf.Index, column: columnName(sf), typ: sf.Type}
	}
	return l, nil
}

func columnName(sf reflect.StructField) string {
	name := sf.Tag.Get("bun")
	if idx := strings.IndexByte(name, ','); idx >= 0 {
		name = name[:idx]
	}
	if name == "" {
		return toSnake(sf.Name)
	}
	return name
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func valueFor(typ reflect.Type, val interface{}) interface{} {
	if typ.Kind() != reflect.Ptr {
		return val
	}
	p := reflect.New(typ.Elem())
	p.Elem().Set(reflect.ValueOf(val).Convert(typ.Elem()))
	return p.Interface()
}

func assign(strct reflect.Value, f auditField, val interface{}) error {
	fv := strct
	for n, idx := range f.index {
		if n > 0 && fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				fv.Set(reflect.New(fv.Type().Elem()))
			}
			fv = fv.Elem()
		}
		fv = fv.Field(idx)
	}
	if !fv.CanSet() {
		return fmt.Errorf("audit: column %s is not settable", f.column)
	}
	fv.Set(reflect.ValueOf(valueFor(f.typ, val)).Convert(f.typ))
	return nil
}
