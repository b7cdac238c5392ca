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

package types

import (
	"errors"
	"fmt"
	"reflect"
)

// Operator is the comparison applied by a Condition.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpLike
	OpIsNull
	OpNotNull
)

var _ BaseEnum = OpEq

var operatorNames = [...]string{"=", "<>", ">", ">=", "<", "<=", "IN", "LIKE", "IS NULL", "IS NOT NULL"}

var operatorDescs = [...]string{
	"equal to", "not equal to", "greater than", "greater than or equal to",
	"less than", "less than or equal to", "in", "like", "is null", "is not null",
}

func (o Operator) IsValid() bool { return o >= OpEq && o <= OpNotNull }

func (o Operator) Number() int {
	if !o.IsValid() {
		return IllegalValue
	}
	return int(o)
}

func (o Operator) String() string { return o.Name() }

// Name returns the SQL spelling of the operator.
func (o Operator) Name() string {
	if !o.IsValid() {
		return IllegalName
	}
	return operatorNames[o]
}

func (o Operator) Desc() string {
	if !o.IsValid() {
		return IllegalDesc
	}
	return operatorDescs[o]
}

// Unary reports whether the operator takes no bound value.
func (o Operator) Unary() bool { return o == OpIsNull || o == OpNotNull }

// Condition is a single field/operator/value triple.
type Condition struct {
	Field string
	Op    Operator
	Value interface{}
}

// ErrInvalidPredicate is returned by Validate for malformed predicates.
var ErrInvalidPredicate = errors.New("invalid predicate")

// Validate checks the condition shape; it does not know the model's columns.
func (c Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("%w: field name cannot be empty", ErrInvalidPredicate)
	}
	if !c.Op.IsValid() {
		return fmt.Errorf("%w: unsupported operator %d on %s", ErrInvalidPredicate, int(c.Op), c.Field)
	}
	if c.Op == OpIn {
		v := reflect.ValueOf(c.Value)
		if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
			return fmt.Errorf("%w: IN on %s requires a slice", ErrInvalidPredicate, c.Field)
		}
		if v.Len() == 0 {
			return fmt.Errorf("%w: IN on %s requires at least one value", ErrInvalidPredicate, c.Field)
		}
	}
	return nil
}

// Predicate is a conjunction of conditions. A nil or empty Predicate matches
// every record.
type Predicate struct {
	conds []Condition
}

// Where starts a predicate with one condition.
func Where(field string, op Operator, value interface{}) *Predicate {
	return (&Predicate{}).And(field, op, value)
}

// And appends a condition and returns the predicate for chaining.
func (p *Predicate) And(field string, op Operator, value interface{}) *Predicate {
	p.conds = append(p.conds, Condition{Field: field, Op: op, Value: value})
	return p
}

func Eq(field string, value interface{}) *Predicate  { return Where(field, OpEq, value) }
func Ne(field string, value interface{}) *Predicate  { return Where(field, OpNe, value) }
func Gt(field string, value interface{}) *Predicate  { return Where(field, OpGt, value) }
func Gte(field string, value interface{}) *Predicate { return Where(field, OpGte, value) }
func Lt(field string, value interface{}) *Predicate  { return Where(field, OpLt, value) }
func Lte(field string, value interface{}) *Predicate { return Where(field, OpLte, value) }
func In(field string, values interface{}) *Predicate { return Where(field, OpIn, values) }
func Like(field, pattern string) *Predicate          { return Where(field, OpLike, pattern) }
func IsNull(field string) *Predicate                 { return Where(field, OpIsNull, nil) }
func NotNull(field string) *Predicate                { return Where(field, OpNotNull, nil) }

// Conditions returns a copy of the predicate's conditions.
func (p *Predicate) Conditions() []Condition {
	if p == nil {
		return nil
	}
	out := make([]Condition, len(p.conds))
	copy(out, p.conds)
	return out
}

// Empty reports whether the predicate has no conditions.
func (p *Predicate) Empty() bool { return p == nil || len(p.conds) == 0 }

func (p *Predicate) Validate() error {
	for _, c := range p.Conditions() {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Assignment is one column update inside a set-based UPDATE.
type Assignment struct {
	Field string
	Value interface{}
	// Delta makes the assignment relative: field = field + Value.
	Delta bool
}

// UpdateSet describes the SET clause of a bulk update.
type UpdateSet struct {
	assignments []Assignment
}

// Set starts an update set with an absolute assignment.
func Set(field string, value interface{}) *UpdateSet {
	return (&UpdateSet{}).Set(field, value)
}

// Add starts an update set with a relative assignment.
func Add(field string, delta interface{}) *UpdateSet {
	return (&UpdateSet{}).Add(field, delta)
}

func (u *UpdateSet) Set(field string, value interface{}) *UpdateSet {
	u.assignments = append(u.assignments, Assignment{Field: field, Value: value})
	return u
}

func (u *UpdateSet) Add(field string, delta interface{}) *UpdateSet {
	u.assignments = append(u.assignments, Assignment{Field: field, Value: delta, Delta: true})
	return u
}

func (u *UpdateSet) Assignments() []Assignment {
	if u == nil {
		return nil
	}
	out := make([]Assignment, len(u.assignments))
	copy(out, u.assignments)
	return out
}

func (u *UpdateSet) Validate() error {
	if u == nil || len(u.assignments) == 0 {
		return fmt.Errorf("%w: update set cannot be empty", ErrInvalidPredicate)
	}
	for _, a := range u.assignments {
		if a.Field == "" {
			return fmt.Errorf("%w: update field name cannot be empty", ErrInvalidPredicate)
		}
	}
	return nil
}
