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

import "strings"

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// Direction is the sort direction of an Order.
type Direction int

const (
	DirectionAsc Direction = iota
	DirectionDesc
)

var _ BaseEnum = DirectionAsc

func (d Direction) IsValid() bool { return d == DirectionAsc || d == DirectionDesc }

func (d Direction) Number() int {
	if !d.IsValid() {
		return IllegalValue
	}
	return int(d)
}

func (d Direction) String() string { return d.Name() }

func (d Direction) Name() string {
	switch d {
	case DirectionAsc:
		return "ASC"
	case DirectionDesc:
		return "DESC"
	default:
		return IllegalName
	}
}

func (d Direction) Desc() string {
	switch d {
	case DirectionAsc:
		return "ascending"
	case DirectionDesc:
		return "descending"
	default:
		return IllegalDesc
	}
}

// FetchMode tells a finder how to resolve an association: eager resolves it in
// the same round-trip with a join, lazy leaves it for a deferred lookup by id.
type FetchMode int

const (
	FetchLazy FetchMode = iota
	FetchEager
)

var _ BaseEnum = FetchLazy

// ParseFetchMode maps the value of a `fetch` struct tag to a FetchMode.
func ParseFetchMode(s string) (FetchMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lazy":
		return FetchLazy, true
	case "eager":
		return FetchEager, true
	default:
		return FetchLazy, false
	}
}

func (m FetchMode) IsValid() bool { return m == FetchLazy || m == FetchEager }

func (m FetchMode) Number() int {
	if !m.IsValid() {
		return IllegalValue
	}
	return int(m)
}

func (m FetchMode) String() string { return m.Name() }

func (m FetchMode) Name() string {
	switch m {
	case FetchLazy:
		return "lazy"
	case FetchEager:
		return "eager"
	default:
		return IllegalName
	}
}

func (m FetchMode) Desc() string {
	switch m {
	case FetchLazy:
		return "resolve the association on demand by id"
	case FetchEager:
		return "resolve the association with a join"
	default:
		return IllegalDesc
	}
}
