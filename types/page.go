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

// Order is a single sort key.
type Order struct {
	Field     string
	Direction Direction
}

// Asc orders by field ascending.
func Asc(field string) Order { return Order{Field: field, Direction: DirectionAsc} }

// Desc orders by field descending.
func Desc(field string) Order { return Order{Field: field, Direction: DirectionDesc} }

// Sort is an ordered list of sort keys, most significant first.
type Sort []Order

// By builds a Sort from its orders.
func By(orders ...Order) Sort { return Sort(orders) }

func (s Sort) Empty() bool { return len(s) == 0 }

// PageRequest describes a zero-based page window and its ordering.
type PageRequest struct {
	page int
	size int
	sort Sort
}

// PageOf constructs a PageRequest. page clamps to 0 and size defaults to 10.
func PageOf(page, size int, orders ...Order) PageRequest {
	if page < 0 {
		page = 0
	}
	if size < 1 {
		size = 10
	}
	return PageRequest{page: page, size: size, sort: Sort(orders)}
}

func (p PageRequest) GetPage() int { return p.page }

func (p PageRequest) GetPageSize() int {
	if p.size < 1 {
		return 10
	}
	return p.size
}

func (p PageRequest) GetSort() Sort { return p.sort }

// Offset is the number of rows skipped before this page.
func (p PageRequest) Offset() int {
	return p.GetPage() * p.GetPageSize()
}

// Next returns the request for the following page with the same size and sort.
func (p PageRequest) Next() PageRequest {
	return PageRequest{page: p.page + 1, size: p.GetPageSize(), sort: p.sort}
}

// Previous returns the request for the preceding page, or the first page.
func (p PageRequest) Previous() PageRequest {
	if p.page == 0 {
		return p
	}
	return PageRequest{page: p.page - 1, size: p.GetPageSize(), sort: p.sort}
}

// Page holds one page of results together with the total element count.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
}

// NewPage constructs a page for the given request.
func NewPage[T any](content []T, req PageRequest, total int64) *Page[T] {
	if content == nil {
		content = make([]T, 0)
	}
	return &Page[T]{Content: content, Number: req.GetPage(), Size: req.GetPageSize(), TotalElements: total}
}

// TotalPages is ceil(TotalElements/Size); zero when there are no elements.
func (p *Page[T]) TotalPages() int {
	if p.Size < 1 || p.TotalElements <= 0 {
		return 0
	}
	return int((p.TotalElements + int64(p.Size) - 1) / int64(p.Size))
}

func (p *Page[T]) NumberOfElements() int { return len(p.Content) }

func (p *Page[T]) IsFirst() bool { return p.Number == 0 }

func (p *Page[T]) IsLast() bool { return !p.HasNext() }

func (p *Page[T]) HasNext() bool { return p.Number+1 < p.TotalPages() }

func (p *Page[T]) HasPrevious() bool { return p.Number > 0 }

// MapPage converts the content of a page, keeping its metadata.
func MapPage[T, R any](p *Page[T], fn func(T) R) *Page[R] {
	out := make([]R, 0, len(p.Content))
	for _, v := range p.Content {
		out = append(out, fn(v))
	}
	return &Page[R]{Content: out, Number: p.Number, Size: p.Size, TotalElements: p.TotalElements}
}

// Slice holds one window of results without a total count.
type Slice[T any] struct {
	Content []T  `json:"content"`
	Number  int  `json:"number"`
	Size    int  `json:"size"`
	HasNext bool `json:"hasNext"`
}

// NewSlice builds a slice from a window fetched with size+1 rows.
func NewSlice[T any](rows []T, req PageRequest) *Slice[T] {
	size := req.GetPageSize()
	hasNext := len(rows) > size
	if hasNext {
		rows = rows[:size]
	}
	if rows == nil {
		rows = make([]T, 0)
	}
	return &Slice[T]{Content: rows, Number: req.GetPage(), Size: size, HasNext: hasNext}
}

func (s *Slice[T]) NumberOfElements() int { return len(s.Content) }

func (s *Slice[T]) IsFirst() bool { return s.Number == 0 }

func (s *Slice[T]) IsLast() bool { return !s.HasNext }
