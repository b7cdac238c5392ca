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

package entity

import (
	"context"
	"time"
)

// BaseTimeEntity carries the timestamps stamped by the audit interceptor.
// created_at is written once on insert and never rewritten by updates.
type BaseTimeEntity struct {
	CreatedAt time.Time `bun:"created_at,notnull" audit:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" audit:"updated_at" json:"updatedAt"`
}

// AfterScanRow converts the timestamps to UTC; drivers return them in the
// connection's location.
func (e *BaseTimeEntity) AfterScanRow(context.Context) error {
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return nil
}

// BaseEntity adds the acting principal to BaseTimeEntity.
type BaseEntity struct {
	BaseTimeEntity
	CreatedBy string `bun:"created_by" audit:"created_by" json:"createdBy"`
	UpdatedBy string `bun:"updated_by" audit:"updated_by" json:"updatedBy"`
}
