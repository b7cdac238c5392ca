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
	"sync"

	"github.com/tomoncle/roster/database"
)

var registerOnce sync.Once

// RegisterModels adds the roster tables, foreign keys and indexes to the
// database registries. Team sorts before Member so migrations create the
// referenced table first. Safe to call more than once.
func RegisterModels() {
	registerOnce.Do(func() {
		database.RegisteredModel(database.NewModelAdapter((*Team)(nil), 1))
		database.RegisteredModel(database.NewModelAdapter((*Member)(nil), 2))
		database.RegisterForeignKey(database.ForeignKeyConstraint{
			Table:           "member",
			Column:          "team_id",
			ReferenceTable:  "team",
			ReferenceColumn: "team_id",
			OnDelete:        "NO ACTION",
		})
		database.RegisterIndex(database.IndexSpec{
			Table:   "member",
			Name:    "idx_member_username",
			Columns: []string{"username"},
		})
	})
}
