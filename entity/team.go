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
	"fmt"

	"github.com/uptrace/bun"
)

// Team owns an ordered collection of members. The collection is a
// back-reference; membership is persisted through Member.TeamID.
type Team struct {
	bun.BaseModel `bun:"table:team,alias:t"`

	ID      int64     `bun:"team_id,pk,autoincrement" json:"id"`
	Name    string    `bun:"name,notnull,unique" json:"name"`
	Members []*Member `bun:"rel:has-many,join:team_id=team_id" fetch:"lazy" json:"-"`

	BaseEntity
}

func NewTeam(name string) *Team {
	return &Team{Name: name, Members: make([]*Member, 0)}
}

// AddMember moves m into this team.
func (t *Team) AddMember(m *Member) {
	m.ChangeTeam(t)
}

// Link attaches a member loaded from the store without touching its key.
// It is used when resolving the association and keeps Members free of
// duplicates.
func (t *Team) Link(m *Member) {
	m.Team = t
	if !t.hasMember(m) {
		t.Members = append(t.Members, m)
	}
}

func (t *Team) hasMember(m *Member) bool {
	for _, v := range t.Members {
		if v.sameAs(m) {
			return true
		}
	}
	return false
}

func (t *Team) removeMember(m *Member) {
	out := t.Members[:0]
	for _, v := range t.Members {
		if !v.sameAs(m) {
			out = append(out, v)
		}
	}
	for i := len(out); i < len(t.Members); i++ {
		t.Members[i] = nil
	}
	t.Members = out
}

func (t *Team) String() string {
	return fmt.Sprintf("Team(id=%d, name=%s)", t.ID, t.Name)
}
