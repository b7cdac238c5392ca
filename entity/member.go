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
	"fmt"

	"github.com/uptrace/bun"
)

// Member belongs to at most one Team. TeamID is the owning side of the
// association; Team is resolved eagerly or on demand by the repository.
type Member struct {
	bun.BaseModel `bun:"table:member,alias:m"`

	ID       int64  `bun:"member_id,pk,autoincrement" json:"id"`
	Username string `bun:"username,notnull" json:"username"`
	Age      int    `bun:"age,notnull" json:"age"`
	TeamID   int64  `bun:"team_id,nullzero" json:"teamId,omitempty"`
	Team     *Team  `bun:"rel:belongs-to,join:team_id=team_id" fetch:"lazy" json:"team,omitempty"`

	BaseEntity
}

var _ bun.BeforeAppendModelHook = (*Member)(nil)

// NewMember creates a member and joins it to team when team is not nil.
func NewMember(username string, age int, team *Team) *Member {
	m := &Member{Username: username, Age: age}
	if team != nil {
		m.ChangeTeam(team)
	}
	return m
}

// ChangeTeam moves the member to team, keeping both sides of the association
// consistent: the previous team no longer lists the member and team lists it
// exactly once. A nil team detaches the member.
func (m *Member) ChangeTeam(team *Team) {
	if m.Team != nil && m.Team != team {
		m.Team.removeMember(m)
	}
	m.Team = team
	if team == nil {
		m.TeamID = 0
		return
	}
	m.TeamID = team.ID
	if !team.hasMember(m) {
		team.Members = append(team.Members, m)
	}
}

// BeforeAppendModel copies the team key from a team saved after it was
// assigned to the member.
func (m *Member) BeforeAppendModel(_ context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery, *bun.UpdateQuery:
		if m.Team != nil && m.Team.ID != 0 {
			m.TeamID = m.Team.ID
		}
	}
	return nil
}

func (m *Member) String() string {
	return fmt.Sprintf("Member(id=%d, username=%s, age=%d)", m.ID, m.Username, m.Age)
}

func (m *Member) sameAs(o *Member) bool {
	if m == o {
		return true
	}
	return m != nil && o != nil && m.ID != 0 && m.ID == o.ID
}
