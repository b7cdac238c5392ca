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

// MemberDto is the flattened member view with its team name.
type MemberDto struct {
	ID       int64  `bun:"member_id" json:"id"`
	Username string `bun:"username" json:"username"`
	TeamName string `bun:"team_name" source:"Team.name" json:"teamName"`
}

func NewMemberDto(m *Member) MemberDto {
	dto := MemberDto{ID: m.ID, Username: m.Username}
	if m.Team != nil {
		dto.TeamName = m.Team.Name
	}
	return dto
}

// UsernameOnly projects a single column of member.
type UsernameOnly struct {
	Username string `bun:"username" json:"username"`
}

// MemberProjection is the native projection of a member with its team name.
type MemberProjection struct {
	ID       int64  `bun:"member_id" json:"id"`
	Username string `bun:"username" json:"username"`
	TeamName string `bun:"team_name" json:"teamName"`
}
