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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countMember(t *Team, m *Member) int {
	n := 0
	for _, v := range t.Members {
		if v == m {
			n++
		}
	}
	return n
}

func TestChangeTeamKeepsAssociationConsistent(t *testing.T) {
	teamA := NewTeam("teamA")
	teamA.ID = 1
	teamB := NewTeam("teamB")
	teamB.ID = 2

	m := NewMember("member1", 10, teamA)
	assert.Same(t, teamA, m.Team)
	assert.Equal(t, int64(1), m.TeamID)
	assert.Equal(t, 1, countMember(teamA, m))

	m.ChangeTeam(teamA)
	assert.Equal(t, 1, countMember(teamA, m), "re-assigning the same team must not duplicate")

	m.ChangeTeam(teamB)
	assert.Equal(t, 0, countMember(teamA, m))
	assert.Equal(t, 1, countMember(teamB, m))
	assert.Equal(t, int64(2), m.TeamID)

	m.ChangeTeam(nil)
	assert.Nil(t, m.Team)
	assert.Zero(t, m.TeamID)
	assert.Empty(t, teamB.Members)
}

func TestAddMemberDelegatesToChangeTeam(t *testing.T) {
	team := NewTeam("teamA")
	m1 := NewMember("member1", 10, nil)
	m2 := NewMember("member2", 20, nil)

	team.AddMember(m1)
	team.AddMember(m2)
	team.AddMember(m1)

	require.Len(t, team.Members, 2)
	assert.Same(t, team, m1.Team)
	assert.Same(t, team, m2.Team)
}

func TestLinkDeduplicatesByID(t *testing.T) {
	team := &Team{ID: 1, Name: "teamA"}
	team.Link(&Member{ID: 5, Username: "member1"})
	team.Link(&Member{ID: 5, Username: "member1"})
	team.Link(&Member{ID: 6, Username: "member2"})
	assert.Len(t, team.Members, 2)
}

func TestNewMemberDto(t *testing.T) {
	team := &Team{ID: 1, Name: "teamA"}
	m := &Member{ID: 3, Username: "AAA"}
	team.Link(m)
	assert.Equal(t, MemberDto{ID: 3, Username: "AAA", TeamName: "teamA"}, NewMemberDto(m))
	assert.Equal(t, "", NewMemberDto(&Member{ID: 4}).TeamName)
}
