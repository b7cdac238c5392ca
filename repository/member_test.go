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

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/roster/database"
	"github.com/tomoncle/roster/entity"
	"github.com/tomoncle/roster/types"
)

func countIn(team *entity.Team, m *entity.Member) int {
	n := 0
	for _, v := range team.Members {
		if v == m {
			n++
		}
	}
	return n
}

func TestFetchJoinLinksTeams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teamA, teamB := f.saveTeam(t, "teamA"), f.saveTeam(t, "teamB")
	f.saveMembers(t,
		entity.NewMember("member1", 10, teamA),
		entity.NewMember("member2", 19, teamB),
		entity.NewMember("member3", 25, teamA),
	)

	for name, find := range map[string]func(context.Context) ([]*entity.Member, error){
		"fetch join":   f.members.FindMemberFetchJoin,
		"entity graph": f.members.FindMemberEntityGraph,
		"find all":     func(ctx context.Context) ([]*entity.Member, error) { return f.members.FindAll(ctx) },
	} {
		t.Run(name, func(t *testing.T) {
			members, err := find(ctx)
			require.NoError(t, err)
			require.Len(t, members, 3)
			for _, m := range members {
				require.NotNil(t, m.Team)
				assert.Equal(t, m.TeamID, m.Team.ID)
				assert.Equal(t, 1, countIn(m.Team, m))
			}
			byName := make(map[string]*entity.Member)
			for _, m := range members {
				byName[m.Username] = m
			}
			assert.Same(t, byName["member1"].Team, byName["member3"].Team)
			assert.Len(t, byName["member1"].Team.Members, 2)
			assert.Equal(t, "teamB", byName["member2"].Team.Name)
		})
	}
}

func TestEntityGraphByUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	team := f.saveTeam(t, "teamA")
	f.saveMembers(t, entity.NewMember("member1", 10, team), entity.NewMember("member2", 10, nil))

	rows, err := f.members.FindEntityGraphByUsername(ctx, "member1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Team)
	assert.Equal(t, "teamA", rows[0].Team.Name)

	rows, err = f.members.FindEntityGraphByUsername(ctx, "member2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Team)
}

func TestEagerTeamIsTheManagedInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	team := f.saveTeam(t, "teamA")
	f.saveMembers(t, entity.NewMember("member1", 10, team), entity.NewMember("member2", 11, team))

	err := f.teams.Transactional(ctx, func(ctx context.Context) error {
		managed, err := f.teams.FindByName(ctx, "teamA")
		require.NoError(t, err)

		members, err := f.members.FindAll(ctx)
		require.NoError(t, err)
		for _, m := range members {
			assert.Same(t, managed, m.Team)
		}
		assert.Len(t, managed.Members, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestLazyTeamIsLoadedOnDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	team := f.saveTeam(t, "teamA")
	m := entity.NewMember("member1", 10, team)
	f.saveMembers(t, m)

	found, err := f.members.FindByUsername(ctx, "member1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Nil(t, found[0].Team)
	assert.Equal(t, team.ID, found[0].TeamID)

	loaded, err := f.members.LoadTeam(ctx, found[0])
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "teamA", loaded.Name)
	assert.Same(t, loaded, found[0].Team)
	assert.Equal(t, 1, countIn(loaded, found[0]))

	loose, err := f.members.LoadTeam(ctx, entity.NewMember("loose", 1, nil))
	require.NoError(t, err)
	assert.Nil(t, loose)
}

func TestTeamMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	team := f.saveTeam(t, "teamA")
	f.saveMembers(t, entity.NewMember("member1", 10, team), entity.NewMember("member2", 11, team))

	fresh, err := f.teams.FindByName(ctx, "teamA")
	require.NoError(t, err)
	assert.Empty(t, fresh.Members)

	members, err := f.teams.LoadMembers(ctx, fresh)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "member1", members[0].Username)
	for _, m := range members {
		assert.Same(t, fresh, m.Team)
	}
	_, err = f.teams.LoadMembers(ctx, fresh)
	require.NoError(t, err)
	assert.Len(t, fresh.Members, 2)

	teams, err := f.teams.FindAll(ctx, WithEager("Members"))
	require.NoError(t, err)
	require.Len(t, teams, 1)
	require.Len(t, teams[0].Members, 2)
	for _, m := range teams[0].Members {
		assert.Same(t, teams[0], m.Team)
	}
}

func TestChangeTeamPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	teamA, teamB := f.saveTeam(t, "teamA"), f.saveTeam(t, "teamB")
	m := entity.NewMember("member1", 10, teamA)
	f.saveMembers(t, m)

	m.ChangeTeam(teamB)
	assert.Equal(t, 0, countIn(teamA, m))
	assert.Equal(t, 1, countIn(teamB, m))
	_, err := f.members.Save(ctx, m)
	require.NoError(t, err)

	rows, err := f.members.FindEntityGraphByUsername(ctx, "member1")
	require.NoError(t, err)
	assert.Equal(t, "teamB", rows[0].Team.Name)

	m.ChangeTeam(nil)
	_, err = f.members.Save(ctx, m)
	require.NoError(t, err)
	n, err := f.members.CountBy(ctx, types.IsNull("TeamID"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDeletingReferencedTeamViolatesConstraint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	team := f.saveTeam(t, "teamA")
	f.saveMembers(t, entity.NewMember("member1", 10, team))

	err := f.teams.Delete(ctx, team)
	require.Error(t, err)
	assert.True(t, database.IsConstraintViolation(err))

	_, err = f.members.Save(ctx, &entity.Member{Username: "orphan", Age: 1, TeamID: 999})
	require.Error(t, err)
	assert.True(t, database.IsConstraintViolation(err))
}

func TestProjections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	team := f.saveTeam(t, "teamA")
	f.saveMembers(t,
		entity.NewMember("m1", 10, team),
		entity.NewMember("m2", 10, team),
		entity.NewMember("m3", 10, nil),
	)

	names, err := f.members.FindProjectionsByUsername(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []entity.UsernameOnly{{Username: "m1"}}, names)

	list, err := f.members.FindUsernameList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, list)

	dtos, err := f.members.FindMemberDto(ctx)
	require.NoError(t, err)
	require.Len(t, dtos, 2)
	assert.Equal(t, "m1", dtos[0].Username)
	assert.Equal(t, "teamA", dtos[0].TeamName)
	assert.NotZero(t, dtos[0].ID)

	type badView struct {
		Nickname string `bun:"nickname"`
	}
	_, err = FindProjections[badView](ctx, f.members, nil)
	assert.True(t, database.IsInvalidQuery(err))
}

func TestNativeQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	team := f.saveTeam(t, "teamA")
	f.saveMembers(t, entity.NewMember("m1", 10, team), entity.NewMember("m2", 20, team))

	m, err := f.members.FindByNativeQuery(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.Username)
	assert.Equal(t, team.ID, m.TeamID)

	_, err = f.members.FindByNativeQuery(ctx, "nobody")
	assert.True(t, database.IsNotFound(err))

	rows, err := NativeQuery[entity.UsernameOnly](ctx, f.members,
		"SELECT username FROM member WHERE age >= :age AND username <> ':age' ORDER BY username",
		types.NamedArgs{"age": 15})
	require.NoError(t, err)
	assert.Equal(t, []entity.UsernameOnly{{Username: "m2"}}, rows)

	_, err = NativeQuery[entity.UsernameOnly](ctx, f.members, "SELECT username FROM member WHERE age = :age", types.NamedArgs{})
	assert.True(t, database.IsInvalidQuery(err))

	page, err := f.members.FindByNativeProjection(ctx, types.PageOf(0, 10, types.Desc("username")))
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.TotalElements)
	require.Len(t, page.Content, 2)
	assert.Equal(t, "m2", page.Content[0].Username)
	assert.Equal(t, "teamA", page.Content[0].TeamName)

	page, err = f.members.FindByNativeProjection(ctx, types.PageOf(1, 1))
	require.NoError(t, err)
	assert.Len(t, page.Content, 1)
	assert.True(t, page.IsLast())

	f.saveMembers(t, entity.NewMember("who?", 30, nil))
	rows, err = NativeQuery[entity.UsernameOnly](ctx, f.members,
		"SELECT username FROM member WHERE username = 'who?' OR age = :age ORDER BY username",
		types.NamedArgs{"age": 20})
	require.NoError(t, err)
	assert.Equal(t, []entity.UsernameOnly{{Username: "m2"}, {Username: "who?"}}, rows)

	named, err := NativePage[entity.UsernameOnly](ctx, f.members,
		"SELECT username FROM member WHERE username <> 'x?' AND age >= :age", "",
		types.PageOf(0, 1, types.Asc("username")), types.NamedArgs{"age": 20})
	require.NoError(t, err)
	assert.EqualValues(t, 2, named.TotalElements)
	assert.Equal(t, []entity.UsernameOnly{{Username: "m2"}}, named.Content)
}

func TestFindMemberCustom(t *testing.T) {
	f := newFixture(t)
	f.saveMembers(t, entity.NewMember("member1", 10, nil), entity.NewMember("member2", 20, nil))

	rows, err := f.members.FindMemberCustom(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "member1", rows[0].Username)
}
