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
	"fmt"
	"slices"

	"github.com/tomoncle/roster/database"
	"github.com/tomoncle/roster/entity"
	"github.com/tomoncle/roster/types"

	"github.com/uptrace/bun"
)

// MemberRepository is the member store with the roster finders.
type MemberRepository interface {
	Repository[entity.Member]

	FindByUsernameAndAgeGreaterThan(ctx context.Context, username string, age int) ([]*entity.Member, error)
	FindByUsername(ctx context.Context, username string) ([]*entity.Member, error)
	FindUser(ctx context.Context, username string, age int) ([]*entity.Member, error)
	FindUsernameList(ctx context.Context) ([]string, error)
	FindMemberDto(ctx context.Context) ([]entity.MemberDto, error)
	FindByNames(ctx context.Context, names []string) ([]*entity.Member, error)

	FindByAge(ctx context.Context, age int, req types.PageRequest) (*types.Page[*entity.Member], error)
	FindSliceByAge(ctx context.Context, age int, req types.PageRequest) (*types.Slice[*entity.Member], error)
	FindCountByAge(ctx context.Context, age int, req types.PageRequest) (*types.Page[*entity.Member], error)

	BulkAgePlus(ctx context.Context, age int) (int64, error)

	FindMemberFetchJoin(ctx context.Context) ([]*entity.Member, error)
	FindMemberEntityGraph(ctx context.Context) ([]*entity.Member, error)
	FindEntityGraphByUsername(ctx context.Context, username string) ([]*entity.Member, error)
	FindReadOnlyByUsername(ctx context.Context, username string) (*entity.Member, error)
	FindLockByUsername(ctx context.Context, username string) ([]*entity.Member, error)
	FindProjectionsByUsername(ctx context.Context, username string) ([]entity.UsernameOnly, error)
	FindByNativeQuery(ctx context.Context, username string) (*entity.Member, error)
	FindByNativeProjection(ctx context.Context, req types.PageRequest) (*types.Page[entity.MemberProjection], error)
	FindMemberCustom(ctx context.Context) ([]*entity.Member, error)

	// LoadTeam resolves the team of a member loaded without it.
	LoadTeam(ctx context.Context, m *entity.Member) (*entity.Team, error)
}

const nativeMemberProjection = `SELECT m.member_id, m.username, t.name AS team_name
FROM member AS m LEFT JOIN team AS t ON t.team_id = m.team_id`

type memberRepositoryImpl struct {
	*baseRepositoryImpl[entity.Member]
	teams *baseRepositoryImpl[entity.Team]
}

func NewMemberRepository(db *bun.DB, opts ...Option) (MemberRepository, error) {
	members, err := newRepository[entity.Member](db, opts...)
	if err != nil {
		return nil, err
	}
	teams, err := newRepository[entity.Team](db, opts...)
	if err != nil {
		return nil, err
	}
	members.onLoad(linkTeams(teams.table.Name))
	return &memberRepositoryImpl{baseRepositoryImpl: members, teams: teams}, nil
}

// linkTeams makes members loaded with their team share one team instance
// per id, preferring the instance managed by the unit of work, and lists
// each member in that team exactly once.
func linkTeams(teamTable string) loadHook[entity.Member] {
	return func(ctx context.Context, rows []*entity.Member, relations []string) {
		if !slices.Contains(relations, "Team") {
			return
		}
		pc, _ := PersistenceContextFrom(ctx)
		teams := make(map[int64]*entity.Team)
		for _, m := range rows {
			if m.Team != nil && m.Team.ID == 0 {
				m.Team = nil
			}
			if m.Team == nil {
				continue
			}
			team, ok := teams[m.Team.ID]
			if !ok {
				team = m.Team
				if pc != nil {
					if managed, ok := pc.get(IdentityKey(teamTable, m.Team.ID)); ok {
						team = managed.(*entity.Team)
					}
				}
				teams[m.Team.ID] = team
			}
			team.Link(m)
		}
	}
}

func (r *memberRepositoryImpl) FindByUsernameAndAgeGreaterThan(ctx context.Context, username string, age int) ([]*entity.Member, error) {
	return r.FindBy(ctx, types.Eq("Username", username).And("Age", types.OpGt, age))
}

func (r *memberRepositoryImpl) FindByUsername(ctx context.Context, username string) ([]*entity.Member, error) {
	return r.FindBy(ctx, types.Eq("Username", username))
}

func (r *memberRepositoryImpl) FindUser(ctx context.Context, username string, age int) ([]*entity.Member, error) {
	return r.FindBy(ctx, types.Eq("Username", username).And("Age", types.OpEq, age))
}

func (r *memberRepositoryImpl) FindUsernameList(ctx context.Context) ([]string, error) {
	return FindScalars[string](ctx, r, "Username", nil, WithSort(types.Asc("ID")))
}

// FindMemberDto lists members that belong to a team with the team name.
func (r *memberRepositoryImpl) FindMemberDto(ctx context.Context) ([]entity.MemberDto, error) {
	return FindProjections[entity.MemberDto](ctx, r, types.NotNull("TeamID"), WithSort(types.Asc("ID")))
}

func (r *memberRepositoryImpl) FindByNames(ctx context.Context, names []string) ([]*entity.Member, error) {
	return r.FindBy(ctx, types.In("Username", names))
}

func (r *memberRepositoryImpl) FindByAge(ctx context.Context, age int, req types.PageRequest) (*types.Page[*entity.Member], error) {
	return r.FindPage(ctx, types.Eq("Age", age), req)
}

func (r *memberRepositoryImpl) FindSliceByAge(ctx context.Context, age int, req types.PageRequest) (*types.Slice[*entity.Member], error) {
	return r.FindSlice(ctx, types.Eq("Age", age), req)
}

// FindCountByAge pages members with their team joined; the total is counted
// on member alone.
func (r *memberRepositoryImpl) FindCountByAge(ctx context.Context, age int, req types.PageRequest) (*types.Page[*entity.Member], error) {
	return r.FindPage(ctx, types.Eq("Age", age), req, WithEager("Team"))
}

// BulkAgePlus increments the age of every member at least age years old.
func (r *memberRepositoryImpl) BulkAgePlus(ctx context.Context, age int) (int64, error) {
	return r.BulkUpdate(ctx, types.Gte("Age", age), types.Add("Age", 1))
}

func (r *memberRepositoryImpl) FindMemberFetchJoin(ctx context.Context) ([]*entity.Member, error) {
	return r.baseRepositoryImpl.FindAll(ctx, WithEager("Team"))
}

// FindAll loads members with their team unless opts ask otherwise.
func (r *memberRepositoryImpl) FindAll(ctx context.Context, opts ...QueryOption) ([]*entity.Member, error) {
	return r.baseRepositoryImpl.FindAll(ctx, append([]QueryOption{WithEager("Team")}, opts...)...)
}

func (r *memberRepositoryImpl) FindMemberEntityGraph(ctx context.Context) ([]*entity.Member, error) {
	return r.baseRepositoryImpl.FindAll(ctx, WithEager("Team"))
}

func (r *memberRepositoryImpl) FindEntityGraphByUsername(ctx context.Context, username string) ([]*entity.Member, error) {
	return r.FindBy(ctx, types.Eq("Username", username), WithEager("Team"))
}

// FindReadOnlyByUsername returns an untracked member; changes made to it are
// never flushed.
func (r *memberRepositoryImpl) FindReadOnlyByUsername(ctx context.Context, username string) (*entity.Member, error) {
	return r.FindOneBy(ctx, types.Eq("Username", username), WithReadOnly())
}

func (r *memberRepositoryImpl) FindLockByUsername(ctx context.Context, username string) ([]*entity.Member, error) {
	return r.FindForUpdate(ctx, types.Eq("Username", username))
}

func (r *memberRepositoryImpl) FindProjectionsByUsername(ctx context.Context, username string) ([]entity.UsernameOnly, error) {
	return FindProjections[entity.UsernameOnly](ctx, r, types.Eq("Username", username))
}

func (r *memberRepositoryImpl) FindByNativeQuery(ctx context.Context, username string) (*entity.Member, error) {
	rows, err := NativeQuery[*entity.Member](ctx, r, "SELECT * FROM member WHERE username = ?", username)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no member named %q", database.ErrNotFound, username)
	}
	return rows[0], nil
}

func (r *memberRepositoryImpl) FindByNativeProjection(ctx context.Context, req types.PageRequest) (*types.Page[entity.MemberProjection], error) {
	return NativePage[entity.MemberProjection](ctx, r, nativeMemberProjection, "SELECT count(*) FROM member", req)
}

// FindMemberCustom is a hand-written query outside the predicate builder.
func (r *memberRepositoryImpl) FindMemberCustom(ctx context.Context) ([]*entity.Member, error) {
	if err := r.Flush(ctx); err != nil {
		return nil, err
	}
	rows := make([]*entity.Member, 0)
	if err := r.Conn(ctx).NewSelect().Model(&rows).OrderExpr("?TableAlias.member_id ASC").Scan(ctx); err != nil {
		return nil, database.Translate(err)
	}
	return r.postLoad(ctx, rows, &selectPlan{}), nil
}

func (r *memberRepositoryImpl) LoadTeam(ctx context.Context, m *entity.Member) (*entity.Team, error) {
	if m == nil {
		return nil, nil
	}
	if m.Team != nil {
		return m.Team, nil
	}
	if m.TeamID == 0 {
		return nil, nil
	}
	team, err := r.teams.FindByID(ctx, m.TeamID)
	if err != nil {
		return nil, err
	}
	team.Link(m)
	return team, nil
}
