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
	"slices"

	"github.com/tomoncle/roster/entity"
	"github.com/tomoncle/roster/types"

	"github.com/uptrace/bun"
)

// TeamRepository is the team store.
type TeamRepository interface {
	Repository[entity.Team]

	FindByName(ctx context.Context, name string) (*entity.Team, error)

	// LoadMembers resolves the members of a team loaded without them, in
	// id order.
	LoadMembers(ctx context.Context, t *entity.Team) ([]*entity.Member, error)
}

type teamRepositoryImpl struct {
	*baseRepositoryImpl[entity.Team]
	members *baseRepositoryImpl[entity.Member]
}

func NewTeamRepository(db *bun.DB, opts ...Option) (TeamRepository, error) {
	teams, err := newRepository[entity.Team](db, opts...)
	if err != nil {
		return nil, err
	}
	members, err := newRepository[entity.Member](db, opts...)
	if err != nil {
		return nil, err
	}
	teams.onLoad(linkMembers)
	return &teamRepositoryImpl{baseRepositoryImpl: teams, members: members}, nil
}

func linkMembers(_ context.Context, rows []*entity.Team, relations []string) {
	if !slices.Contains(relations, "Members") {
		return
	}
	for _, t := range rows {
		for _, m := range t.Members {
			m.Team = t
		}
	}
}

func (r *teamRepositoryImpl) FindByName(ctx context.Context, name string) (*entity.Team, error) {
	return r.FindOneBy(ctx, types.Eq("Name", name))
}

func (r *teamRepositoryImpl) LoadMembers(ctx context.Context, t *entity.Team) ([]*entity.Member, error) {
	if t == nil || t.ID == 0 {
		return nil, nil
	}
	rows, err := r.members.FindBy(ctx, types.Eq("TeamID", t.ID), WithSort(types.Asc("ID")))
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		t.Link(m)
	}
	return rows, nil
}
