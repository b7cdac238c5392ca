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

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tomoncle/roster/database"
	"github.com/tomoncle/roster/entity"
	"github.com/tomoncle/roster/repository"
	"github.com/tomoncle/roster/types"
)

func (a *app) repositoryOptions() []repository.Option {
	opts := []repository.Option{
		repository.WithQueryConfig(a.cfg.Query),
		repository.WithCacheConfig(a.cfg.Cache),
	}
	if c := database.GetCache(); c != nil {
		opts = append(opts, repository.WithCache(c))
	}
	return opts
}

func (a *app) repositories() (repository.MemberRepository, repository.TeamRepository, error) {
	opts := a.repositoryOptions()
	members, err := repository.NewMemberRepository(database.GetDB(), opts...)
	if err != nil {
		return nil, nil, err
	}
	teams, err := repository.NewTeamRepository(database.GetDB(), opts...)
	if err != nil {
		return nil, nil, err
	}
	return members, teams, nil
}

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables, foreign keys and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.RunMigrations(cmd.Context()); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

func (a *app) seedCommand() *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Run the SQL seed files of the configured environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := database.RunMigrations(ctx); err != nil {
				return err
			}
			if err := database.Seed(ctx); err != nil {
				return err
			}
			if !demo {
				return nil
			}
			members, teams, err := a.repositories()
			if err != nil {
				return err
			}
			added, err := seedDemo(ctx, members, teams)
			if err != nil {
				return err
			}
			logger.Infof("demo data ready: 2 teams, %d members added", added)
			return nil
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "also insert the demo teams and members")
	return cmd
}

// seedDemo upserts teamA and teamB and adds member1..member4 when missing. It
// returns the number of members added.
func seedDemo(ctx context.Context, members repository.MemberRepository, teams repository.TeamRepository) (int, error) {
	added := 0
	err := repository.Transactional(ctx, database.GetDB(), func(ctx context.Context) error {
		if err := teams.Upsert(ctx, []string{"Name"}, entity.NewTeam("teamA"), entity.NewTeam("teamB")); err != nil {
			return err
		}
		teamA, err := teams.FindByName(ctx, "teamA")
		if err != nil {
			return err
		}
		teamB, err := teams.FindByName(ctx, "teamB")
		if err != nil {
			return err
		}
		demo := []*entity.Member{
			entity.NewMember("member1", 10, teamA),
			entity.NewMember("member2", 20, teamA),
			entity.NewMember("member3", 30, teamB),
			entity.NewMember("member4", 40, teamB),
		}
		for _, m := range demo {
			exists, err := members.ExistsBy(ctx, types.Eq("Username", m.Username))
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if _, err := members.Save(ctx, m); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (a *app) membersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List members",
	}

	var username string
	list := &cobra.Command{
		Use:   "list",
		Short: "List members with their team",
		RunE: func(cmd *cobra.Command, args []string) error {
			members, _, err := a.repositories()
			if err != nil {
				return err
			}
			var rows []*entity.Member
			if username != "" {
				rows, err = members.FindEntityGraphByUsername(cmd.Context(), username)
			} else {
				rows, err = members.FindMemberFetchJoin(cmd.Context())
			}
			if err != nil {
				return err
			}
			return a.print(rows, func() { printMembers(rows) })
		},
	}
	list.Flags().StringVar(&username, "username", "", "only members with this username")

	var page, size, age int
	pageCmd := &cobra.Command{
		Use:   "page",
		Short: "Page members of exactly the given age, by username descending",
		RunE: func(cmd *cobra.Command, args []string) error {
			members, _, err := a.repositories()
			if err != nil {
				return err
			}
			if size < 1 {
				size = a.cfg.Query.DefaultPageSize
			}
			p, err := members.FindCountByAge(cmd.Context(), age, types.PageOf(page, size, types.Desc("Username")))
			if err != nil {
				return err
			}
			dto := types.MapPage(p, entity.NewMemberDto)
			return a.print(dto, func() {
				for _, d := range dto.Content {
					fmt.Printf("%d\t%s\t%s\n", d.ID, d.Username, d.TeamName)
				}
				fmt.Printf("page %d/%d, %d total\n", dto.Number+1, dto.TotalPages(), dto.TotalElements)
			})
		},
	}
	pageCmd.Flags().IntVar(&page, "page", 0, "zero-based page number")
	pageCmd.Flags().IntVar(&size, "size", 0, "page size (default query.default_page_size)")
	pageCmd.Flags().IntVar(&age, "age", 0, "age to match")

	cmd.AddCommand(list, pageCmd)
	return cmd
}

func (a *app) teamsCommand() *cobra.Command {
	var withMembers bool
	cmd := &cobra.Command{
		Use:   "teams",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, teams, err := a.repositories()
			if err != nil {
				return err
			}
			var opts []repository.QueryOption
			if withMembers {
				opts = append(opts, repository.WithEager("Members"))
			}
			rows, err := teams.FindBy(cmd.Context(), nil, append(opts, repository.WithSort(types.Asc("Name")))...)
			if err != nil {
				return err
			}
			return a.print(rows, func() {
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tMEMBERS")
				for _, t := range rows {
					fmt.Fprintf(w, "%d\t%s\t%d\n", t.ID, t.Name, len(t.Members))
				}
				_ = w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&withMembers, "members", false, "load the members of each team")
	return cmd
}

func printMembers(rows []*entity.Member) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tAGE\tTEAM")
	for _, m := range rows {
		team := "-"
		if m.Team != nil {
			team = m.Team.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", m.ID, m.Username, m.Age, team)
	}
	_ = w.Flush()
}
