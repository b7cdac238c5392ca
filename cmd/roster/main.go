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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomoncle/roster/database"
	"github.com/tomoncle/roster/entity"
	"github.com/tomoncle/roster/utils"
)

var logger = utils.NewLogger("roster.cli")

type app struct {
	configPath string
	out        string
	cfg        *database.Config
}

func main() {
	err := newRootCommand().Execute()
	if cerr := database.CloseDB(); cerr != nil {
		logger.Warnf("close database: %v", cerr)
	}
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{out: utils.EnvDefaultString("ROSTER_OUT", "text")}

	root := &cobra.Command{
		Use:           "roster",
		Short:         "Member and team store administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", utils.EnvDefaultString("ROSTER_CONFIG", ""), "YAML configuration file (env ROSTER_CONFIG)")
	root.PersistentFlags().StringVar(&a.out, "out", a.out, "output format: text|json")

	root.AddCommand(a.migrateCommand(), a.seedCommand(), a.membersCommand(), a.teamsCommand())
	return root
}

// init loads the configuration and opens the global database. Migrations
// only run on startup when the configuration asks for it.
func (a *app) init() error {
	cfg, err := database.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	utils.ConfigureConsoleLogFormat(cfg.Log.Format)
	utils.ConfigureLogLevel(cfg.Log.Level)

	entity.RegisterModels()
	if _, err := database.InitDB(cfg); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.cfg = cfg
	return nil
}

func (a *app) print(v interface{}, text func()) error {
	if a.out == "json" {
		p, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(p))
		return nil
	}
	text()
	return nil
}
