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

package database

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/uptrace/bun"
)

var seedOrderPattern = regexp.MustCompile(`^(\d+)_`)

// SeedRunner executes SQL seed files: first <root>/common, then
// <root>/environments/<environment>, each sorted by its numeric prefix.
type SeedRunner struct {
	db          *bun.DB
	environment string
	root        string
	logger      Logger
}

// SeedFile describes a SQL file to be executed.
type SeedFile struct {
	Path        string
	Name        string
	Order       int
	Environment string
}

// SeedResult contains the outcome of executing a single SQL file.
type SeedResult struct {
	File         string
	Duration     time.Duration
	RowsAffected int64
}

func NewSeedRunner(db *bun.DB, root, environment string, logger Logger) *SeedRunner {
	if logger == nil {
		logger = GetLogger()
	}
	if root == "" {
		root = "configs/sql"
	}
	return &SeedRunner{db: db, environment: environment, root: root, logger: logger}
}

// Run executes every seed file, stopping at the first failure. A file runs
// in one transaction, so a failing file leaves no partial rows behind.
func (s *SeedRunner) Run(ctx context.Context) ([]SeedResult, error) {
	files, err := s.Files()
	if err != nil {
		return nil, fmt.Errorf("failed to list seed files: %w", err)
	}
	if len(files) == 0 {
		s.logger.Info("No SQL files found to execute", "sql_path", s.root)
		return nil, nil
	}
	results := make([]SeedResult, 0, len(files))
	for _, file := range files {
		res, err := s.executeFile(ctx, file)
		if err != nil {
			s.logger.Error("SQL file execution failed", "file", file.Path, "error", err)
			return results, fmt.Errorf("SQL file execution failed %s: %w", file.Path, err)
		}
		results = append(results, res)
		s.logger.Info("SQL file executed successfully", "file", res.File, "duration", res.Duration, "rows_affected", res.RowsAffected)
	}
	return results, nil
}

// Files returns the seed files in execution order.
func (s *SeedRunner) Files() ([]SeedFile, error) {
	files, err := s.filesIn(filepath.Join(s.root, "common"), "common")
	if err != nil {
		return nil, err
	}
	if s.environment != "" {
		envFiles, err := s.filesIn(filepath.Join(s.root, "environments", s.environment), s.environment)
		if err != nil {
			return nil, err
		}
		files = append(files, envFiles...)
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Environment != files[j].Environment {
			return files[i].Environment == "common"
		}
		if files[i].Order != files[j].Order {
			return files[i].Order < files[j].Order
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func (s *SeedRunner) filesIn(dir, environment string) ([]SeedFile, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []SeedFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			return nil
		}
		files = append(files, SeedFile{Path: path, Name: d.Name(), Order: seedOrder(d.Name()), Environment: environment})
		return nil
	})
	return files, err
}

func seedOrder(filename string) int {
	if m := seedOrderPattern.FindStringSubmatch(filename); len(m) > 1 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 999
}

func (s *SeedRunner) executeFile(ctx context.Context, file SeedFile) (SeedResult, error) {
	start := time.Now()
	res := SeedResult{File: file.Path}
	content, err := os.ReadFile(file.Path)
	if err != nil {
		return res, fmt.Errorf("failed to read file: %w", err)
	}
	text, err := s.expand(string(content))
	if err != nil {
		return res, err
	}
	statements := SplitStatements(text)
	err = RunInTx(ctx, s.db, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range statements {
			r, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("failed to execute SQL statement: %s: %w", stmt, Translate(err))
			}
			n, _ := r.RowsAffected()
			res.RowsAffected += n
		}
		return nil
	})
	res.Duration = time.Since(start)
	return res, err
}

// expand renders {{.VAR}} placeholders from the environment plus ENVIRONMENT.
func (s *SeedRunner) expand(content string) (string, error) {
	if !strings.Contains(content, "{{") {
		return content, nil
	}
	tmpl, err := template.New("sql").Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	vars := make(map[string]string)
	for _, env := range os.Environ() {
		if k, v, ok := strings.Cut(env, "="); ok {
			vars[k] = v
		}
	}
	vars["ENVIRONMENT"] = s.environment
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// SplitStatements splits a script on statement-terminating semicolons at the
// end of a line. Blank lines and "--" comment lines are dropped.
func SplitStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString(" ")
		if strings.HasSuffix(line, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
