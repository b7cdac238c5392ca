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

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel(" DEBUG "))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("verbose"))
}

func TestNewLoggerIsRegistered(t *testing.T) {
	a := NewLogger("test.registry")
	assert.Same(t, a, NewLogger("test.registry"))

	assert.True(t, SetLoggerLevel("test.registry", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("test.absent", "error"))
}

func TestLog4jColorFormatter(t *testing.T) {
	color.NoColor = true
	f := &Log4jColorFormatter{LoggerName: "roster.repository", NameWidth: 10, CallerWidth: 25}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "slow query",
		Data:    logrus.Fields{"table": "member", "rows": 2},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)
	line := string(out)
	assert.True(t, strings.HasPrefix(line, "2025-01-02"))
	assert.Contains(t, line, "   WARN ")
	assert.Contains(t, line, ": slow query rows=2 table=member\n")
}

func TestJSONLogFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "roster.cli"}
	out, err := f.Format(&logrus.Entry{
		Time:    time.Now(),
		Level:   logrus.ErrorLevel,
		Message: "failed",
		Data:    logrus.Fields{"error": errors.New("boom"), "took": time.Second},
	})
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &rec))
	assert.Equal(t, "error", rec["level"])
	assert.Equal(t, "roster.cli", rec["model"])
	fields := rec["fields"].(map[string]interface{})
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "1s", fields["took"])
}

func TestConfigureConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("test.output")
	l.SetLevel(logrus.InfoLevel)
	ConfigureConsoleOutput(&buf)
	t.Cleanup(func() { ConfigureConsoleOutput(nil) })

	l.Info("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("ROSTER_TEST_STR", "set")
	t.Setenv("ROSTER_TEST_BOOL", "nope")
	assert.Equal(t, "set", EnvDefaultString("ROSTER_TEST_STR", "def"))
	assert.Equal(t, "def", EnvDefaultString("ROSTER_TEST_ABSENT", "def"))
	assert.True(t, EnvDefaultBool("ROSTER_TEST_BOOL", true))
	assert.False(t, EnvDefaultBool("ROSTER_TEST_ABSENT", false))
}
