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
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHookCountsStatements(t *testing.T) {
	reg := prometheus.NewRegistry()
	hook, err := NewMetricsHook(reg, "roster")
	require.NoError(t, err)

	db := openMemory(t)
	db.AddQueryHook(hook)
	ctx := context.Background()

	var n int
	require.NoError(t, db.NewRaw("SELECT 1").Scan(ctx, &n))
	require.NoError(t, db.NewRaw("SELECT 2").Scan(ctx, &n))
	_, err = db.NewRaw("SELECT * FROM missing_table").Exec(ctx)
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(hook.queries.WithLabelValues("SELECT", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.queries.WithLabelValues("SELECT", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(hook.duration))
}

func TestMetricsHookReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetricsHook(reg, "roster")
	require.NoError(t, err)
	second, err := NewMetricsHook(reg, "roster")
	require.NoError(t, err)

	first.queries.WithLabelValues("INSERT", "ok").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.queries.WithLabelValues("INSERT", "ok")))
}
