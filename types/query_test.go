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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicateBuilder(t *testing.T) {
	p := Eq("username", "AAA").And("age", OpGt, 15)
	conds := p.Conditions()
	require.Len(t, conds, 2)
	assert.Equal(t, Condition{Field: "username", Op: OpEq, Value: "AAA"}, conds[0])
	assert.Equal(t, OpGt, conds[1].Op)
	require.NoError(t, p.Validate())

	conds[0].Field = "changed"
	assert.Equal(t, "username", p.Conditions()[0].Field)
}

func TestEmptyPredicate(t *testing.T) {
	var p *Predicate
	assert.True(t, p.Empty())
	assert.Nil(t, p.Conditions())
	assert.NoError(t, p.Validate())
	assert.True(t, (&Predicate{}).Empty())
}

func TestPredicateValidate(t *testing.T) {
	tests := []struct {
		name string
		p    *Predicate
		ok   bool
	}{
		{"in slice", In("username", []string{"AAA", "BBB"}), true},
		{"is null", IsNull("team_id"), true},
		{"empty field", Eq("", 1), false},
		{"in scalar", In("username", "AAA"), false},
		{"in empty", In("username", []string{}), false},
		{"in nil", In("username", nil), false},
		{"bad operator", Where("age", Operator(42), 1), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.p.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidPredicate)
		})
	}
}

func TestOperatorEnum(t *testing.T) {
	assert.Equal(t, ">=", OpGte.Name())
	assert.Equal(t, "IS NOT NULL", OpNotNull.String())
	assert.True(t, OpIsNull.Unary())
	assert.False(t, OpEq.Unary())
	assert.Equal(t, IllegalValue, Operator(-1).Number())
	assert.Equal(t, IllegalName, Operator(99).Name())
	assert.Equal(t, "ASC", DirectionAsc.Name())
	assert.Equal(t, IllegalDesc, Direction(7).Desc())

	m, ok := ParseFetchMode(" EAGER ")
	assert.True(t, ok)
	assert.Equal(t, FetchEager, m)
	_, ok = ParseFetchMode("proxy")
	assert.False(t, ok)
}

func TestUpdateSet(t *testing.T) {
	u := Add("age", 1).Set("username", "member")
	as := u.Assignments()
	require.Len(t, as, 2)
	assert.True(t, as[0].Delta)
	assert.False(t, as[1].Delta)
	assert.NoError(t, u.Validate())

	var empty *UpdateSet
	assert.ErrorIs(t, empty.Validate(), ErrInvalidPredicate)
	assert.ErrorIs(t, Set("", 1).Validate(), ErrInvalidPredicate)
}
