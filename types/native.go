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
	"fmt"
	"strings"
)

// NamedArgs binds native query parameters by name (":name" placeholders).
type NamedArgs map[string]interface{}

// Literal is a quoted literal of a native query, quotes included, that
// BindNamed moved into the argument list because it contains a "?". It must
// be written back verbatim.
type Literal string

// BindNamed rewrites ":name" placeholders outside quoted literals into
// positional "?" placeholders and returns the matching argument list.
// Quoted literals containing "?" are replaced by a placeholder bound to a
// Literal, so that every "?" of the result is a placeholder. Postgres casts
// ("::int") are left untouched. Unknown names are errors.
func BindNamed(query string, args NamedArgs) (string, []interface{}, error) {
	var (
		b   strings.Builder
		out []interface{}
	)
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := strings.IndexByte(query[i+1:], c)
			if end < 0 {
				return "", nil, fmt.Errorf("%w: unterminated quoted literal", ErrInvalidPredicate)
			}
			lit := query[i : i+end+2]
			if strings.IndexByte(lit, '?') >= 0 {
				b.WriteByte('?')
				out = append(out, Literal(lit))
			} else {
				b.WriteString(lit)
			}
			i += end + 1
		case c == ':' && i+1 < len(query) && query[i+1] == ':':
			b.WriteString("::")
			i++
		case c == ':' && i+1 < len(query) && isNameStart(query[i+1]):
			j := i + 1
			for j < len(query) && isNamePart(query[j]) {
				j++
			}
			name := query[i+1 : j]
			v, ok := args[name]
			if !ok {
				return "", nil, fmt.Errorf("%w: missing value for named parameter :%s", ErrInvalidPredicate, name)
			}
			b.WriteByte('?')
			out = append(out, v)
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), out, nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
