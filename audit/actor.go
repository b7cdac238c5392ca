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

package audit

import "context"

type actorKey struct{}

// WithActor returns a context that carries the acting principal.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the principal stored by WithActor.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey{}).(string)
	return actor, ok && actor != ""
}

// ActorResolver resolves the principal recorded in created_by/updated_by.
type ActorResolver interface {
	CurrentActor(ctx context.Context) string
}

type ActorResolverFunc func(ctx context.Context) string

func (f ActorResolverFunc) CurrentActor(ctx context.Context) string { return f(ctx) }

// ContextActor reads the actor from the context and falls back to Default.
type ContextActor struct {
	Default string
}

func (r ContextActor) CurrentActor(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor
	}
	return r.Default
}
