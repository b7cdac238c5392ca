// Package repository provides generic repositories built on Bun: CRUD,
// predicate finders, paged and sliced finders, bulk updates, locking reads,
// projections and native queries, plus a unit of work that tracks loaded
// entities and flushes their changes before commit.
//
// The roster stores are MemberRepository and TeamRepository.
package repository
