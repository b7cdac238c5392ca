// Package database provides configuration, connection management, error
// normalization, transactions, migrations, foreign key handling, SQL seeding,
// query hooks and metrics built on top of Bun.
package database
