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
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Error kinds surfaced by the data-access layer. Driver errors are wrapped so
// that errors.Is matches both the kind and the original driver error.
var (
	ErrNotFound            = errors.New("record not found")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrLockTimeout         = errors.New("lock timeout")
	ErrInvalidQuery        = errors.New("invalid query")
)

func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsConstraintViolation(err error) bool { return errors.Is(err, ErrConstraintViolation) }
func IsStoreUnavailable(err error) bool    { return errors.Is(err, ErrStoreUnavailable) }
func IsLockTimeout(err error) bool         { return errors.Is(err, ErrLockTimeout) }
func IsInvalidQuery(err error) bool        { return errors.Is(err, ErrInvalidQuery) }

var kinds = []error{ErrNotFound, ErrConstraintViolation, ErrStoreUnavailable, ErrLockTimeout, ErrInvalidQuery}

// Translate maps a store error onto the error kinds. Errors it cannot
// classify, including context cancellation, are returned unmodified.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	if kind := classify(err); kind != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return err
}

func classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres(pqErr)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return classifyMySQL(myErr)
	}
	if isConnectionError(err) {
		return ErrStoreUnavailable
	}
	return classifyMessage(strings.ToLower(err.Error()))
}

func classifyPostgres(e *pq.Error) error {
	switch {
	case e.Code == "55P03", e.Code == "57014", e.Code == "40P01":
		// lock_not_available, query_canceled by lock/statement timeout, deadlock
		return ErrLockTimeout
	case e.Code.Class() == "23":
		return ErrConstraintViolation
	case e.Code.Class() == "42":
		return ErrInvalidQuery
	case e.Code.Class() == "08", e.Code.Class() == "53", e.Code == "57P01", e.Code == "57P03":
		return ErrStoreUnavailable
	}
	return nil
}

func classifyMySQL(e *mysql.MySQLError) error {
	switch e.Number {
	case 1205, 3572, 1213:
		return ErrLockTimeout
	case 1062, 1048, 1216, 1217, 1451, 1452, 3819:
		return ErrConstraintViolation
	case 1064, 1054, 1146, 1149:
		return ErrInvalidQuery
	case 1040, 1045, 1049, 2002, 2003, 2006, 2013:
		return ErrStoreUnavailable
	}
	return nil
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// classifyMessage covers sqlite, whose drivers only expose messages.
func classifyMessage(s string) error {
	switch {
	case strings.Contains(s, "database is locked"), strings.Contains(s, "database table is locked"):
		return ErrLockTimeout
	case strings.Contains(s, "constraint failed"):
		return ErrConstraintViolation
	case strings.Contains(s, "syntax error"), strings.Contains(s, "no such column"),
		strings.Contains(s, "no such table"), strings.Contains(s, "incomplete input"):
		return ErrInvalidQuery
	case strings.Contains(s, "connection refused"), strings.Contains(s, "unable to open database"),
		strings.Contains(s, "sql: database is closed"):
		return ErrStoreUnavailable
	}
	return nil
}

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoIndexErr
	NoColumnErr
	ExistIndexErr
	ExistColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
	LockNotAvailableErr
)

var pqCodes = map[pq.ErrorCode]SQLError{
	"42703": NoColumnErr,
	"42704": NoIndexErr,
	"42P01": NoTableErr,
	"42P07": ExistTableErr,
	"42701": ExistColumnErr,
	"23505": DuplicateKeyErr,
	"23502": NotNullViolationErr,
	"23503": ForeignKeyViolationErr,
	"23514": CheckConstraintViolationErr,
	"22001": DataTruncatedErr,
	"42804": InvalidTypeCastErr,
	"55P03": LockNotAvailableErr,
}

// IsSqlError reports the fine-grained kind of a driver error. It is the
// detail behind Translate for callers that branch on a specific constraint.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if kind, ok := pqCodes[pqErr.Code]; ok {
			return true, kind
		}
		return true, UnknownErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1091:
			return true, NoIndexErr
		case 1054:
			return true, NoColumnErr
		case 1061:
			return true, ExistIndexErr
		case 1060:
			return true, ExistColumnErr
		case 1146:
			return true, NoTableErr
		case 1050:
			return true, ExistTableErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1216, 1217, 1451, 1452:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1265:
			return true, DataTruncatedErr
		case 1205, 3572:
			return true, LockNotAvailableErr
		default:
			return true, UnknownErr
		}
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "no such column"):
		return true, NoColumnErr
	case strings.Contains(s, "no such index"):
		return true, NoIndexErr
	case strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "index"):
		return true, ExistIndexErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "table"):
		return true, ExistTableErr
	case strings.Contains(s, "duplicate column name"):
		return true, ExistColumnErr
	case strings.Contains(s, "unique constraint failed"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not null constraint failed"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key constraint failed"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint failed"):
		return true, CheckConstraintViolationErr
	case strings.Contains(s, "database is locked"):
		return true, LockNotAvailableErr
	}
	return false, UnknownErr
}
