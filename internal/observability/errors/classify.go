// Package errors derives stable error class tags for metrics and
// failure notifications.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Classify maps err to a low-cardinality class name. Context
// cancellations and Postgres SQLSTATEs get dedicated classes since
// they dominate a queue's failure modes; everything else falls back
// to the innermost concrete type, snake_cased.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return classifyPostgres(pgErr.Code)
	}

	return typeClass(innermost(err))
}

// classifyPostgres names the constraint violations callers act on and
// folds the long tail into the raw SQLSTATE.
func classifyPostgres(code string) string {
	switch code {
	case pgerrcode.UniqueViolation:
		return "pg_unique_violation"
	case pgerrcode.ForeignKeyViolation:
		return "pg_foreign_key_violation"
	case pgerrcode.CheckViolation:
		return "pg_check_violation"
	case pgerrcode.NotNullViolation:
		return "pg_not_null_violation"
	case pgerrcode.SerializationFailure:
		return "pg_serialization_failure"
	case pgerrcode.LockNotAvailable:
		return "pg_lock_not_available"
	case "":
		return "pg_error"
	default:
		return "pg_" + strings.ToLower(code)
	}
}

func innermost(err error) error {
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}

func typeClass(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
