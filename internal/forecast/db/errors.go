package forecastdb

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrInvalidRecord is returned when the database rejects a record payload.
var ErrInvalidRecord = errors.New("forecastdb: invalid record")

// Postgres error codes treated as caller mistakes.
const (
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeInvalidTextRepr     = "22P02"
	codeNumericOutOfRange   = "22003"
	codeInvalidJSONText     = "22032"
	codeStringDataTruncated = "22001"
)

// MapError converts constraint and data errors into ErrInvalidRecord.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeNotNullViolation, codeCheckViolation, codeInvalidTextRepr,
		codeNumericOutOfRange, codeInvalidJSONText, codeStringDataTruncated:
		return fmt.Errorf("%w: %s", ErrInvalidRecord, pgErr.Message)
	default:
		return err
	}
}
