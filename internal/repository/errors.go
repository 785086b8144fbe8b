// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios. ErrNotFound signals a missing row, while ErrConflict signals
// that an operation cannot proceed because of existing dependent records
// (e.g. deleting a timeslot that has a confirmed reservation).
package repository

import (
    "errors"

    "github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a delete or update cannot be
// performed because of conflicting state, such as attempting to
// delete a timeslot that still has a confirmed reservation. Handlers
// should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// MySQL error numbers the repositories translate.
const (
    mysqlDuplicateEntry  = 1062
    mysqlNoReferencedRow = 1452
)

// translate maps driver errors onto the sentinels above and returns any
// other error untouched.
func translate(err error) error {
    var me *mysql.MySQLError
    if errors.As(err, &me) {
        switch me.Number {
        case mysqlDuplicateEntry:
            return ErrConflict
        case mysqlNoReferencedRow:
            return ErrNotFound
        }
    }
    return err
}
