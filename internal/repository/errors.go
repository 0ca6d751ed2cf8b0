// Package repository defines error types that are reused across the
// reservation stores.  These sentinel values let the coordinator tell a
// missing row apart from a lost optimistic race or an unreachable
// backend without knowing which storage engine produced them.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a reservation, membership or invitation
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by AtomicUpdate when another writer committed
// to the same reservation between the read and the write (version
// mismatch, deadlock or serialization failure).  The whole
// read-compute-write cycle is safe to retry.
var ErrConflict = errors.New("conflict")

// ErrNoChange is returned by a transaction body to signal that the
// requested change is already in effect.  The store commits nothing and
// hands the error back together with the current state.
var ErrNoChange = errors.New("no change")

// ErrUnavailable wraps failures to reach the backing store: dropped
// connections, network errors and attempt timeouts.
var ErrUnavailable = errors.New("store unavailable")

// MySQL error numbers that indicate a lost race rather than a bug.
const (
	mysqlDeadlock     = 1213
	mysqlLockWait     = 1205
	mysqlDuplicateKey = 1062
)

// classify maps a driver error onto the package sentinels.  Errors that
// are already sentinels, or that carry no recognisable signal, are
// returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict),
		errors.Is(err, ErrNoChange), errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone), errors.Is(err, mysql.ErrInvalidConn):
		return errors.Join(ErrUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Join(ErrUnavailable, err)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDeadlock, mysqlLockWait, mysqlDuplicateKey:
			return errors.Join(ErrConflict, err)
		}
		return err
	}
	// modernc.org/sqlite reports lock contention as SQLITE_BUSY / SQLITE_LOCKED
	// and constraint races as UNIQUE failures.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "unique constraint failed") {
		return errors.Join(ErrConflict, err)
	}
	return err
}
