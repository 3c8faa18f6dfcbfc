package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrPermissionDenied means the store refused the operation. Not retryable.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnavailable means the store could not be reached. Retryable by the caller.
	ErrUnavailable = errors.New("store unavailable")
)

// MySQL server error numbers.
const (
	erDBAccessDenied       = 1044
	erAccessDenied         = 1045
	erDupEntry             = 1062
	erTableAccessDenied    = 1142
	erColumnAccessDenied   = 1143
	erSpecificAccessDenied = 1227
)

// mapError converts driver errors to the repository's sentinels. Context
// errors pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrUnavailable, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erDBAccessDenied, erAccessDenied, erTableAccessDenied, erColumnAccessDenied, erSpecificAccessDenied:
			return errors.Join(ErrPermissionDenied, err)
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return errors.Join(ErrUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}

// isDuplicateEntryError checks if a MySQL error is a duplicate entry error (code 1062).
func isDuplicateEntryError(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == erDupEntry
}
