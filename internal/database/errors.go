package database

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/rzpsarthak13/sqlkit/internal/core"
)

const (
	errDuplicateEntry = 1062
	errNoSuchTable    = 1146
)

func mysqlNumber(err error) (uint16, bool) {
	var de *core.DriverError
	if errors.As(err, &de) {
		return de.MySQLNumber()
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number, true
	}
	return 0, false
}

// IsDuplicateEntry reports whether err is a unique key violation.
func IsDuplicateEntry(err error) bool {
	n, ok := mysqlNumber(err)
	return ok && n == errDuplicateEntry
}

// IsNoSuchTable reports whether err is caused by a missing table.
func IsNoSuchTable(err error) bool {
	n, ok := mysqlNumber(err)
	return ok && n == errNoSuchTable
}
