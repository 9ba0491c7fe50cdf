package sqlite

import (
	"errors"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, which "table.column" it names (e.g. "users.username").
//
// SQLite reports the column only in the message text:
//
//	constraint failed: UNIQUE constraint failed: users.username (2067)
func uniqueViolation(err error) (column string, ok bool) {
	var sqlErr *moderncsqlite.Error
	if !errors.As(err, &sqlErr) {
		return "", false
	}
	if sqlErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		sqlErr.Code() != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return "", false
	}

	msg := sqlErr.Error()
	const marker = "constraint failed: "
	if i := strings.LastIndex(msg, marker); i >= 0 {
		column = msg[i+len(marker):]
		if j := strings.IndexAny(column, " ,"); j >= 0 {
			column = column[:j]
		}
	}
	return column, true
}
