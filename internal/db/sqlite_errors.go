package db

import (
	"errors"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

func IsUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	if sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}

	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// uniqueViolationColumn returns the "table.column" named by a UNIQUE
// constraint failure, or "" when err is not one.
func uniqueViolationColumn(err error) string {
	if !IsUniqueConstraintError(err) {
		return ""
	}
	msg := err.Error()
	idx := strings.Index(msg, "constraint failed: ")
	if idx < 0 {
		return ""
	}
	cols := msg[idx+len("constraint failed: "):]
	if comma := strings.IndexByte(cols, ','); comma >= 0 {
		cols = cols[:comma]
	}
	return strings.TrimSpace(cols)
}
