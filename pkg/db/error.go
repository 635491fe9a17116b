package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsSerializationErr reports whether the error is a transient transaction
// conflict worth retrying.
func IsSerializationErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	// PostgreSQL 40001 / 40P01
	if strings.Contains(msg, "could not serialize access") || strings.Contains(msg, "deadlock detected") {
		return true
	}
	// MySQL 1213
	if strings.Contains(msg, "Deadlock found when trying to get lock") {
		return true
	}
	// SQLite busy
	if strings.Contains(msg, "database is locked") {
		return true
	}
	return false
}
