package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqlitePragmas favour concurrent readers alongside the worker's writes.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// sqliteDSN returns a modernc.org/sqlite DSN for path, creating its directory.
func sqliteDSN(path string) (string, error) {
	if path == "" {
		path = "./credbud.db"
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + path
	for i, p := range sqlitePragmas {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		dsn += sep + "_pragma=" + p
	}
	return dsn, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
