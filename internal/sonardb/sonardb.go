// Package sonardb caches finished map images in SQLite so a survey does not
// need to be re-accumulated from pings. Callers decide when to read or write;
// the package owns the on-disk layout.
package sonardb

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/sidescan.report/internal/monitoring"
)

// ErrNotFound is returned when a requested image does not exist.
var ErrNotFound = errors.New("map image not found")

type SonarDB struct {
	*sql.DB
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Open opens or creates the database at path and migrates it to the latest
// schema.
func Open(path string) (*SonarDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sonar database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", p, err)
		}
	}

	sdb := &SonarDB{db}
	if err := sdb.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("opened sonar database %s", path)
	return sdb, nil
}
