package storage

import (
	"visitor-access-control/internal/config"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteProvider struct {
	SQLProvider
}

func NewSQLiteProvider(config *config.Storage) *SQLiteProvider {
	inner := NewSQLProvider(config, "sqlite3", config.SQLite.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if inner == nil {
		return nil
	}
	return &SQLiteProvider{
		SQLProvider: *inner,
	}
}
