package store

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the typed persistence layer. One file per aggregate; each write
// is atomic at the aggregate level, there are no cross-aggregate
// transactions.
type Store struct {
	db *gorm.DB
}

// New wraps a connected gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// lockForUpdate adds a row lock on dialects that support it. SQLite (used
// by the test suite) serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
