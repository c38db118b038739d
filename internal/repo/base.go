// Package repo holds what the cart and order repositories share: a gorm
// handle that may be the root connection or an open transaction.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB scopes the handle to ctx. A nil ctx returns the handle unchanged.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Postgres reports whether the handle talks to postgres. Everything else is
// assumed to be the sqlite test/dev database.
func (b Base) Postgres() bool {
	return b.db != nil && b.db.Dialector != nil && b.db.Dialector.Name() == "postgres"
}

// ForUpdate row-locks the selected rows on postgres. Sqlite already
// serialises writers, so the handle is returned without a locking clause.
func (b Base) ForUpdate(ctx context.Context) *gorm.DB {
	conn := b.DB(ctx)
	if !b.Postgres() {
		return conn
	}
	return conn.Clauses(clause.Locking{Strength: "UPDATE"})
}
