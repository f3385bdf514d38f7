package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base carries the GORM handle shared by the domain repositories. A
// repository embeds one Base for the live connection and swaps in a fresh
// one when it is rebound to a transaction.
type Base struct {
	db *gorm.DB
}

// NewBase wraps a GORM connection or transaction handle.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the handle scoped to ctx so cancellation propagates to queries.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}
