package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists accounts. Email uniqueness is enforced by the insert
// itself, not by a prior existence check.
type Repository interface {
	// Insert writes the account unless the email is taken. Reports whether a
	// row was written.
	Insert(ctx context.Context, db *gorm.DB, account *Account) (bool, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Account, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
}
