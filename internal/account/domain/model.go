// Package domain contains the account model. Accounts never carry a premium
// flag; premium access is derived from payment and subscription records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Account struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Email        string       `json:"email" gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string       `json:"-" gorm:"type:text;not null"`
	Admin        bool         `json:"admin" gorm:"not null;default:false"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }
