package types

import (
  "time"
)

// User is keyed by username; email carries its own unique index.
type User struct {
  ID                  string                    `gorm:"primaryKey;column:id" json:"id"`
  Username            string                    `gorm:"not null;column:username" json:"username"`
  Email               string                    `gorm:"uniqueIndex;not null;column:email" json:"email"`
  PasswordHash        string                    `gorm:"not null;column:password_hash" json:"-"`

  CreatedAt           time.Time                 `gorm:"not null;autoCreateTime:false" json:"createdAt"`
}

func (User) TableName() string {
  return "user"
}
