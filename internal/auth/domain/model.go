package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role partitions the API surface. Subscribers own letters, employees hold
// referral coupons, admins run the review queue.
type Role string

const (
	RoleUser     Role = "user"
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleEmployee:
		return true
	}
	return false
}

// User is an account. PasswordHash is a bcrypt hash and never leaves the
// auth package.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Email        string       `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string       `gorm:"type:text;not null"`
	DisplayName  string       `gorm:"type:text;not null;default:''"`
	Role         Role         `gorm:"type:text;not null;default:'user'"`
	IsUnlimited  bool         `gorm:"not null;default:false"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Session is one issued login. The token is the cookie value; the CSRF token
// is returned to the client and required on every mutating request.
type Session struct {
	Token     string       `gorm:"primaryKey;type:text"`
	UserID    snowflake.ID `gorm:"not null;index"`
	CSRFToken string       `gorm:"column:csrf_token;type:text;not null"`
	ExpiresAt time.Time    `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID    snowflake.ID
	Email     string
	Role      Role
	CSRFToken string
	Session   string
}
