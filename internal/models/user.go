package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// User represents a principal stored in the users table. PasswordHash and
// RefreshToken never leave the session layer; use Profile for anything
// returned to callers.
type User struct {
	ID           string      `db:"id" json:"id"`
	Username     string      `db:"username" json:"username"`
	Email        string      `db:"email" json:"email"`
	FullName     string      `db:"full_name" json:"fullName"`
	Avatar       string      `db:"avatar" json:"avatar"`
	CoverImage   string      `db:"cover_image" json:"coverImage"`
	PasswordHash string      `db:"password_hash" json:"-"`
	RefreshToken RefreshSlot `db:"refresh_token" json:"-"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updatedAt"`
}

// Profile returns the public projection of the user.
func (u *User) Profile() *UserProfile {
	if u == nil {
		return nil
	}
	return &UserProfile{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.Avatar,
		CoverImage: u.CoverImage,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// UserProfile is a principal without credential material.
type UserProfile struct {
	ID         string    `db:"id" json:"id"`
	Username   string    `db:"username" json:"username"`
	Email      string    `db:"email" json:"email"`
	FullName   string    `db:"full_name" json:"fullName"`
	Avatar     string    `db:"avatar" json:"avatar"`
	CoverImage string    `db:"cover_image" json:"coverImage"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// RefreshMatch is the outcome of comparing a presented refresh token with the
// stored slot.
type RefreshMatch int

const (
	// RefreshAbsent means no session is active (never logged in or logged out).
	RefreshAbsent RefreshMatch = iota
	// RefreshCurrent means the presented token is the live one.
	RefreshCurrent
	// RefreshRotated means a session exists but the presented token was
	// rotated away or superseded by a newer login.
	RefreshRotated
)

func (m RefreshMatch) String() string {
	switch m {
	case RefreshAbsent:
		return "absent"
	case RefreshCurrent:
		return "current"
	case RefreshRotated:
		return "rotated"
	default:
		return fmt.Sprintf("RefreshMatch(%d)", int(m))
	}
}

// RefreshSlot holds at most one live refresh token for a principal.
// The zero value is the absent state.
type RefreshSlot struct {
	token  string
	active bool
}

// ActiveRefresh returns a slot holding token. An empty token yields the
// absent slot.
func ActiveRefresh(token string) RefreshSlot {
	if token == "" {
		return RefreshSlot{}
	}
	return RefreshSlot{token: token, active: true}
}

// NoRefresh returns the absent slot.
func NoRefresh() RefreshSlot {
	return RefreshSlot{}
}

// Active reports whether a refresh token is stored.
func (s RefreshSlot) Active() bool {
	return s.active
}

// Token returns the stored value and whether one is present.
func (s RefreshSlot) Token() (string, bool) {
	return s.token, s.active
}

// Match classifies a presented token against the slot.
func (s RefreshSlot) Match(presented string) RefreshMatch {
	if !s.active {
		return RefreshAbsent
	}
	if presented != "" && presented == s.token {
		return RefreshCurrent
	}
	return RefreshRotated
}

// Scan implements sql.Scanner for the nullable refresh_token column.
func (s *RefreshSlot) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = RefreshSlot{}
	case string:
		*s = ActiveRefresh(v)
	case []byte:
		*s = ActiveRefresh(string(v))
	default:
		return fmt.Errorf("refresh slot: unsupported type %T", src)
	}
	return nil
}

// Value implements driver.Valuer; the absent slot is stored as NULL.
func (s RefreshSlot) Value() (driver.Value, error) {
	if !s.active {
		return nil, nil
	}
	return s.token, nil
}
