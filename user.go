package taskdeck

import (
	"errors"
	"time"
)

// Role governs what a user may do with tasks and which areas they can see.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// The predicates below are pure functions of the resolved identity's role.
// Callers must evaluate them against the current identity on every use.

func (r Role) CanCreateTask() bool { return r == RoleAdmin || r == RoleManager }

func (r Role) CanEditTask() bool { return r == RoleAdmin || r == RoleManager }

func (r Role) CanDeleteTask() bool { return r == RoleAdmin }

func (r Role) CanViewAdminArea() bool { return r == RoleAdmin }

// CanReviewTasks covers the approval workflow: listing pending tasks and
// approving or rejecting an ended one.
func (r Role) CanReviewTasks() bool { return r == RoleAdmin || r == RoleManager }

type User struct {
	ID             uint64 `json:"id"`
	Email          string `json:"email"`
	HashedPassword string `json:"-"`
	Role           Role   `json:"role"`
}

type UserRepository interface {
	Create(user User) (User, error)
	Find(userID uint64) (User, error)
	FindByEmail(email string) (User, error)
	UpdatePassword(userID uint64, hashedPassword string) error
}

// PasswordReset is a single-use token mailed to a user who forgot their
// password.
type PasswordReset struct {
	ID        uint64
	UserID    uint64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type PasswordResetRepository interface {
	Create(reset PasswordReset) (PasswordReset, error)
	FindByToken(token string) (PasswordReset, error)
	Delete(resetID uint64) error
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
)
