package domain

import (
	"errors"
	"net/mail"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for User.
var (
	ErrEmptyUserID       = errors.New("user ID cannot be empty")
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrPasswordTooShort  = errors.New("password must be at least 12 characters")
	ErrEmptyPasswordHash = errors.New("password hash cannot be empty")
)

// minPasswordLength is the minimum accepted password length for registration.
const minPasswordLength = 12

// User is an account that owns clips and recording sessions.
// Password carries the plaintext only between request decoding and hashing;
// it is never persisted or serialized.
type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Password       string    `json:"-"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewUser creates a User with the given email and plaintext password.
// The caller is responsible for hashing the password before persisting.
func NewUser(email, password string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:        uuid.New(),
		Email:     email,
		Password:  password,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}
	return user, nil
}

// Validate checks if the User has valid data. A user must carry either a
// plaintext password (pre-hash) or a stored hash.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return ErrInvalidEmail
	}
	if u.HashedPassword == "" {
		if len(u.Password) < minPasswordLength {
			return ErrPasswordTooShort
		}
	}
	return nil
}
