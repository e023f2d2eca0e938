package user

import (
	"errors"
	"net/mail"
	"time"
)

var ErrNotFound = errors.New("user not found")

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Address returns the User's mailbox, falling back to the bare email when Name is empty.
func (u User) Address() mail.Address {
	return mail.Address{Name: u.Name, Address: u.Email}
}

// DisplayName returns Name, or Email when the User has no name.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
