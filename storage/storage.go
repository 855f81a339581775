// Package storage provides the persistence backends: a flat-file JSON
// store (the default), an Azure Table variant behind the same interfaces,
// a Redis read cache wrapper and the attachment blob store.
package storage

import (
	"errors"
	"time"
)

// ErrDuplicateEmail is returned by CreateUser when the email is taken.
var ErrDuplicateEmail = errors.New("user already exists")

// User is a registered account. Password holds the bcrypt hash, never the
// plaintext.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sanitized returns a copy safe to hand to clients.
func (u User) Sanitized() User {
	u.Password = ""
	return u
}
