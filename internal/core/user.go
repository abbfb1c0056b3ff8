package core

import (
	"strings"
	"time"
)

// User is the account owning transactions.
type User struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session identifies the user on whose behalf a call is made.
// It is passed explicitly to every service call.
type Session struct {
	UserID string `json:"_id"`
	Name   string `json:"name"`
}

func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.UserID) != ""
}

func (u User) Session() Session {
	return Session{UserID: u.ID, Name: u.Name}
}
