// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// User represents an account, created either by local registration or by
// the first federated login for a given provider identity.
//
// WHY POINTERS FOR THE OPTIONAL FIELDS?
// Every identifying column (username, email, google_id) is UNIQUE in the
// database, and SQLite treats NULLs as distinct under a UNIQUE constraint.
// A nil pointer becomes NULL, so many federated users without a username
// can coexist. An empty string would collide on the second insert.
//
// INVARIANT: a user has a PasswordHash, a GoogleID, or both. There is no
// way to authenticate as a user with neither.
type User struct {
	ID             string    `json:"id"`
	Username       *string   `json:"username,omitempty"`
	Email          *string   `json:"email,omitempty"`
	PasswordHash   *string   `json:"-"`
	GoogleID       *string   `json:"-"`
	Name           *string   `json:"name,omitempty"`
	ProfilePicture *string   `json:"profile_picture,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasCredential reports whether the user can authenticate at all.
func (u *User) HasCredential() bool {
	return (u.PasswordHash != nil && *u.PasswordHash != "") ||
		(u.GoogleID != nil && *u.GoogleID != "")
}

// DisplayName picks what to show for the user: the provider-supplied name,
// then the username, then the local part of the email address.
func (u *User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	if u.Email != nil {
		local, _, _ := strings.Cut(*u.Email, "@")
		return local
	}
	return ""
}

// Author is the public summary of a user embedded in posts and comments.
type Author struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// AuthorOf builds the public summary for u.
func AuthorOf(u *User) Author {
	a := Author{ID: u.ID, Name: u.DisplayName()}
	if u.ProfilePicture != nil {
		a.ProfilePicture = *u.ProfilePicture
	}
	return a
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
