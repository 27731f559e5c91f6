// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects an issued access/refresh token pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry (for diagnostics)
}

// User represents an account stored on the server. The password is only ever
// held as a bcrypt hash.
type User struct {
	ID           uuid.UUID // PK
	Username     string    // unique, lowercase
	Email        string    // unique, lowercase
	FullName     string
	Avatar       string // asset URL, required
	CoverImage   string // asset URL, empty when not set
	PwdHash      []byte // bcrypt(password)
	RefreshToken string // most recently issued refresh token, empty when logged out
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitized returns a copy without credential material.
func (u User) Sanitized() User {
	u.PwdHash = nil
	u.RefreshToken = ""
	return u
}

// ChannelProfile is a user as seen by another user, with subscription counters.
type ChannelProfile struct {
	ID                uuid.UUID
	Username          string
	FullName          string
	Email             string
	Avatar            string
	CoverImage        string
	SubscribersCount  int64
	SubscribedToCount int64
	IsSubscribed      bool // viewer follows this channel
}

// VideoOwner is the owner projection joined into watch history entries.
type VideoOwner struct {
	ID       uuid.UUID
	Username string
	FullName string
	Avatar   string
}

// WatchedVideo is a watch history entry with its owner joined in.
type WatchedVideo struct {
	ID          uuid.UUID
	VideoFile   string
	Thumbnail   string
	Title       string
	Description string
	Duration    float64 // seconds
	Views       int64
	CreatedAt   time.Time
	Owner       VideoOwner
}
