package models

import "time"

// SessionToken is a persisted bearer credential. Expiry is absolute and never
// renewed implicitly; the token is deleted on logout and on password change.
type SessionToken struct {
	ID        string    `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Token     string    `bson:"token" json:"token"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}
