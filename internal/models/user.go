package models

import "time"

// UserKind separates ordinary accounts from administrative ones.
// Stored under the wire name "type" (matches the values clients send).
type UserKind string

const (
	KindMortal UserKind = "mortal"
	KindAdmin  UserKind = "admin"
)

type User struct {
	ID        string    `bson:"_id,omitempty" json:"id,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`

	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`

	// Password is the argon2id hash; empty for federated-login-only accounts.
	// User records are never encoded to API responses directly, responses use
	// their own shapes.
	Password string `bson:"password,omitempty" json:"password,omitempty"`

	// FederatedID is the identity-provider subject for accounts created via
	// federated login. The token exchange itself happens outside this service.
	FederatedID string `bson:"federated_id,omitempty" json:"federated_id,omitempty"`

	ProfilePictureURL string   `bson:"profile_picture_url,omitempty" json:"profile_picture_url,omitempty"`
	Kind              UserKind `bson:"type" json:"type"`

	// FriendCode is the human-shareable handle used to start a contact
	// request ("#" followed by 8 alphanumerics).
	FriendCode string `bson:"friend_code" json:"friend_code"`

	// Contacts is symmetric: if A lists B then B lists A.
	Contacts []string `bson:"contacts" json:"contacts"`

	// PendingRequests holds unresolved incoming friend requests, oldest first.
	PendingRequests []PendingRequest `bson:"pending_requests" json:"pending_requests"`

	// LastMessageWith maps a peer's user id to the newest message summary for
	// that conversation. The receiver's copy carries the unread flag.
	LastMessageWith map[string]LastMessage `bson:"last_message_with,omitempty" json:"last_message_with,omitempty"`
}

// PendingRequest is a directed, not-yet-resolved friend invitation embedded
// in the receiver's user document.
type PendingRequest struct {
	SenderID     string    `bson:"sender_id" json:"sender_id"`
	SenderName   string    `bson:"sender_name" json:"sender_name"`
	SenderAvatar string    `bson:"sender_avatar,omitempty" json:"sender_avatar,omitempty"`
	ReceivedAt   time.Time `bson:"received_at" json:"received_at"`
}

// LastMessage is the per-peer conversation summary shown in the contact list.
type LastMessage struct {
	Content string    `bson:"content" json:"content"`
	SentAt  time.Time `bson:"sent_at" json:"sent_at"`
	Unread  bool      `bson:"unread,omitempty" json:"unread,omitempty"`
}
