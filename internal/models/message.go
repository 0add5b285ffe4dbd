package models

import "time"

// Message is one entry in the append-only conversation log. CreatedAt is
// server-assigned and non-decreasing within a conversation; Read only ever
// flips false -> true, and only the receiver may flip it.
type Message struct {
	ID         string    `bson:"_id,omitempty" json:"id,omitempty"`
	SenderID   string    `bson:"sender_id" json:"sender_id"`
	ReceiverID string    `bson:"receiver_id" json:"receiver_id"`
	Content    string    `bson:"content" json:"content"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	Read       bool      `bson:"read" json:"read"`

	// Participants duplicates {sender, receiver} so "conversation contains
	// user X" is a single field-equality query.
	Participants []string `bson:"participants" json:"participants"`
}
