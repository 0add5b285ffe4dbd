// Package store defines the document-store contract every service is built
// against, with a MongoDB implementation for production and an in-memory one
// for tests. Instances are constructed in main and injected; there is no
// package-level database handle.
package store

import (
	"context"
	"errors"
	"time"
)

// Collection names shared by all services.
const (
	ColUsers         = "users"
	ColSessionTokens = "session_tokens"
	ColMessages      = "messages"
)

// ErrNotFound is returned by FindOne and by updates against a missing id.
var ErrNotFound = errors.New("store: document not found")

// Filter is a set of field-equality predicates. Matching a scalar against an
// array field means "array contains" (Mongo semantics). Keys in UpdateFields
// may be dotted paths ("last_message_with.<peer>.unread").
type Filter map[string]any

// OpType discriminates batch operations.
type OpType int

const (
	OpUpdate OpType = iota
	OpDelete
)

// Op is one entry of an atomic batch. Fields is only read for OpUpdate.
type Op struct {
	Type       OpType
	Collection string
	ID         string
	Fields     Filter
}

// Store is the generic document-store adapter. All cross-document mutations
// that must be all-or-nothing go through AtomicBatch; partial application is
// never observable.
type Store interface {
	// FindOne decodes the first document matching filter into dest, or
	// returns ErrNotFound.
	FindOne(ctx context.Context, collection string, filter Filter, dest any) error

	// FindByID decodes the document with the given id, or returns ErrNotFound.
	FindByID(ctx context.Context, collection, id string, dest any) error

	// FindMany decodes every matching document into dest (a *[]T), in
	// insertion order.
	FindMany(ctx context.Context, collection string, filter Filter, dest any) error

	// Insert stores doc and returns its server-assigned id.
	Insert(ctx context.Context, collection string, doc any) (string, error)

	// UpdateFields sets the given fields on the document with the given id.
	UpdateFields(ctx context.Context, collection, id string, fields Filter) error

	// AtomicBatch applies every op or none of them.
	AtomicBatch(ctx context.Context, ops []Op) error

	// Now returns the server-assigned timestamp used for document creation
	// instants. Non-decreasing across calls.
	Now() time.Time
}
