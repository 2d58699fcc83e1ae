// Package identity resolves opaque participant ids against the user
// directory. The engine never authenticates: a connection arrives with an
// already-resolved identity, and this package only looks up display data
// for payloads and refuses connections for unknown users.
package identity

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no identity exists for the given id.
var ErrNotFound = errors.New("identity not found")

// Identity is the canonical identity record.
type Identity struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Directory resolves ids to identity records.
type Directory interface {
	Resolve(ctx context.Context, id int64) (*Identity, error)
}
