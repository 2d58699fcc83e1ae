package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PGDirectory resolves identities from the users table.
type PGDirectory struct {
	db *sql.DB
}

// NewPGDirectory creates a Directory backed by the given database handle.
func NewPGDirectory(db *sql.DB) *PGDirectory {
	return &PGDirectory{db: db}
}

// Resolve implements Directory.
func (d *PGDirectory) Resolve(ctx context.Context, id int64) (*Identity, error) {
	const query = `
		SELECT id, username, display_name, COALESCE(avatar_url, '')
		FROM users
		WHERE id = $1`

	ident := &Identity{}
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&ident.ID, &ident.Username, &ident.DisplayName, &ident.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity: resolve %d: %w", id, err)
	}
	return ident, nil
}
