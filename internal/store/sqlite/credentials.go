package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/handiism/soundcloud-offline/internal/model"
)

// CredentialRepository stores the single OAuth2 credential. It implements
// auth.CredentialStore.
type CredentialRepository struct {
	db DBTX
}

// NewCredentialRepository creates a CredentialRepository on db.
func NewCredentialRepository(db DBTX) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Load returns the stored credential, or nil and no error when there is none.
func (r *CredentialRepository) Load(ctx context.Context) (*model.Credential, error) {
	var (
		c                             model.Credential
		issuedAt, expiresAt, lifetime int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, token_type, scope, issued_at, expires_in, expires_at
		FROM credentials WHERE id = 1`,
	).Scan(&c.AccessToken, &c.RefreshToken, &c.TokenType, &c.Scope, &issuedAt, &lifetime, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	c.IssuedAt = time.Unix(0, issuedAt).UTC()
	c.ExpiresIn = lifetime
	c.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return &c, nil
}

// Save replaces the stored credential.
func (r *CredentialRepository) Save(ctx context.Context, c *model.Credential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (id, access_token, refresh_token, token_type, scope, issued_at, expires_in, expires_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			scope = excluded.scope,
			issued_at = excluded.issued_at,
			expires_in = excluded.expires_in,
			expires_at = excluded.expires_at
	`, c.AccessToken, c.RefreshToken, c.TokenType, c.Scope,
		c.IssuedAt.UnixNano(), c.ExpiresIn, c.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Delete removes the stored credential. Deleting nothing is not an error.
func (r *CredentialRepository) Delete(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
