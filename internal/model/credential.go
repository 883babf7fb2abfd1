package model

import (
	"strconv"
	"time"
)

// Credential is the OAuth2 token set for the logged in user.
//
// ExpiresAt is derived from IssuedAt and ExpiresIn when the credential is
// created and is persisted as-is; it is never recomputed later from a
// server-relative value.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string

	// IssuedAt is the local time the token response was received.
	IssuedAt time.Time

	// ExpiresIn is the lifetime in seconds reported by the token endpoint.
	ExpiresIn int64

	// ExpiresAt is IssuedAt + ExpiresIn.
	ExpiresAt time.Time
}

// NewCredential builds a Credential received at issuedAt, computing its
// expiry.
func NewCredential(accessToken, refreshToken, tokenType, scope string, expiresIn int64, issuedAt time.Time) *Credential {
	return &Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
		Scope:        scope,
		IssuedAt:     issuedAt,
		ExpiresIn:    expiresIn,
		ExpiresAt:    issuedAt.Add(time.Duration(expiresIn) * time.Second),
	}
}

// IsExpired reports whether now is at or past ExpiresAt.
func (c *Credential) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AuthorizationHeader returns the value for the Authorization header.
func (c *Credential) AuthorizationHeader() string {
	return "Bearer " + c.AccessToken
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
