package auth

import (
	"time"

	"github.com/handiism/soundcloud-offline/internal/model"
)

// tokenResponse is the token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// toCredential stamps the response with the time it was received.
func (t tokenResponse) toCredential(receivedAt time.Time) *model.Credential {
	return model.NewCredential(t.AccessToken, t.RefreshToken, t.TokenType, t.Scope, t.ExpiresIn, receivedAt)
}
