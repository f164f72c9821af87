package domain

import (
	"strings"
	"time"
)

// RefreshWindow is how close to expiry a long-lived token must be before it is
// renewed automatically.
const RefreshWindow = 7 * 24 * time.Hour

// LongLivedTokenTTL is assumed when the exchange response omits expires_in.
const LongLivedTokenTTL = 60 * 24 * time.Hour

// DefaultUsername labels credentials that come from the environment.
const DefaultUsername = "instagram_user"

// TokenState describes where the operative token sits in its lifecycle.
type TokenState string

const (
	TokenAbsent       TokenState = "absent"
	TokenValid        TokenState = "valid"
	TokenExpiringSoon TokenState = "expiring_soon"
	TokenExpired      TokenState = "expired"
)

// Credential is the single Instagram publishing identity.
type Credential struct {
	AccessToken string     `json:"accessToken"`
	UserID      string     `json:"userId"`
	Username    string     `json:"username,omitempty"`
	PageID      string     `json:"pageId,omitempty"`
	PageName    string     `json:"pageName,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Valid reports whether the record carries the minimum to publish.
func (c Credential) Valid() bool {
	return strings.TrimSpace(c.AccessToken) != "" && strings.TrimSpace(c.UserID) != ""
}

// State classifies the credential relative to now. A missing expiry is treated
// as non-expiring.
func (c Credential) State(now time.Time) TokenState {
	if !c.Valid() {
		return TokenAbsent
	}
	if c.ExpiresAt == nil || c.ExpiresAt.IsZero() {
		return TokenValid
	}
	remaining := c.ExpiresAt.Sub(now)
	switch {
	case remaining <= 0:
		return TokenExpired
	case remaining < RefreshWindow:
		return TokenExpiringSoon
	default:
		return TokenValid
	}
}

// Usable reports whether publishing may be attempted in this state.
func (s TokenState) Usable() bool {
	return s == TokenValid || s == TokenExpiringSoon
}

// ExpiresIn converts a seconds-from-now value into an absolute instant.
func ExpiresIn(now time.Time, seconds int64) *time.Time {
	ttl := LongLivedTokenTTL
	if seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	at := now.Add(ttl).UTC()
	return &at
}
