package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredentialState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}
	cases := []struct {
		name string
		cred Credential
		want TokenState
	}{
		{name: "empty", cred: Credential{}, want: TokenAbsent},
		{name: "token without user", cred: Credential{AccessToken: "t"}, want: TokenAbsent},
		{name: "no expiry", cred: Credential{AccessToken: "t", UserID: "u"}, want: TokenValid},
		{name: "far future", cred: Credential{AccessToken: "t", UserID: "u", ExpiresAt: at(30 * 24 * time.Hour)}, want: TokenValid},
		{name: "exactly window", cred: Credential{AccessToken: "t", UserID: "u", ExpiresAt: at(RefreshWindow)}, want: TokenValid},
		{name: "inside window", cred: Credential{AccessToken: "t", UserID: "u", ExpiresAt: at(3 * 24 * time.Hour)}, want: TokenExpiringSoon},
		{name: "past", cred: Credential{AccessToken: "t", UserID: "u", ExpiresAt: at(-time.Minute)}, want: TokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cred.State(now))
		})
	}
}

func TestTokenStateUsable(t *testing.T) {
	assert.True(t, TokenValid.Usable())
	assert.True(t, TokenExpiringSoon.Usable())
	assert.False(t, TokenExpired.Usable())
	assert.False(t, TokenAbsent.Usable())
}

func TestExpiresInDefaultsToLongLivedTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(LongLivedTokenTTL), *ExpiresIn(now, 0))
	assert.Equal(t, now.Add(time.Hour), *ExpiresIn(now, 3600))
}
