package credentials

import (
	"strings"

	"studio/internal/domain"
)

// Source names the tier that produced a credential.
type Source string

const (
	SourceNone        Source = "none"
	SourceStored      Source = "stored"
	SourceEnvironment Source = "environment"
)

// Tier is one level of credential resolution.
type Tier interface {
	Lookup() (domain.Credential, bool)
	Source() Source
}

// EnvFallback is the long-lived token configured through the environment
// (INSTAGRAM_ACCESS_TOKEN / INSTAGRAM_USER_ID). It lets the dashboard publish
// without ever completing OAuth.
type EnvFallback struct {
	AccessToken string
	UserID      string
}

// Lookup implements Tier. The record has no expiry and a fixed username.
func (e EnvFallback) Lookup() (domain.Credential, bool) {
	token := strings.TrimSpace(e.AccessToken)
	if token == "" {
		return domain.Credential{}, false
	}
	return domain.Credential{
		AccessToken: token,
		UserID:      strings.TrimSpace(e.UserID),
		Username:    domain.DefaultUsername,
	}, true
}

// Source implements Tier.
func (e EnvFallback) Source() Source { return SourceEnvironment }

// Resolver walks its tiers in order and returns the first hit.
type Resolver struct {
	tiers []Tier
}

// NewResolver orders tiers from most to least authoritative.
func NewResolver(tiers ...Tier) *Resolver {
	return &Resolver{tiers: tiers}
}

// Current returns the first credential with a token, or SourceNone.
func (r *Resolver) Current() (domain.Credential, Source) {
	for _, tier := range r.tiers {
		if tier == nil {
			continue
		}
		if rec, ok := tier.Lookup(); ok {
			return rec, tier.Source()
		}
	}
	return domain.Credential{}, SourceNone
}
