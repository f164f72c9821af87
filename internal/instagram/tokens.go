package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
)

// DefaultScopes are requested on the OAuth dialog.
var DefaultScopes = []string{
	"instagram_basic",
	"instagram_content_publish",
	"pages_show_list",
	"pages_read_engagement",
	"business_management",
}

// CredentialStore is the persistence the token manager needs.
type CredentialStore interface {
	Stored() (domain.Credential, bool)
	Current() (domain.Credential, credentials.Source)
	Save(domain.Credential) error
	Clear() error
}

// AppConfig identifies the Facebook app used for OAuth and token exchange.
type AppConfig struct {
	AppID       string
	AppSecret   string
	RedirectURL string
	DialogURL   string
	Scopes      []string
}

func (a AppConfig) configured() bool {
	return strings.TrimSpace(a.AppID) != "" &&
		strings.TrimSpace(a.AppSecret) != "" &&
		strings.TrimSpace(a.RedirectURL) != ""
}

// Status summarises the operative credential for display.
type Status struct {
	State      domain.TokenState  `json:"state"`
	Source     credentials.Source `json:"source"`
	Connected  bool               `json:"connected"`
	Configured bool               `json:"configured"`
	Username   string             `json:"username,omitempty"`
	UserID     string             `json:"userId,omitempty"`
	PageName   string             `json:"pageName,omitempty"`
	ExpiresAt  *time.Time         `json:"expiresAt,omitempty"`
	DaysLeft   *int               `json:"daysLeft,omitempty"`
}

// TokenManager obtains, classifies, refreshes and discards the credential.
type TokenManager struct {
	graph  *Client
	store  CredentialStore
	app    AppConfig
	oauth  *oauth2.Config
	logger *infra.Logger
	now    func() time.Time
}

// NewTokenManager wires the Graph client, credential store and app settings.
func NewTokenManager(graph *Client, store CredentialStore, app AppConfig, logger *infra.Logger) *TokenManager {
	if logger == nil {
		logger = infra.NopLogger()
	}
	scopes := app.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	dialog := strings.TrimRight(app.DialogURL, "/")
	if dialog == "" {
		dialog = "https://www.facebook.com"
	}
	return &TokenManager{
		graph: graph,
		store: store,
		app:   app,
		oauth: &oauth2.Config{
			ClientID:     app.AppID,
			ClientSecret: app.AppSecret,
			RedirectURL:  app.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   dialog + "/" + graph.version + "/dialog/oauth",
				TokenURL:  graph.Endpoint("oauth/access_token"),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		logger: logger,
		now:    time.Now,
	}
}

// Configured reports whether OAuth and token exchange are possible.
func (m *TokenManager) Configured() bool {
	return m.app.configured()
}

// Status classifies the operative credential.
func (m *TokenManager) Status() Status {
	rec, source := m.store.Current()
	state := rec.State(m.now())
	st := Status{
		State:      state,
		Source:     source,
		Connected:  state != domain.TokenAbsent,
		Configured: m.Configured(),
	}
	if state == domain.TokenAbsent {
		return st
	}
	st.Username = rec.Username
	st.UserID = rec.UserID
	st.PageName = rec.PageName
	if rec.ExpiresAt != nil {
		at := *rec.ExpiresAt
		st.ExpiresAt = &at
		days := int(at.Sub(m.now()).Hours() / 24)
		if days < 0 {
			days = 0
		}
		st.DaysLeft = &days
	}
	return st
}

// AuthorizationURL returns the provider dialog URL carrying state.
func (m *TokenManager) AuthorizationURL(state string) (string, error) {
	if !m.Configured() {
		return "", domain.ErrNotConfigured
	}
	return m.oauth.AuthCodeURL(state), nil
}

// CompleteAuthorization exchanges an OAuth code, upgrades it to a long-lived
// token and connects the first page with a linked Instagram account.
func (m *TokenManager) CompleteAuthorization(ctx context.Context, code string) (domain.Credential, error) {
	if !m.Configured() {
		return domain.Credential{}, domain.ErrNotConfigured
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Credential{}, fmt.Errorf("%w: missing authorization code", domain.ErrInvalidCredential)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.graph.HTTPClient())
	short, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return domain.Credential{}, exchangeError(err)
	}
	return m.ConnectWithToken(ctx, short.AccessToken)
}

// ConnectWithToken upgrades a user-supplied token and connects it.
func (m *TokenManager) ConnectWithToken(ctx context.Context, token string) (domain.Credential, error) {
	if !m.Configured() {
		return domain.Credential{}, domain.ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Credential{}, fmt.Errorf("%w: empty access token", domain.ErrInvalidCredential)
	}
	long, err := m.graph.ExchangeLongLived(ctx, m.app.AppID, m.app.AppSecret, token)
	if err != nil {
		return domain.Credential{}, err
	}
	return m.connect(ctx, long)
}

// connect discovers the publishing account and persists it. Nothing is saved
// unless every lookup succeeds.
func (m *TokenManager) connect(ctx context.Context, long Token) (domain.Credential, error) {
	pages, err := m.graph.Pages(ctx, long.AccessToken)
	if err != nil {
		return domain.Credential{}, err
	}
	for _, page := range pages {
		token := page.AccessToken
		if token == "" {
			token = long.AccessToken
		}
		accountID, err := m.graph.LinkedAccount(ctx, page.ID, token)
		if err != nil {
			return domain.Credential{}, err
		}
		if accountID == "" {
			continue
		}
		username, err := m.graph.Username(ctx, accountID, token)
		if err != nil {
			return domain.Credential{}, err
		}
		rec := domain.Credential{
			AccessToken: token,
			UserID:      accountID,
			Username:    username,
			PageID:      page.ID,
			PageName:    page.Name,
			ExpiresAt:   domain.ExpiresIn(m.now(), long.ExpiresIn),
		}
		if err := m.store.Save(rec); err != nil {
			return domain.Credential{}, err
		}
		m.logger.Info().
			Str("account", accountID).
			Str("username", username).
			Str("page", page.Name).
			Msg("instagram account connected")
		return rec, nil
	}
	return domain.Credential{}, domain.ErrNoLinkedAccount
}

// Refresh re-exchanges the stored token for a fresh long-lived one. The
// previous record stays in place when the exchange fails.
func (m *TokenManager) Refresh(ctx context.Context) (domain.Credential, error) {
	if !m.Configured() {
		return domain.Credential{}, domain.ErrNotConfigured
	}
	rec, ok := m.store.Stored()
	if !ok {
		return domain.Credential{}, domain.ErrNotConnected
	}
	long, err := m.graph.ExchangeLongLived(ctx, m.app.AppID, m.app.AppSecret, rec.AccessToken)
	if err != nil {
		return domain.Credential{}, err
	}
	rec.AccessToken = long.AccessToken
	rec.ExpiresAt = domain.ExpiresIn(m.now(), long.ExpiresIn)
	if err := m.store.Save(rec); err != nil {
		return domain.Credential{}, err
	}
	m.logger.Info().Time("expires_at", *rec.ExpiresAt).Msg("instagram token refreshed")
	return rec, nil
}

// RefreshIfExpiring refreshes the stored credential only when it sits inside
// the refresh window. Environment credentials are never refreshed.
func (m *TokenManager) RefreshIfExpiring(ctx context.Context) (bool, error) {
	if !m.Configured() {
		return false, nil
	}
	rec, ok := m.store.Stored()
	if !ok || rec.State(m.now()) != domain.TokenExpiringSoon {
		return false, nil
	}
	if _, err := m.Refresh(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// StartAutoRefresh runs RefreshIfExpiring once in the background. Failures
// are logged and never reach the caller.
func (m *TokenManager) StartAutoRefresh(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		refreshed, err := m.RefreshIfExpiring(ctx)
		switch {
		case err != nil:
			m.logger.Warn().Err(err).Msg("instagram token auto-refresh failed")
		case refreshed:
			m.logger.Info().Msg("instagram token auto-refreshed")
		}
	}()
	return done
}

// Disconnect discards the stored credential. The environment fallback, if
// any, becomes operative again.
func (m *TokenManager) Disconnect() error {
	if err := m.store.Clear(); err != nil {
		return err
	}
	m.logger.Info().Msg("instagram account disconnected")
	return nil
}

// exchangeError surfaces the provider's own message from a failed code exchange.
func exchangeError(err error) error {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return err
	}
	status := 0
	if rerr.Response != nil {
		status = rerr.Response.StatusCode
	}
	if apiErr := decodeAPIError(status, rerr.Body); apiErr != nil && apiErr.Message != "" {
		return apiErr
	}
	var env struct {
		Description string `json:"error_description"`
	}
	if json.Unmarshal(rerr.Body, &env) == nil && env.Description != "" {
		return &APIError{Status: status, Message: env.Description}
	}
	return &APIError{Status: status, Message: err.Error()}
}
