package handlers

import (
	"crypto/subtle"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const oauthStateCookie = "ig_oauth_state"

func (a *App) InstagramStatus(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Tokens.Status())
}

type connectTokenRequest struct {
	AccessToken string `json:"accessToken"`
}

// ConnectToken accepts a pasted user token and connects it like the OAuth flow.
func (a *App) ConnectToken(w http.ResponseWriter, r *http.Request) {
	var req connectTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "accessToken is required")
		return
	}
	if _, err := a.Tokens.ConnectWithToken(r.Context(), req.AccessToken); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.Tokens.Status())
}

func (a *App) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Tokens.Refresh(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.Tokens.Status())
}

func (a *App) DisconnectInstagram(w http.ResponseWriter, r *http.Request) {
	if err := a.Tokens.Disconnect(); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.Tokens.Status())
}

var setupTemplate = template.Must(template.New("setup").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Instagram setup</title></head>
<body style="font-family:sans-serif;max-width:40rem;margin:3rem auto">
<h1>Instagram is not configured</h1>
<p>Set the following environment variables and restart the dashboard:</p>
<ul>
<li><code>INSTAGRAM_APP_ID</code> and <code>INSTAGRAM_APP_SECRET</code> from your Facebook app</li>
<li><code>PUBLIC_URL</code>, the internet reachable address of this dashboard</li>
</ul>
<p>Register <code>{{.}}</code> as a valid OAuth redirect URI in the app settings.</p>
<p>Alternatively set <code>INSTAGRAM_ACCESS_TOKEN</code> and <code>INSTAGRAM_USER_ID</code> to publish with a long-lived token.</p>
<p><a href="/">Back to the dashboard</a></p>
</body></html>`))

// AuthStart redirects to the Facebook OAuth dialog, or explains the missing
// configuration.
func (a *App) AuthStart(w http.ResponseWriter, r *http.Request) {
	if !a.Tokens.Configured() {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = setupTemplate.Execute(w, a.Config.OAuthRedirectURL())
		return
	}
	state := uuid.NewString()
	target, err := a.Tokens.AuthorizationURL(state)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/instagram",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   strings.HasPrefix(a.Config.BaseURL(), "https://"),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// AuthCallback completes the OAuth flow and returns to the dashboard with the
// outcome in the query string.
func (a *App) AuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/auth/instagram", MaxAge: -1})

	if msg := q.Get("error_description"); msg != "" || q.Get("error") != "" {
		if msg == "" {
			msg = q.Get("error")
		}
		a.redirectWithFlash(w, r, "error", msg)
		return
	}
	state := q.Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if state == "" || err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		a.redirectWithFlash(w, r, "error", "authorization state mismatch, please try again")
		return
	}
	rec, err := a.Tokens.CompleteAuthorization(r.Context(), q.Get("code"))
	if err != nil {
		status, _ := classifyError(err)
		if status == http.StatusInternalServerError {
			a.Logger.Error().Err(err).Msg("instagram authorization failed")
			a.redirectWithFlash(w, r, "error", "authorization failed")
			return
		}
		a.redirectWithFlash(w, r, "error", err.Error())
		return
	}
	a.redirectWithFlash(w, r, "connected", "Connected as @"+rec.Username)
}

func (a *App) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	v := url.Values{}
	v.Set("instagram", kind)
	v.Set("message", message)
	http.Redirect(w, r, "/?"+v.Encode(), http.StatusFound)
}
