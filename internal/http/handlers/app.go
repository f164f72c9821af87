package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/gallery"
	"studio/internal/infra"
	"studio/internal/instagram"
	"studio/internal/middleware"
	"studio/internal/storage"
)

// TokenService is the slice of the token manager the handlers use.
type TokenService interface {
	Status() instagram.Status
	Configured() bool
	AuthorizationURL(state string) (string, error)
	CompleteAuthorization(ctx context.Context, code string) (domain.Credential, error)
	ConnectWithToken(ctx context.Context, token string) (domain.Credential, error)
	Refresh(ctx context.Context) (domain.Credential, error)
	Disconnect() error
}

// MediaPublisher posts an image URL with a caption and returns the media id.
type MediaPublisher interface {
	Publish(ctx context.Context, imageURL, caption string) (string, error)
}

// Deps are the collaborators wired in by cmd/dashboard.
type Deps struct {
	Gallery   *gallery.Store
	Output    *storage.FileStore
	Styles    *storage.FileStore
	Tokens    TokenService
	Publisher MediaPublisher
	Driver    DriverRunner
}

type App struct {
	Config    *infra.Config
	Logger    *infra.Logger
	Gallery   *gallery.Store
	Output    *storage.FileStore
	Styles    *storage.FileStore
	Tokens    TokenService
	Publisher MediaPublisher
	Driver    DriverRunner

	generateSlot chan struct{}
	page         *template.Template
	now          func() time.Time
}

func NewApp(cfg *infra.Config, logger *infra.Logger, deps Deps) *App {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &App{
		Config:       cfg,
		Logger:       logger,
		Gallery:      deps.Gallery,
		Output:       deps.Output,
		Styles:       deps.Styles,
		Tokens:       deps.Tokens,
		Publisher:    deps.Publisher,
		Driver:       deps.Driver,
		generateSlot: make(chan struct{}, 1),
		page:         dashboardTemplate,
		now:          time.Now,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// fail maps a domain or upstream error onto the JSON error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	event := a.Logger.Warn()
	if status >= 500 {
		event = a.Logger.Error()
	}
	event.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("code", code).
		Msg("request failed")
	a.error(w, status, code, message)
}

func classifyError(err error) (int, string) {
	var apiErr *instagram.APIError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrEmptyCaption):
		return http.StatusBadRequest, "empty_caption"
	case errors.Is(err, domain.ErrInvalidCredential):
		return http.StatusBadRequest, "invalid_credential"
	case errors.Is(err, domain.ErrNotConnected):
		return http.StatusPreconditionFailed, "not_connected"
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusPreconditionFailed, "token_expired"
	case errors.Is(err, domain.ErrImageUnreachable):
		return http.StatusUnprocessableEntity, "image_unreachable"
	case errors.Is(err, domain.ErrNotAnImage):
		return http.StatusUnprocessableEntity, "not_an_image"
	case errors.Is(err, domain.ErrNoLinkedAccount):
		return http.StatusUnprocessableEntity, "no_linked_account"
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable, "not_configured"
	case errors.Is(err, domain.ErrContainerFailed):
		return http.StatusBadGateway, "container_failed"
	case errors.Is(err, domain.ErrPublishTimeout):
		return http.StatusGatewayTimeout, "publish_timeout"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (a *App) imageID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid image id")
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
