package handlers

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"studio/internal/instagram"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

var dashboardTemplate = template.Must(template.New("dashboard.html").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Local().Format("02 Jan 2006 15:04") },
}).ParseFS(templateFS, "templates/dashboard.html"))

type dashboardView struct {
	Images    []imageDTO
	Styles    []styleDTO
	Instagram instagram.Status
	Flash     string
	FlashKind string
	PublicURL string
}

// Dashboard renders the operator page from the gallery, style folders and
// connection status.
func (a *App) Dashboard(w http.ResponseWriter, r *http.Request) {
	images, err := a.Gallery.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	styles, err := a.listStyles()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	view := dashboardView{
		Images:    make([]imageDTO, 0, len(images)),
		Styles:    styles,
		Instagram: a.Tokens.Status(),
		Flash:     r.URL.Query().Get("message"),
		FlashKind: r.URL.Query().Get("instagram"),
		PublicURL: a.Config.PublicURL,
	}
	for _, img := range images {
		view.Images = append(view.Images, a.imageView(img))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := a.page.Execute(w, view); err != nil {
		a.Logger.Error().Err(err).Msg("render dashboard")
	}
}
