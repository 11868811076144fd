package web

import (
	"io/fs"
	"net/http"
)

// RegisterRoutes registers the editor pages, the htmx fragment endpoints and
// the embedded static assets.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	staticFS, _ := fs.Sub(StaticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	// Pages.
	mux.HandleFunc("GET /projects/{projectKey}/policy", h.OpenEditor)
	mux.HandleFunc("GET /projects/{projectKey}/repos/{repoSlug}/policy", h.OpenEditor)

	// Fragments.
	// Suggest mutates control state, so it is CSRF-checked like the posts.
	mux.HandleFunc("GET /editor/{session}/{field}/suggest", requireCSRF(h.Suggest))
	mux.HandleFunc("POST /editor/{session}/{field}/tags", requireCSRF(h.AddTag))
	mux.HandleFunc("DELETE /editor/{session}/{field}/tags/{id}", requireCSRF(h.RemoveTag))
	mux.HandleFunc("POST /editor/{session}/submit", requireCSRF(h.Submit))
	mux.HandleFunc("POST /editor/{session}/reload", requireCSRF(h.Reload))
}
