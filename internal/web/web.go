// Package web serves the browser surface of the dialogue: the single-button
// page, a small JSON API, and the speech WebSocket.
//
// Routes registered by [Handler.Register]:
//
//   - GET  /            : the embedded page.
//   - POST /api/click   : starts a conversation when the dialogue is idle.
//   - GET  /api/display : the current display as JSON.
//   - GET  /speech      : the speech client WebSocket, when configured.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/MrWong99/moomindm/internal/session"
)

//go:embed static
var staticFiles embed.FS

// Controller is the part of a session the HTTP surface drives.
type Controller interface {
	Click(ctx context.Context) error
	Display() session.Display
}

// Handler serves the HTTP surface for one session.
type Handler struct {
	ctrl   Controller
	speech http.Handler
	static http.Handler
}

// New returns a Handler for ctrl. speech, when non-nil, is mounted at
// /speech.
func New(ctrl Controller, speech http.Handler) *Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	return &Handler{
		ctrl:   ctrl,
		speech: speech,
		static: http.FileServerFS(sub),
	}
}

// Register adds the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /{$}", h.static)
	mux.Handle("GET /static/", http.StripPrefix("/static", h.static))
	mux.HandleFunc("POST /api/click", h.Click)
	mux.HandleFunc("GET /api/display", h.Display)
	if h.speech != nil {
		mux.Handle("GET /speech", h.speech)
	}
}

// Click queues a click and answers 202 with the display at that moment.
// The click only takes effect if the dialogue is idle or done.
func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Click(r.Context()); err != nil {
		if errors.Is(err, session.ErrStopped) {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "dialogue is not running"})
			return
		}
		slog.Warn("web: click failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, h.ctrl.Display())
}

// Display writes the current display.
func (h *Handler) Display(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Display())
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("web: encode response", "err", err)
	}
}
