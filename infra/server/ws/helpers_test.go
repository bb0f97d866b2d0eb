package ws

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func routeFor(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Get("/ws/naming", h.ServeNaming)
	r.Get("/ws/config", h.ServeConfig)
	return r
}
