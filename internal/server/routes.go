// Package server assembles the HTTP router and runs the API server.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/radif/uploader/internal/file"
	appMiddleware "github.com/radif/uploader/internal/middleware"
	"github.com/radif/uploader/internal/response"

	_ "github.com/radif/uploader/docs/swagger"
)

// NewRouter wires middleware and routes around the file handler. uploadKey
// guards the upload endpoint when non-empty.
func NewRouter(files *file.Handler, uploadKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("uploader: POST /api/v1/file/upload\n"))
	})

	// Swagger UI at /swagger/index.html
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1/file", func(r chi.Router) {
		r.With(appMiddleware.RequireUploadKey(uploadKey)).Post("/upload", files.Upload)

		// Deletion over GET is kept for screenshot and upload tools that cannot send DELETE.
		r.Get("/delete/{secret}", files.Delete)
		r.Delete("/delete/{secret}", files.Delete)
	})

	r.Get("/{id}", files.Show)

	return r
}
