package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/lingocast/internal/api/middleware"
	"github.com/kiranshivaraju/lingocast/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateProfile http.HandlerFunc
	GetProfile    http.HandlerFunc
	UpdateProfile http.HandlerFunc

	StartSession   http.HandlerFunc
	GetSession     http.HandlerFunc
	UpdateSession  http.HandlerFunc
	EndSession     http.HandlerFunc
	StartRecording http.HandlerFunc
	StopRecording  http.HandlerFunc

	Render       http.HandlerFunc
	RenderBatch  http.HandlerFunc
	RenderStatus http.HandlerFunc

	ListVideos  http.HandlerFunc
	DeleteVideo http.HandlerFunc

	GenerateLesson http.HandlerFunc

	SubmitPractice  http.HandlerFunc
	PracticeHistory http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/profiles/me", orNotImplemented(deps.GetProfile))
		r.Patch("/api/v1/profiles/me", orNotImplemented(deps.UpdateProfile))

		r.Route("/api/v1/sessions", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.StartSession))
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", orNotImplemented(deps.GetSession))
				r.Patch("/", orNotImplemented(deps.UpdateSession))
				r.Delete("/", orNotImplemented(deps.EndSession))
				r.Post("/recording/start", orNotImplemented(deps.StartRecording))
				r.Post("/recording/stop", orNotImplemented(deps.StopRecording))
			})
		})

		r.Post("/api/v1/renders", orNotImplemented(deps.Render))
		r.Post("/api/v1/renders/batch", orNotImplemented(deps.RenderBatch))
		r.Get("/api/v1/renders/{jobID}", orNotImplemented(deps.RenderStatus))

		r.Get("/api/v1/videos", orNotImplemented(deps.ListVideos))
		r.Delete("/api/v1/videos/{videoID}", orNotImplemented(deps.DeleteVideo))

		r.Post("/api/v1/lessons", orNotImplemented(deps.GenerateLesson))

		r.Post("/api/v1/practice", orNotImplemented(deps.SubmitPractice))
		r.Get("/api/v1/practice", orNotImplemented(deps.PracticeHistory))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/profiles", orNotImplemented(deps.CreateProfile))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
