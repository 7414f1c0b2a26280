package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"promptpix/internal/http/handlers"
	"promptpix/internal/middleware"
)

// NewRouter assembles the versioned REST surface plus the websocket
// subscription endpoint.
func NewRouter(app *handlers.App, logger zerolog.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(allowedOrigins),
		middleware.RateLimit(120, time.Minute),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/workflow", func(r chi.Router) {
		r.Get("/", app.State)
		r.Post("/mode", app.SwitchMode)
		r.Post("/text", app.SubmitText)
		r.Post("/image", app.UploadImage)
		r.Post("/style", app.SelectStyle)
		r.Post("/style/confirm", app.ConfirmStyle)
		r.Post("/prompt", app.UpdatePrompt)
		r.Post("/prompt/refine", app.Refine)
		r.Post("/prompt/reset", app.ResetRefinement)
		r.Post("/generate", app.GenerateImage)
		r.Get("/export", app.ExportPrompt)
	})

	r.Get("/v1/styles", app.Styles)

	r.Route("/v1/batch", func(r chi.Router) {
		r.Post("/", app.StartBatch)
		r.Get("/", app.BatchResults)
		r.Get("/export", app.ExportBatch)
		r.Post("/{id}/image", app.BatchGenerateImage)
	})

	r.Route("/v1/history", func(r chi.Router) {
		r.Get("/", app.History)
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", app.BatchHistory)
			r.Post("/{id}/select", app.SelectBatchHistory)
			r.Delete("/{id}", app.DeleteBatchHistory)
		})
		r.Post("/{id}/select", app.SelectHistory)
		r.Delete("/{id}", app.DeleteHistory)
	})

	r.Get("/v1/ws", app.Subscribe)

	return r
}
