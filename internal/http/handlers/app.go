package handlers

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"promptpix/internal/domain"
	"promptpix/internal/history"
)

// GenerativeService is the full generative backend surface the handlers
// depend on. *genai.Client satisfies it.
type GenerativeService interface {
	GeneratePrompt(ctx context.Context, imageBase64, mimeType, style string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
	RatePrompt(ctx context.Context, prompt string) (*domain.PromptRating, error)
	RefinePrompt(ctx context.Context, prompt string, level domain.RefineLevel) (string, error)
}

// Options configures the App container.
type Options struct {
	Service        GenerativeService
	History        *history.Store
	Logger         zerolog.Logger
	RatingDebounce time.Duration
	AllowedOrigins []string

	// Rand seeds per-session rngs; tests inject a fixed source.
	Rand *rand.Rand
}

// App holds the per-session workflow engines and their shared dependencies.
type App struct {
	svc            GenerativeService
	hist           *history.Store
	logger         zerolog.Logger
	ratingDebounce time.Duration
	allowedOrigins map[string]struct{}
	rng            *rand.Rand

	mu       sync.Mutex
	sessions map[string]*sessionBundle
}

// NewApp wires the handler container.
func NewApp(opts Options) *App {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		origins[o] = struct{}{}
	}
	return &App{
		svc:            opts.Service,
		hist:           opts.History,
		logger:         opts.Logger,
		ratingDebounce: opts.RatingDebounce,
		allowedOrigins: origins,
		rng:            rng,
		sessions:       make(map[string]*sessionBundle),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
