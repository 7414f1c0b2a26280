package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"promptpix/internal/domain"
	"promptpix/internal/history"
)

// Service is the generative backend the session orchestrates. All four
// operations are single request/response calls; failures never escape the
// session.
type Service interface {
	GeneratePrompt(ctx context.Context, imageBase64, mimeType, style string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
	RatePrompt(ctx context.Context, prompt string) (*domain.PromptRating, error)
	RefinePrompt(ctx context.Context, prompt string, level domain.RefineLevel) (string, error)
}

// State is a point-in-time snapshot of the workflow. Copies are safe to hand
// to other goroutines.
type State struct {
	Mode              domain.Mode          `json:"mode"`
	Step              domain.WorkflowStep  `json:"step"`
	Style             string               `json:"style"`
	Prompt            string               `json:"prompt"`
	OriginalPrompt    string               `json:"originalPrompt"`
	TextInput         string               `json:"textInput"`
	Rating            *domain.PromptRating `json:"rating"`
	GeneratedImages   []string             `json:"generatedImages"`
	SourceImage       *domain.SourceImage  `json:"sourceImage"`
	IsLoadingPrompt   bool                 `json:"isLoadingPrompt"`
	IsGeneratingImage bool                 `json:"isGeneratingImage"`
	IsRating          bool                 `json:"isRating"`
	PromptError       string               `json:"promptError,omitempty"`
	ImageError        string               `json:"imageError,omitempty"`
}

// Options configures a Session.
type Options struct {
	Service        Service
	History        *history.Store
	Logger         *zerolog.Logger
	RatingDebounce time.Duration
	Rand           *rand.Rand
	OnChange       func()
}

// Session owns the single-item workflow state machine. A mutex serializes
// all mutations; async service completions re-acquire it and validate their
// freshness tags before applying, so responses for a superseded session are
// detected and dropped rather than cancelled.
type Session struct {
	mu sync.Mutex

	svc      Service
	hist     *history.Store
	logger   zerolog.Logger
	rng      *rand.Rand
	debounce *Debouncer
	onChange func()

	state State

	// epoch is bumped on every reset; ratingToken on every fired rating
	// request. Both are freshness tags for last-write-wins checks.
	epoch       uint64
	ratingToken uint64
}

// NewSession creates a session at the initial state: image-to-prompt mode,
// input step, sentinel style.
func NewSession(opts Options) (*Session, error) {
	if opts.Service == nil {
		return nil, errors.New("workflow: service is required")
	}
	if opts.History == nil {
		return nil, errors.New("workflow: history store is required")
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "workflow").Logger()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	onChange := opts.OnChange
	if onChange == nil {
		onChange = func() {}
	}
	return &Session{
		svc:      opts.Service,
		hist:     opts.History,
		logger:   logger,
		rng:      rng,
		debounce: NewDebouncer(opts.RatingDebounce),
		onChange: onChange,
		state: State{
			Mode:  domain.ModeImageToPrompt,
			Step:  domain.StepInput,
			Style: domain.StyleNone,
		},
	}, nil
}

// State returns a deep copy of the current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	out := s.state
	if s.state.Rating != nil {
		rating := *s.state.Rating
		out.Rating = &rating
	}
	if s.state.SourceImage != nil {
		img := *s.state.SourceImage
		out.SourceImage = &img
	}
	out.GeneratedImages = make([]string, len(s.state.GeneratedImages))
	copy(out.GeneratedImages, s.state.GeneratedImages)
	return out
}

// resetLocked clears all transient workflow state. History and the selected
// style survive; the epoch bump invalidates every in-flight completion.
func (s *Session) resetLocked() {
	s.epoch++
	s.debounce.Stop()
	s.state.Step = domain.StepInput
	s.state.Prompt = ""
	s.state.OriginalPrompt = ""
	s.state.TextInput = ""
	s.state.Rating = nil
	s.state.GeneratedImages = nil
	s.state.SourceImage = nil
	s.state.PromptError = ""
	s.state.ImageError = ""
	s.state.IsLoadingPrompt = false
	s.state.IsGeneratingImage = false
	s.state.IsRating = false
}

// SwitchMode adopts a new mode, destroying in-progress work. Switching to
// the current mode is a no-op.
func (s *Session) SwitchMode(mode domain.Mode) {
	s.mu.Lock()
	if s.state.Mode == mode {
		s.mu.Unlock()
		return
	}
	s.resetLocked()
	s.state.Mode = mode
	s.mu.Unlock()
	s.onChange()
}

// SubmitText stores the text input and advances to style selection.
// Text-to-image mode only.
func (s *Session) SubmitText(text string) error {
	text = strings.TrimSpace(text)
	s.mu.Lock()
	if s.state.Mode != domain.ModeTextToImage {
		s.mu.Unlock()
		return fmt.Errorf("%w: text input requires text-to-image mode", domain.ErrInvalidInput)
	}
	if text == "" {
		s.mu.Unlock()
		return fmt.Errorf("%w: text input is empty", domain.ErrInvalidInput)
	}
	s.resetLocked()
	s.state.TextInput = text
	s.state.Step = domain.StepStyle
	s.mu.Unlock()
	s.onChange()
	return nil
}

// UploadImage stores the uploaded source image and advances to style
// selection. Image-to-prompt mode only.
func (s *Session) UploadImage(img domain.SourceImage) error {
	s.mu.Lock()
	if s.state.Mode != domain.ModeImageToPrompt {
		s.mu.Unlock()
		return fmt.Errorf("%w: image upload requires image-to-prompt mode", domain.ErrInvalidInput)
	}
	s.resetLocked()
	s.state.SourceImage = &img
	s.state.Step = domain.StepStyle
	s.mu.Unlock()
	s.onChange()
	return nil
}

// SelectStyle records the style choice made on the style step.
func (s *Session) SelectStyle(style string) {
	s.mu.Lock()
	s.state.Style = style
	s.mu.Unlock()
	s.onChange()
}

// ConfirmStyle resolves the sentinel style once and advances to review. In
// image-to-prompt mode the prompt is generated asynchronously; the step
// advances optimistically before the service call settles. In text-to-image
// mode the text input already is the prompt, so no call is made.
func (s *Session) ConfirmStyle(ctx context.Context) {
	s.mu.Lock()
	if s.state.Step != domain.StepStyle {
		s.mu.Unlock()
		return
	}
	if s.state.Mode == domain.ModeImageToPrompt && s.state.SourceImage == nil {
		s.mu.Unlock()
		return
	}
	// Guards run first: an early return must not mutate Style.
	if s.state.Style == domain.StyleNone {
		s.state.Style = domain.ResolveStyle(domain.StyleNone, domain.StyleCatalog(), s.rng)
	}
	style := s.state.Style

	switch s.state.Mode {
	case domain.ModeImageToPrompt:
		img := *s.state.SourceImage
		s.state.Step = domain.StepReview
		s.state.IsLoadingPrompt = true
		s.state.PromptError = ""
		epoch := s.epoch
		s.mu.Unlock()
		s.onChange()

		go func() {
			prompt, err := s.svc.GeneratePrompt(ctx, img.Base64, img.MimeType, style)
			s.mu.Lock()
			if s.epoch != epoch {
				s.mu.Unlock()
				return
			}
			s.state.IsLoadingPrompt = false
			if err != nil {
				s.state.PromptError = "Failed to generate prompt: " + err.Error()
				s.logger.Warn().Err(err).Msg("prompt generation failed")
			} else {
				s.state.Prompt = prompt
				s.state.OriginalPrompt = prompt
				s.state.PromptError = ""
			}
			s.mu.Unlock()
			s.onChange()
			s.scheduleRating(ctx)
		}()

	case domain.ModeTextToImage:
		s.state.Step = domain.StepReview
		s.mu.Unlock()
		s.onChange()
		s.scheduleRating(ctx)

	default:
		s.mu.Unlock()
	}
}

// UpdatePrompt replaces the active prompt text during review and schedules a
// debounced re-rating. Brief staleness of the displayed rating during the
// quiet period is acceptable.
func (s *Session) UpdatePrompt(ctx context.Context, text string) {
	s.mu.Lock()
	if s.state.Step != domain.StepReview {
		s.mu.Unlock()
		return
	}
	if s.state.Mode == domain.ModeTextToImage {
		s.state.TextInput = text
	} else {
		s.state.Prompt = text
	}
	s.mu.Unlock()
	s.onChange()
	s.scheduleRating(ctx)
}

// Refine transforms the active prompt text at the requested level. With no
// active text it is a silent no-op. The pre-refinement snapshot
// (OriginalPrompt) is never touched.
func (s *Session) Refine(ctx context.Context, level domain.RefineLevel) {
	s.mu.Lock()
	current := s.activeTextLocked()
	if current == "" {
		s.mu.Unlock()
		return
	}
	mode := s.state.Mode
	s.state.IsLoadingPrompt = true
	s.state.PromptError = ""
	epoch := s.epoch
	s.mu.Unlock()
	s.onChange()

	go func() {
		refined, err := s.svc.RefinePrompt(ctx, current, level)
		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return
		}
		s.state.IsLoadingPrompt = false
		if err != nil {
			s.state.PromptError = "Failed to refine prompt: " + err.Error()
			s.logger.Warn().Err(err).Str("level", string(level)).Msg("refinement failed")
		} else if mode == domain.ModeTextToImage {
			s.state.TextInput = refined
		} else {
			s.state.Prompt = refined
		}
		s.mu.Unlock()
		s.onChange()
		s.scheduleRating(ctx)
	}()
}

// ResetRefinement restores the prompt to its pre-refinement snapshot. In
// text-to-image mode there is no snapshot (the text is user-authored), so it
// is a no-op.
func (s *Session) ResetRefinement(ctx context.Context) {
	s.mu.Lock()
	if s.state.Mode == domain.ModeTextToImage {
		s.mu.Unlock()
		return
	}
	s.state.Prompt = s.state.OriginalPrompt
	s.mu.Unlock()
	s.onChange()
	s.scheduleRating(ctx)
}

// GenerateImage renders the effective prompt. Successful results are
// prepended to the generated-images sequence; in image-to-prompt mode every
// success also appends an immutable history item. An empty effective prompt
// is a silent no-op.
func (s *Session) GenerateImage(ctx context.Context) {
	s.mu.Lock()
	effective := s.effectivePromptLocked()
	if effective == "" {
		s.mu.Unlock()
		return
	}
	mode := s.state.Mode
	s.state.IsGeneratingImage = true
	s.state.ImageError = ""
	epoch := s.epoch
	s.mu.Unlock()
	s.onChange()

	go func() {
		imageURL, err := s.svc.GenerateImage(ctx, effective)
		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			return
		}
		s.state.IsGeneratingImage = false
		if err != nil {
			s.state.ImageError = "Failed to generate image: " + err.Error()
			s.logger.Warn().Err(err).Msg("image generation failed")
			s.mu.Unlock()
			s.onChange()
			return
		}
		s.state.GeneratedImages = append([]string{imageURL}, s.state.GeneratedImages...)

		if mode == domain.ModeImageToPrompt && s.state.SourceImage != nil {
			item := domain.HistoryItem{
				ID:             time.Now().UTC().Format(time.RFC3339Nano),
				Prompt:         effective,
				ImageURL:       imageURL,
				SourceImageURL: s.state.SourceImage.DataURL,
			}
			if s.state.Rating != nil {
				rating := *s.state.Rating
				item.Rating = &rating
			}
			// The flush happens before the lock is released so history is
			// durable before any later state change can observe it.
			if err := s.hist.AppendSingle(ctx, item); err != nil {
				s.logger.Error().Err(err).Msg("history append failed")
			}
		}
		s.mu.Unlock()
		s.onChange()
	}()
}

// SelectHistoryItem rehydrates a stored single-prompt entry into live state:
// image-to-prompt mode, review step, prompt and rating restored, the image
// list replaced with the stored image.
func (s *Session) SelectHistoryItem(ctx context.Context, item domain.HistoryItem) error {
	source, err := domain.ParseDataURL(item.SourceImageURL)
	if err != nil {
		return fmt.Errorf("parse stored source image: %w", err)
	}
	s.mu.Lock()
	s.resetLocked()
	s.state.Mode = domain.ModeImageToPrompt
	s.state.Step = domain.StepReview
	s.state.Prompt = item.Prompt
	s.state.OriginalPrompt = item.Prompt
	s.state.GeneratedImages = []string{item.ImageURL}
	if item.Rating != nil {
		rating := *item.Rating
		s.state.Rating = &rating
	}
	s.state.SourceImage = source
	s.mu.Unlock()
	s.onChange()
	s.scheduleRating(ctx)
	return nil
}

// scheduleRating applies the background rating effect: while reviewing a
// non-empty prompt (and not mid-generation), rate a debounced view of the
// text. An empty prompt clears the rating immediately without a call.
func (s *Session) scheduleRating(ctx context.Context) {
	s.mu.Lock()
	text := s.activeTextLocked()
	if text == "" {
		s.state.Rating = nil
		s.state.IsRating = false
		s.ratingToken++
		s.debounce.Stop()
		s.mu.Unlock()
		s.onChange()
		return
	}
	if s.state.Step != domain.StepReview || s.state.IsLoadingPrompt {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.debounce.Trigger(func() { s.fireRating(ctx) })
}

// fireRating issues one rating request tagged with the text it was computed
// for. A response is applied only if it is still the newest request and the
// text has not diverged since (last-write-wins).
func (s *Session) fireRating(ctx context.Context) {
	s.mu.Lock()
	text := s.activeTextLocked()
	if text == "" || s.state.Step != domain.StepReview || s.state.IsLoadingPrompt {
		s.mu.Unlock()
		return
	}
	s.ratingToken++
	token := s.ratingToken
	epoch := s.epoch
	s.state.IsRating = true
	s.mu.Unlock()
	s.onChange()

	go func() {
		rating, err := s.svc.RatePrompt(ctx, text)
		s.mu.Lock()
		if s.epoch != epoch || s.ratingToken != token {
			// A newer request or the empty-prompt clear owns the busy flag.
			s.mu.Unlock()
			return
		}
		s.state.IsRating = false
		if s.activeTextLocked() != text {
			// Stale against an edited prompt; the debounced reschedule
			// will re-rate the current text.
			s.mu.Unlock()
			s.onChange()
			return
		}
		if err != nil {
			// Rating is a background enhancement; failures degrade to
			// "no rating" instead of surfacing an error.
			s.state.Rating = nil
			s.logger.Debug().Err(err).Msg("rating failed")
		} else {
			s.state.Rating = rating
		}
		s.mu.Unlock()
		s.onChange()
	}()
}

func (s *Session) activeTextLocked() string {
	if s.state.Mode == domain.ModeTextToImage {
		return strings.TrimSpace(s.state.TextInput)
	}
	return strings.TrimSpace(s.state.Prompt)
}

// effectivePromptLocked is the final text sent to image generation. In
// text-to-image mode the confirmed style is appended as a suffix.
func (s *Session) effectivePromptLocked() string {
	if s.state.Mode == domain.ModeTextToImage {
		text := strings.TrimSpace(s.state.TextInput)
		if text == "" {
			return ""
		}
		if s.state.Style != domain.StyleNone && s.state.Style != "" {
			return text + ", " + s.state.Style + " style"
		}
		return text
	}
	return strings.TrimSpace(s.state.Prompt)
}

// Close cancels any pending debounced rating.
func (s *Session) Close() {
	s.debounce.Stop()
}
