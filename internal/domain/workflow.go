package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Mode selects which of the three top-level user workflows is active.
type Mode string

const (
	ModeImageToPrompt Mode = "image-to-prompt"
	ModeTextToImage   Mode = "text-to-image"
	ModeBatch         Mode = "batch"
)

// NormalizeMode sanitizes free-form input into a supported mode.
func NormalizeMode(mode string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case ModeImageToPrompt:
		return ModeImageToPrompt, nil
	case ModeTextToImage:
		return ModeTextToImage, nil
	case ModeBatch:
		return ModeBatch, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}
}

// WorkflowStep is the current stage of the single-item pipeline. Steps are
// ordered: input precedes style, style precedes review.
type WorkflowStep string

const (
	StepInput  WorkflowStep = "input"
	StepStyle  WorkflowStep = "style"
	StepReview WorkflowStep = "review"
)

// SourceImage is an uploaded asset held for the lifetime of one
// image-to-prompt session. It is replaced wholesale on upload or history
// rehydration and cleared on reset.
type SourceImage struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
	DataURL  string `json:"dataUrl"`
}

// ParseDataURL splits a data URL into its mime type and base64 payload.
func ParseDataURL(dataURL string) (*SourceImage, error) {
	meta, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing data url payload", ErrInvalidInput)
	}
	if !strings.HasPrefix(meta, "data:") {
		return nil, fmt.Errorf("%w: not a data url", ErrInvalidInput)
	}
	mime := strings.TrimPrefix(meta, "data:")
	mime = strings.TrimSuffix(mime, ";base64")
	if mime == "" {
		return nil, fmt.Errorf("%w: missing mime type", ErrInvalidInput)
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload", ErrInvalidInput)
	}
	return &SourceImage{Base64: payload, MimeType: mime, DataURL: dataURL}, nil
}

// BuildDataURL composes a displayable data URL from a mime type and payload.
func BuildDataURL(mimeType, base64Payload string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64Payload)
}

// RefineLevel selects the direction of a prompt refinement.
type RefineLevel string

const (
	RefineConcise     RefineLevel = "concise"
	RefineDescriptive RefineLevel = "descriptive"
)

// NormalizeRefineLevel sanitizes free-form input into a supported level.
func NormalizeRefineLevel(level string) (RefineLevel, error) {
	switch RefineLevel(strings.ToLower(strings.TrimSpace(level))) {
	case RefineConcise:
		return RefineConcise, nil
	case RefineDescriptive:
		return RefineDescriptive, nil
	default:
		return "", fmt.Errorf("%w: unknown refine level %q", ErrInvalidInput, level)
	}
}

// PromptRating is a quality score for a prompt. A nil rating means "not yet
// rated" or "rating inapplicable"; a rating is never partially populated.
type PromptRating struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// HistoryItem is an immutable record of one successful single-mode image
// generation. Field names match the persisted record layout.
type HistoryItem struct {
	ID             string        `json:"id"`
	Prompt         string        `json:"prompt"`
	ImageURL       string        `json:"imageUrl"`
	SourceImageURL string        `json:"sourceImageUrl"`
	Rating         *PromptRating `json:"rating"`
}

// BatchResult tracks the independent lifecycle of one uploaded file in batch
// mode. The transient flags never survive persistence.
type BatchResult struct {
	ID                string `json:"id"`
	Filename          string `json:"filename"`
	DataURL           string `json:"dataUrl"`
	Prompt            string `json:"prompt"`
	IsAnalyzing       bool   `json:"isAnalyzing"`
	AnalysisError     string `json:"analysisError,omitempty"`
	IsGeneratingImage bool   `json:"isGeneratingImage"`
	GeneratedImageURL string `json:"generatedImageUrl,omitempty"`
	ImageError        string `json:"imageError,omitempty"`
}

// BatchSnapshotResult is the persisted subset of a BatchResult.
type BatchSnapshotResult struct {
	ID                string `json:"id"`
	DataURL           string `json:"dataUrl"`
	Prompt            string `json:"prompt"`
	GeneratedImageURL string `json:"generatedImageUrl,omitempty"`
}

// BatchHistoryItem is the write-once snapshot of a completed batch, committed
// after the last item settles. Errored items are retained with an empty
// prompt rather than dropped.
type BatchHistoryItem struct {
	ID        string                `json:"id"`
	Timestamp string                `json:"timestamp"`
	Results   []BatchSnapshotResult `json:"results"`
}
