package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"promptpix/internal/domain"
	"promptpix/internal/export"
	"promptpix/internal/upload"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing.
const maxUploadMemory = 32 << 20

// State returns the combined workflow and batch snapshot.
func (a *App) State(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	a.json(w, http.StatusOK, b.snapshot())
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// SwitchMode adopts a new mode, clearing transient workflow state.
func (a *App) SwitchMode(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	mode, err := domain.NormalizeMode(req.Mode)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	b.Workflow.SwitchMode(mode)
	if mode != domain.ModeBatch {
		b.Batch.Reset()
	}
	a.json(w, http.StatusOK, b.snapshot())
}

type textInputRequest struct {
	Text string `json:"text"`
}

// SubmitText stores text input and advances to the style step.
func (a *App) SubmitText(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	var req textInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := b.Workflow.SubmitText(req.Text); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
		return
	}
	a.json(w, http.StatusOK, b.snapshot())
}

// UploadImage accepts a single multipart image for image-to-prompt mode.
func (a *App) UploadImage(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "missing image file")
		return
	}
	converted, err := upload.FromMultipart(files[0])
	if err != nil {
		a.error(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
		return
	}
	img := domain.SourceImage{
		Base64:   converted.Base64,
		MimeType: converted.MimeType,
		DataURL:  converted.DataURL,
	}
	if err := b.Workflow.UploadImage(img); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
		return
	}
	a.json(w, http.StatusOK, b.snapshot())
}

// Styles returns the selectable style catalog.
func (a *App) Styles(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"primary":   domain.PrimaryStyles,
		"secondary": domain.SecondaryStyles,
	})
}

type styleRequest struct {
	Style string `json:"style"`
}

// SelectStyle records a style choice.
func (a *App) SelectStyle(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	var req styleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	b.Workflow.SelectStyle(domain.NormalizeStyle(req.Style))
	a.json(w, http.StatusOK, b.snapshot())
}

// ConfirmStyle resolves the style and advances to review. Prompt generation
// settles asynchronously; poll the state endpoint or subscribe to the
// websocket stream for completion.
func (a *App) ConfirmStyle(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	b.Workflow.ConfirmStyle(context.WithoutCancel(r.Context()))
	a.json(w, http.StatusAccepted, b.snapshot())
}

type updatePromptRequest struct {
	Text string `json:"text"`
}

// UpdatePrompt edits the active prompt text during review.
func (a *App) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	var req updatePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	b.Workflow.UpdatePrompt(context.WithoutCancel(r.Context()), req.Text)
	a.json(w, http.StatusOK, b.snapshot())
}

type refineRequest struct {
	Level string `json:"level"`
}

// Refine transforms the active prompt at the requested level.
func (a *App) Refine(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	var req refineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	level, err := domain.NormalizeRefineLevel(req.Level)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	b.Workflow.Refine(context.WithoutCancel(r.Context()), level)
	a.json(w, http.StatusAccepted, b.snapshot())
}

// ResetRefinement restores the pre-refinement prompt snapshot.
func (a *App) ResetRefinement(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	b.Workflow.ResetRefinement(context.WithoutCancel(r.Context()))
	a.json(w, http.StatusOK, b.snapshot())
}

// GenerateImage renders the effective prompt asynchronously.
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	b.Workflow.GenerateImage(context.WithoutCancel(r.Context()))
	a.json(w, http.StatusAccepted, b.snapshot())
}

// ExportPrompt serves the active prompt as a downloadable document.
func (a *App) ExportPrompt(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	format, err := export.NormalizeFormat(r.URL.Query().Get("format"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	state := b.Workflow.State()
	prompt := state.Prompt
	if state.Mode == domain.ModeTextToImage {
		prompt = state.TextInput
	}
	if prompt == "" {
		a.error(w, http.StatusUnprocessableEntity, "invalid_input", "no prompt to export")
		return
	}
	doc, err := export.Render(prompt, format)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "export failed")
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}
