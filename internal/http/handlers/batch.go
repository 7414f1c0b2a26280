package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"promptpix/internal/batch"
	"promptpix/internal/domain"
	"promptpix/internal/upload"
	"promptpix/pkg/zip"
)

// StartBatch accepts a multipart set of images and fans out analysis.
// Placeholders are visible in the returned snapshot immediately.
func (a *App) StartBatch(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "missing image files")
		return
	}
	inputs := make([]batch.Input, 0, len(headers))
	for _, h := range headers {
		converted, err := upload.FromMultipart(h)
		if err != nil {
			a.error(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
			return
		}
		inputs = append(inputs, batch.Input{
			Filename: converted.Filename,
			MimeType: converted.MimeType,
			Base64:   converted.Base64,
			DataURL:  converted.DataURL,
		})
	}

	b.Workflow.SwitchMode(domain.ModeBatch)
	if err := b.Batch.Start(context.WithoutCancel(r.Context()), inputs); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
		return
	}
	a.json(w, http.StatusAccepted, b.snapshot())
}

// BatchResults lists the current per-item batch state.
func (a *App) BatchResults(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"results": b.Batch.Results()})
}

// ExportBatch bundles every analyzed prompt of the current batch into a zip
// of text files, one per item.
func (a *App) ExportBatch(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	results := b.Batch.Results()
	entries := make([]zip.Entry, 0, len(results))
	used := make(map[string]int, len(results))
	for i, item := range results {
		if item.Prompt == "" {
			continue
		}
		name := strings.TrimSuffix(item.Filename, path.Ext(item.Filename))
		if name == "" {
			name = fmt.Sprintf("item-%d", i+1)
		}
		// Same source filename twice gets a numbered suffix.
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s-%d", name, n)
		}
		entries = append(entries, zip.Entry{Name: name + ".txt", Data: []byte(item.Prompt)})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusUnprocessableEntity, "invalid_input", "no prompts to export")
		return
	}
	archive, err := zip.Archive(entries)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "export failed")
		return
	}
	filename := "prompts_" + time.Now().UTC().Format(time.RFC3339) + ".zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// BatchGenerateImage renders an image for one analyzed batch item.
func (a *App) BatchGenerateImage(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	id := chi.URLParam(r, "id")
	if err := b.Batch.GenerateImage(context.WithoutCancel(r.Context()), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "unknown batch item")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "image generation failed")
		return
	}
	a.json(w, http.StatusAccepted, b.snapshot())
}
