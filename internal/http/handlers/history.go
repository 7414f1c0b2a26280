package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"promptpix/internal/domain"
)

// History lists single-run history entries, newest first.
func (a *App) History(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": a.hist.Singles()})
}

// BatchHistory lists completed batch snapshots, newest first.
func (a *App) BatchHistory(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": a.hist.Batches()})
}

// SelectHistory loads a past single run back into the session workflow.
func (a *App) SelectHistory(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	item, err := a.hist.SingleByID(chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "unknown history item")
		return
	}
	if err := b.Workflow.SelectHistoryItem(r.Context(), item); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
		return
	}
	a.json(w, http.StatusOK, b.snapshot())
}

// SelectBatchHistory restores a past batch snapshot into the session.
func (a *App) SelectBatchHistory(w http.ResponseWriter, r *http.Request) {
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}
	item, err := a.hist.BatchByID(chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "unknown batch history item")
		return
	}
	b.Workflow.SwitchMode(domain.ModeBatch)
	b.Batch.Restore(item)
	a.json(w, http.StatusOK, b.snapshot())
}

// DeleteHistory removes one single-run entry and persists the collection.
func (a *App) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.hist.RemoveSingle(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "unknown history item")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "history delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBatchHistory removes one batch snapshot and persists the collection.
func (a *App) DeleteBatchHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.hist.RemoveBatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "unknown batch history item")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "history delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
