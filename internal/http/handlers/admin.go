package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bananabot/internal/domain"
	"bananabot/internal/storage"
)

// Sweep runs the stale task watchdog once. The optional older_than query
// parameter overrides the configured staleness age.
func (a *App) Sweep(w http.ResponseWriter, r *http.Request) {
	age := a.StaleAfter
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid older_than")
			return
		}
		age = d
	}
	count, credits, err := a.Watchdog.Sweep(r.Context(), a.now().Add(-age))
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: sweep failed")
		a.error(w, http.StatusInternalServerError, "internal", "sweep failed")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"refunded_tasks": count, "refunded_credits": credits})
}

// PublicArtifact serves a stored artifact behind a signed, expiring link so
// URL-only providers can fetch edit inputs.
func (a *App) PublicArtifact(w http.ResponseWriter, r *http.Request) {
	if a.Links == nil || a.Artifacts == nil {
		a.error(w, http.StatusNotFound, "not_found", "artifact links disabled")
		return
	}
	key := chi.URLParam(r, "*")
	q := r.URL.Query()
	err := a.Links.Verify(key, q.Get("exp"), q.Get("sig"))
	if errors.Is(err, storage.ErrLinkExpired) {
		a.error(w, http.StatusGone, "expired", "link expired")
		return
	}
	if err != nil || !storage.IsArtifactKey(key) {
		a.error(w, http.StatusForbidden, "forbidden", "invalid link")
		return
	}
	a.writeArtifact(w, r, key, "public, max-age=300")
}

// DownloadArtifact streams the stored image of a generation record.
func (a *App) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := a.Records.GetByID(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "record not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("record_id", id).Msg("http: load record failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load record")
		return
	}
	if rec.ArtifactKey == "" || a.Artifacts == nil {
		a.error(w, http.StatusNotFound, "not_found", "artifact not stored")
		return
	}
	a.writeArtifact(w, r, rec.ArtifactKey, "private, max-age=86400")
}

func (a *App) writeArtifact(w http.ResponseWriter, r *http.Request, key, cache string) {
	data, err := a.Artifacts.Read(r.Context(), key)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "artifact missing")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("key", key).Msg("http: read artifact failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read artifact")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", cache)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
