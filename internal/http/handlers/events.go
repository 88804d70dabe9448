package handlers

import (
	"encoding/json"
	"net/http"

	"bananabot/internal/bot"
	"bananabot/internal/middleware"
)

const maxEventBytes = 1 << 20

// PostEvent accepts one chat event and handles it in the background. The
// response only acknowledges receipt; results reach the user through the
// notifier.
func (a *App) PostEvent(w http.ResponseWriter, r *http.Request) {
	var ev bot.Event
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err := dec.Decode(&ev); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if ev.UserID == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id required")
		return
	}
	if ev.Language == "" {
		ev.Language = middleware.LocaleFromContext(r.Context())
	}
	a.Events.Dispatch(r.Context(), ev)
	a.json(w, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"request_id": middleware.RequestIDFromContext(r.Context()),
	})
}
