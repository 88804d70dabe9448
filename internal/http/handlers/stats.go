package handlers

import (
	"net/http"
)

func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	if a.Stats == nil {
		a.error(w, http.StatusNotImplemented, "unavailable", "stats are not configured")
		return
	}
	stats, err := a.Stats.Summary(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: load stats failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"total_users":       stats.Users,
		"total_generations": stats.Generations,
		"revenue":           stats.Revenue.StringFixed(2),
	})
}
