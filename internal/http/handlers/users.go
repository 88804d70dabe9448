package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bananabot/internal/account"
	"bananabot/internal/domain"
)

type userDTO struct {
	ID              int64         `json:"id"`
	Username        string        `json:"username,omitempty"`
	FullName        string        `json:"full_name,omitempty"`
	Language        string        `json:"language,omitempty"`
	PreferredTier   domain.Tier   `json:"preferred_tier"`
	Balance         int64         `json:"balance"`
	Generations     int64         `json:"generations"`
	TotalSpent      string        `json:"total_spent"`
	RecentPurchases []purchaseDTO `json:"recent_purchases"`
}

type adjustRequest struct {
	Delta int64 `json:"delta"`
	// Silent skips the user notice.
	Silent bool `json:"silent,omitempty"`
}

type messageRequest struct {
	Text string `json:"text"`
}

func toUserDTO(p *account.Profile) userDTO {
	out := userDTO{
		ID:              p.User.ID,
		Username:        p.User.Username,
		FullName:        p.User.FullName,
		Language:        p.User.Language,
		PreferredTier:   p.User.PreferredTier,
		Balance:         p.Balance,
		Generations:     p.Generations,
		TotalSpent:      p.TotalSpent.StringFixed(2),
		RecentPurchases: make([]purchaseDTO, 0, len(p.RecentPurchases)),
	}
	for _, pur := range p.RecentPurchases {
		out.RecentPurchases = append(out.RecentPurchases, toPurchaseDTO(&pur))
	}
	return out
}

func (a *App) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return 0, false
	}
	return id, true
}

// GetUser returns the profile and balance of one user.
func (a *App) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := a.userID(w, r)
	if !ok {
		return
	}
	a.writeProfile(w, r, id)
}

// FindUser looks a user up by "@username" or numeric id.
func (a *App) FindUser(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "q required")
		return
	}
	user, err := a.Accounts.Find(r.Context(), q)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("query", q).Msg("http: find user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to find user")
		return
	}
	a.writeProfile(w, r, user.ID)
}

func (a *App) writeProfile(w http.ResponseWriter, r *http.Request, id int64) {
	prof, err := a.Accounts.Profile(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Int64("user_id", id).Msg("http: load profile failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load user")
		return
	}
	a.json(w, http.StatusOK, toUserDTO(prof))
}

// AdjustBalance applies an administrative credit delta.
func (a *App) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := a.userID(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	balance, err := a.Accounts.Adjust(r.Context(), id, req.Delta)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case err != nil:
		a.Logger.Error().Err(err).Int64("user_id", id).Msg("http: adjust balance failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to adjust balance")
		return
	}
	notified := false
	if a.Notices != nil && !req.Silent && req.Delta != 0 {
		if err := a.Notices.NotifyBalanceAdjusted(r.Context(), id, req.Delta, balance); err != nil {
			a.Logger.Warn().Err(err).Int64("user_id", id).Msg("http: balance notice failed")
		} else {
			notified = true
		}
	}
	a.json(w, http.StatusOK, map[string]any{"user_id": id, "balance": balance, "notified": notified})
}

// SendMessage relays an operator message to a user.
func (a *App) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.userID(w, r)
	if !ok {
		return
	}
	if a.Notices == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "notifications disabled")
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	err := a.Notices.SendSupportMessage(r.Context(), id, req.Text)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", "text required")
		return
	case err != nil:
		a.Logger.Error().Err(err).Int64("user_id", id).Msg("http: support message failed")
		a.error(w, http.StatusBadGateway, "notify_failed", "failed to deliver message")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"user_id": id, "delivered": true})
}
