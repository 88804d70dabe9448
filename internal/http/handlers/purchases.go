package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bananabot/internal/domain"
	"bananabot/internal/payment"
)

type purchaseDTO struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	Package   string     `json:"package"`
	Amount    int64      `json:"amount"`
	Price     string     `json:"price"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

type packageDTO struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Credits   int64  `json:"credits"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
	PerCredit string `json:"per_credit"`
}

func toPurchaseDTO(p *domain.Purchase) purchaseDTO {
	return purchaseDTO{
		ID:        p.ID,
		UserID:    p.UserID,
		Package:   p.Package,
		Amount:    p.Amount,
		Price:     p.Price.StringFixed(2),
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		PaidAt:    p.PaidAt,
	}
}

// ListPackages returns the credit package price list.
func (a *App) ListPackages(w http.ResponseWriter, r *http.Request) {
	pkgs := a.Payments.Catalog().List()
	out := make([]packageDTO, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, packageDTO{
			Key:       p.Key,
			Name:      p.Name,
			Credits:   p.Credits,
			Price:     p.Price.StringFixed(2),
			Currency:  p.Currency,
			PerCredit: p.PerCredit().StringFixed(2),
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": out})
}

// ConfirmPurchase marks a purchase paid and credits the user once.
func (a *App) ConfirmPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "purchase id required")
		return
	}
	purchase, balance, err := a.Payments.Confirm(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "purchase not found")
		return
	case errors.Is(err, payment.ErrAlreadyConfirmed):
		a.error(w, http.StatusConflict, "already_confirmed", "purchase already confirmed")
		return
	case err != nil:
		a.Logger.Error().Err(err).Str("purchase_id", id).Msg("http: confirm purchase failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to confirm purchase")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"purchase": toPurchaseDTO(purchase),
		"balance":  balance,
	})
}
