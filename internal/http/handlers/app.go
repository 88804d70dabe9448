package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"bananabot/internal/account"
	"bananabot/internal/bot"
	"bananabot/internal/domain"
	"bananabot/internal/payment"
)

// EventDispatcher accepts chat events for asynchronous handling.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev bot.Event)
}

// Sweeper refunds stale tasks on demand.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (int, int64, error)
}

// ArtifactReader loads stored artifact bytes.
type ArtifactReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// LinkVerifier checks signed public artifact links.
type LinkVerifier interface {
	Verify(key, exp, sig string) error
}

// UserNotices delivers operator notices to users.
type UserNotices interface {
	NotifyBalanceAdjusted(ctx context.Context, userID, delta, balance int64) error
	SendSupportMessage(ctx context.Context, userID int64, text string) error
}

// App holds the dependencies of the HTTP handlers. Links and Notices are
// optional.
type App struct {
	Events     EventDispatcher
	Accounts   *account.Service
	Payments   *payment.Service
	Watchdog   Sweeper
	StaleAfter time.Duration
	Stats      domain.StatsRepository
	Records    domain.RecordRepository
	Artifacts  ArtifactReader
	Links      LinkVerifier
	Notices    UserNotices
	Logger     zerolog.Logger
	Now        func() time.Time
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}
