package bot

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"bananabot/internal/domain"
	"bananabot/internal/providers/image"
)

// NoticeKind classifies outbound messages so the transport can attach the
// right keyboard.
type NoticeKind string

const (
	NoticeWelcome      NoticeKind = "welcome"
	NoticeState        NoticeKind = "state"
	NoticeDispatch     NoticeKind = "dispatch"
	NoticeAdvisory     NoticeKind = "advisory"
	NoticeInsufficient NoticeKind = "insufficient_balance"
	NoticeRejected     NoticeKind = "rejected"
	NoticeTransient    NoticeKind = "transient_failure"
	NoticeStaleRefund  NoticeKind = "stale_refund"
	NoticeBalance      NoticeKind = "balance_adjusted"
	NoticeSupport      NoticeKind = "support"
	NoticeProfile      NoticeKind = "profile"
	NoticeBonus        NoticeKind = "bonus"
	NoticePurchase     NoticeKind = "purchase"
	NoticeError        NoticeKind = "error"
)

// Notice is one outbound text message.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Text     string     `json:"text"`
	Step     string     `json:"step,omitempty"`
	Options  []string   `json:"options,omitempty"`
	RecordID string     `json:"record_id,omitempty"`
}

// Notifier delivers messages to users. Errors are logged by the caller and
// never affect credits.
type Notifier interface {
	Notify(ctx context.Context, userID int64, n Notice) error
	SendArtifact(ctx context.Context, userID int64, rec domain.GenerationRecord, art image.Artifact, caption string) error
}

// LogNotifier writes notices to the log. It is used when no outbound
// transport is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(ctx context.Context, userID int64, notice Notice) error {
	n.logger.Info().Int64("user_id", userID).Str("kind", string(notice.Kind)).Str("text", notice.Text).Msg("notifier: notice")
	return nil
}

func (n *LogNotifier) SendArtifact(ctx context.Context, userID int64, rec domain.GenerationRecord, art image.Artifact, caption string) error {
	n.logger.Info().
		Int64("user_id", userID).
		Str("record_id", rec.ID).
		Str("provider", art.Provider).
		Int("bytes", len(art.Data)).
		Msg("notifier: artifact")
	return nil
}

// HTTPNotifier posts notices and artifacts as JSON to the chat transport.
type HTTPNotifier struct {
	client *resty.Client
}

func NewHTTPNotifier(baseURL, token string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(300 * time.Millisecond)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPNotifier{client: client}
}

type noticePayload struct {
	UserID int64 `json:"user_id"`
	Notice
}

type artifactPayload struct {
	UserID int64 `json:"user_id"`
	// RecordID is empty when the result cannot be rerolled or edited.
	RecordID  string `json:"record_id,omitempty"`
	Caption   string `json:"caption"`
	MIME      string `json:"mime,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Data      string `json:"data,omitempty"`
}

func (n *HTTPNotifier) Notify(ctx context.Context, userID int64, notice Notice) error {
	return n.post(ctx, "/notices", noticePayload{UserID: userID, Notice: notice})
}

func (n *HTTPNotifier) SendArtifact(ctx context.Context, userID int64, rec domain.GenerationRecord, art image.Artifact, caption string) error {
	payload := artifactPayload{
		UserID:    userID,
		RecordID:  rec.ID,
		Caption:   caption,
		MIME:      art.MIME,
		SourceURL: art.SourceURL,
	}
	if len(art.Data) > 0 {
		payload.Data = base64.StdEncoding.EncodeToString(art.Data)
	}
	return n.post(ctx, "/artifacts", payload)
}

func (n *HTTPNotifier) post(ctx context.Context, path string, body any) error {
	resp, err := n.client.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return fmt.Errorf("notify %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify %s: status %d: %s", path, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*HTTPNotifier)(nil)
)
