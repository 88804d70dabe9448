// Package bot turns chat events into conversation transitions and paid
// generations, and reports results through a Notifier.
package bot

import (
	"strconv"

	"bananabot/internal/domain"
)

// Action is a button or command pressed by the user. The empty action is
// free text and/or images.
type Action string

const (
	ActionNone         Action = ""
	ActionStart        Action = "start"
	ActionGenerate     Action = "generate"
	ActionCancel       Action = "cancel"
	ActionToggleTier   Action = "toggle_tier"
	ActionCycleQuality Action = "cycle_quality"
	ActionOpenRatio    Action = "open_ratio"
	ActionSetRatio     Action = "set_ratio"
	ActionBack         Action = "back"
	ActionWizard       Action = "wizard"
	ActionReroll       Action = "reroll"
	ActionEdit         Action = "edit"
	ActionProfile      Action = "profile"
	ActionClaimBonus   Action = "claim_bonus"
	ActionBuy          Action = "buy"
)

// Event is one inbound chat update. Images sent together share a
// CorrelationID and are ordered by Seq. Text doubles as the argument of
// set_ratio (the ratio), claim_bonus (the bonus kind) and buy (the package).
type Event struct {
	UserID        int64    `json:"user_id"`
	Username      string   `json:"username,omitempty"`
	FullName      string   `json:"full_name,omitempty"`
	Language      string   `json:"language,omitempty"`
	ReferrerID    int64    `json:"referrer_id,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	Seq           int64    `json:"seq,omitempty"`
	Text          string   `json:"text,omitempty"`
	ImageRefs     []string `json:"image_refs,omitempty"`
	Action        Action   `json:"action,omitempty"`
	RecordID      string   `json:"record_id,omitempty"`
}

// Kind labels the event for metrics.
func (e Event) Kind() string {
	switch {
	case e.Action != ActionNone:
		return string(e.Action)
	case len(e.ImageRefs) > 0:
		return "images"
	default:
		return "text"
	}
}

func (e Event) batchKey() string {
	return strconv.FormatInt(e.UserID, 10) + ":" + e.CorrelationID
}

// Weight is the number of images the event carries; an album is limited by
// images, not by messages.
func (e Event) Weight() int {
	return max(1, len(domain.NormalizeRefs(e.ImageRefs)))
}
