package domain

import (
	"strings"
	"time"
)

// Tier is the quality/cost level of a generation request.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPro      Tier = "pro"
)

// ParseTier maps free-form input onto a known tier, defaulting to standard.
func ParseTier(v string) Tier {
	if strings.EqualFold(strings.TrimSpace(v), string(TierPro)) {
		return TierPro
	}
	return TierStandard
}

// Toggle returns the other tier.
func (t Tier) Toggle() Tier {
	if t == TierPro {
		return TierStandard
	}
	return TierPro
}

// User represents a chat user known to the bot. The credit balance is owned by
// the ledger and is not part of this record.
type User struct {
	ID            int64
	Username      string
	FullName      string
	Language      string
	PreferredTier Tier
	ReferrerID    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DisplayName returns the best human label for the user.
func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FullName
}
