// Package account manages chat users: first-contact registration with the
// starting grant, one-time bonuses, tier preference and profile lookups.
package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bananabot/internal/domain"
	"bananabot/internal/ledger"
)

// Settings holds credit amounts granted by the service.
type Settings struct {
	StartBalance  int64
	WelcomeBonus  int64
	ReferralBonus int64
	BonusAmount   int64
}

// Contact is what the chat transport knows about a user on first contact.
type Contact struct {
	ID         int64
	Username   string
	FullName   string
	Language   string
	ReferrerID int64
}

// Profile is the user-facing account summary.
type Profile struct {
	User            domain.User
	Balance         int64
	Generations     int64
	TotalSpent      decimal.Decimal
	RecentPurchases []domain.Purchase
}

// Service coordinates users with the ledger.
type Service struct {
	users     domain.UserRepository
	records   domain.RecordRepository
	purchases domain.PurchaseRepository
	ledger    ledger.Store
	settings  Settings
	logger    zerolog.Logger
}

func NewService(users domain.UserRepository, records domain.RecordRepository, purchases domain.PurchaseRepository, store ledger.Store, settings Settings, logger zerolog.Logger) *Service {
	return &Service{
		users:     users,
		records:   records,
		purchases: purchases,
		ledger:    store,
		settings:  settings,
		logger:    logger.With().Str("component", "account").Logger(),
	}
}

// Ensure returns the stored user, registering it on first contact. A new
// user gets the starting balance, the welcome bonus and, when invited by
// another known user, the referral bonus.
func (s *Service) Ensure(ctx context.Context, c Contact) (*domain.User, bool, error) {
	if c.ID == 0 {
		return nil, false, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	referrer := c.ReferrerID
	if referrer == c.ID {
		referrer = 0
	}
	user, created, err := s.users.Create(ctx, &domain.User{
		ID:            c.ID,
		Username:      strings.TrimPrefix(strings.TrimSpace(c.Username), "@"),
		FullName:      strings.TrimSpace(c.FullName),
		Language:      c.Language,
		PreferredTier: domain.TierStandard,
		ReferrerID:    referrer,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	if _, err := s.ledger.Open(ctx, user.ID, s.settings.StartBalance); err != nil {
		return nil, false, fmt.Errorf("open balance: %w", err)
	}
	if !created {
		return user, false, nil
	}

	log := s.logger.With().Int64("user_id", user.ID).Logger()
	log.Info().Str("username", user.Username).Int64("start_balance", s.settings.StartBalance).Msg("account: user registered")
	if s.settings.WelcomeBonus > 0 {
		if _, err := s.grant(ctx, user.ID, ledger.BonusWelcome, s.settings.WelcomeBonus); err != nil {
			log.Error().Err(err).Msg("account: welcome bonus failed")
		}
	}
	if user.ReferrerID != 0 && s.settings.ReferralBonus > 0 {
		if _, err := s.users.GetByID(ctx, user.ReferrerID); err == nil {
			if _, err := s.grant(ctx, user.ID, ledger.BonusReferral, s.settings.ReferralBonus); err != nil {
				log.Error().Err(err).Msg("account: referral bonus failed")
			}
		}
	}
	return user, true, nil
}

// ClaimBonus pays a one-time subscription style bonus. A repeated claim
// returns ledger.ErrBonusClaimed.
func (s *Service) ClaimBonus(ctx context.Context, userID int64, kind ledger.BonusKind) (int64, error) {
	switch kind {
	case ledger.BonusSubscription, ledger.BonusChannel, ledger.BonusChat:
	default:
		return 0, fmt.Errorf("%w: bonus %q is not claimable", domain.ErrInvalidInput, kind)
	}
	return s.grant(ctx, userID, kind, s.settings.BonusAmount)
}

func (s *Service) grant(ctx context.Context, userID int64, kind ledger.BonusKind, amount int64) (int64, error) {
	balance, err := s.ledger.ClaimBonus(ctx, userID, kind, amount)
	if err != nil {
		return balance, err
	}
	s.logger.Info().Int64("user_id", userID).Str("kind", string(kind)).Int64("amount", amount).Msg("account: bonus granted")
	return balance, nil
}

// Get returns a known user.
func (s *Service) Get(ctx context.Context, userID int64) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// Balance returns the user's current credits.
func (s *Service) Balance(ctx context.Context, userID int64) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}

// Adjust applies an administrative signed correction to a known user.
func (s *Service) Adjust(ctx context.Context, userID int64, delta int64) (int64, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return 0, err
	}
	balance, err := s.ledger.Adjust(ctx, userID, delta)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("user_id", userID).Int64("delta", delta).Int64("balance", balance).Msg("account: balance adjusted")
	return balance, nil
}

// Find resolves "@name", "name" or a numeric id to a user.
func (s *Service) Find(ctx context.Context, query string) (*domain.User, error) {
	q := strings.TrimPrefix(strings.TrimSpace(query), "@")
	if q == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if id, err := strconv.ParseInt(q, 10, 64); err == nil {
		user, err := s.users.GetByID(ctx, id)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			return user, err
		}
	}
	return s.users.GetByUsername(ctx, q)
}

// PreferredTier returns the saved tier, standard for unknown users.
func (s *Service) PreferredTier(ctx context.Context, userID int64) domain.Tier {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.TierStandard
	}
	return domain.ParseTier(string(user.PreferredTier))
}

// SetPreferredTier saves the tier used for new configurations.
func (s *Service) SetPreferredTier(ctx context.Context, userID int64, tier domain.Tier) error {
	return s.users.SetPreferredTier(ctx, userID, domain.ParseTier(string(tier)))
}

// Profile assembles the account summary with the two latest purchases.
func (s *Service) Profile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	generations, err := s.records.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count generations: %w", err)
	}
	spent, err := s.purchases.TotalPaidByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("total spent: %w", err)
	}
	recent, err := s.purchases.ListByUser(ctx, userID, 10)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	paid := make([]domain.Purchase, 0, 2)
	for _, p := range recent {
		if p.Status == domain.PurchaseStatusPaid && len(paid) < 2 {
			paid = append(paid, p)
		}
	}
	return &Profile{User: *user, Balance: balance, Generations: generations, TotalSpent: spent, RecentPurchases: paid}, nil
}
