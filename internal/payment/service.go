// Package payment sells credit packages. The payment gateway itself is out
// of scope: purchases are created pending and confirmed by a callback or an
// operator, which credits the ledger exactly once.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bananabot/internal/domain"
	"bananabot/internal/ledger"
)

var (
	// ErrUnknownPackage is returned for keys missing from the catalog.
	ErrUnknownPackage = errors.New("unknown package")
	// ErrAlreadyConfirmed is returned when a purchase was paid before.
	ErrAlreadyConfirmed = errors.New("purchase already confirmed")
)

type Service struct {
	catalog   *Catalog
	purchases domain.PurchaseRepository
	ledger    ledger.Store
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(catalog *Catalog, purchases domain.PurchaseRepository, store ledger.Store, logger zerolog.Logger) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Service{
		catalog:   catalog,
		purchases: purchases,
		ledger:    store,
		logger:    logger.With().Str("component", "payment").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Catalog exposes the price list.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Create records a pending purchase of the package.
func (s *Service) Create(ctx context.Context, userID int64, key string) (*domain.Purchase, error) {
	pkg, ok := s.catalog.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPackage, key)
	}
	p := &domain.Purchase{
		ID:        uuid.NewString(),
		UserID:    userID,
		Package:   pkg.Key,
		Amount:    pkg.Credits,
		Price:     pkg.Price,
		Status:    domain.PurchaseStatusPending,
		CreatedAt: s.now(),
	}
	if err := s.purchases.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create purchase: %w", err)
	}
	s.logger.Info().
		Str("purchase_id", p.ID).
		Int64("user_id", userID).
		Str("package", pkg.Key).
		Str("price", pkg.Price.StringFixed(2)).
		Msg("payment: purchase created")
	return p, nil
}

// Confirm marks a purchase paid and credits its amount. Only the first
// confirmation credits; later ones return ErrAlreadyConfirmed.
func (s *Service) Confirm(ctx context.Context, purchaseID string) (*domain.Purchase, int64, error) {
	p, err := s.purchases.MarkPaid(ctx, purchaseID, s.now())
	if errors.Is(err, domain.ErrDuplicateOperation) {
		return nil, 0, ErrAlreadyConfirmed
	}
	if err != nil {
		return nil, 0, err
	}
	balance, err := s.ledger.Refund(context.WithoutCancel(ctx), p.UserID, p.Amount)
	if err != nil {
		s.logger.Error().Err(err).Str("purchase_id", p.ID).Msg("payment: credit failed after confirmation")
		return p, 0, fmt.Errorf("credit purchase: %w", err)
	}
	s.logger.Info().
		Str("purchase_id", p.ID).
		Int64("user_id", p.UserID).
		Int64("amount", p.Amount).
		Int64("balance", balance).
		Msg("payment: purchase confirmed")
	return p, balance, nil
}
