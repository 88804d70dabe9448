package repo

import (
	"context"

	"bananabot/internal/domain"
	"bananabot/internal/infra"
	"bananabot/internal/sqlinline"
)

// StatsRepositoryPG implements domain.StatsRepository.
type StatsRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewStatsRepository(sql infra.SQLExecutor) *StatsRepositoryPG {
	return &StatsRepositoryPG{sql: sql}
}

// Summary aggregates user, generation and revenue totals.
func (r *StatsRepositoryPG) Summary(ctx context.Context) (*domain.Stats, error) {
	var (
		s       domain.Stats
		revenue string
	)
	if err := r.sql.QueryRow(ctx, sqlinline.QStatsSummary).Scan(&s.Users, &s.Generations, &revenue); err != nil {
		return nil, err
	}
	amount, err := parseMoney(revenue)
	if err != nil {
		return nil, err
	}
	s.Revenue = amount
	return &s, nil
}

var (
	_ domain.UserRepository     = (*UserRepositoryPG)(nil)
	_ domain.TaskRepository     = (*TaskRepositoryPG)(nil)
	_ domain.RecordRepository   = (*RecordRepositoryPG)(nil)
	_ domain.PurchaseRepository = (*PurchaseRepositoryPG)(nil)
	_ domain.StatsRepository    = (*StatsRepositoryPG)(nil)
)
