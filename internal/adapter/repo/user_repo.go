package repo

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"bananabot/internal/domain"
	"bananabot/internal/infra"
	"bananabot/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// Create inserts the user if absent and returns the stored row.
func (r *UserRepositoryPG) Create(ctx context.Context, user *domain.User) (*domain.User, bool, error) {
	if user == nil || user.ID == 0 {
		return nil, false, domain.ErrInvalidInput
	}
	tier := user.PreferredTier
	if tier == "" {
		tier = domain.TierStandard
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertUser,
		user.ID,
		strings.TrimPrefix(strings.TrimSpace(user.Username), "@"),
		user.FullName,
		user.Language,
		string(tier),
		user.ReferrerID,
	)
	var (
		u       domain.User
		tierRaw string
		created bool
	)
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Language, &tierRaw, &u.ReferrerID, &u.CreatedAt, &u.UpdatedAt, &created); err != nil {
		return nil, false, err
	}
	u.PreferredTier = domain.ParseTier(tierRaw)
	return &u, created, nil
}

// GetByID fetches a user by chat identifier.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id))
}

// GetByUsername fetches a user by username, with or without a leading @.
func (r *UserRepositoryPG) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, domain.ErrNotFound
	}
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByUsername, username))
}

// SetPreferredTier stores the tier a new configuration starts with.
func (r *UserRepositoryPG) SetPreferredTier(ctx context.Context, id int64, tier domain.Tier) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateUserTier, id, string(domain.ParseTier(string(tier))))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u       domain.User
		tierRaw string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Language, &tierRaw, &u.ReferrerID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.PreferredTier = domain.ParseTier(tierRaw)
	return &u, nil
}
