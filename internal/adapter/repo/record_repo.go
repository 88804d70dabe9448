package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bananabot/internal/domain"
	"bananabot/internal/infra"
	"bananabot/internal/sqlinline"
)

// RecordRepositoryPG implements domain.RecordRepository.
type RecordRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewRecordRepository creates a new generation record repository.
func NewRecordRepository(sql infra.SQLExecutor) *RecordRepositoryPG {
	return &RecordRepositoryPG{sql: sql}
}

// Save persists a record, assigning an identifier when missing.
func (r *RecordRepositoryPG) Save(ctx context.Context, record *domain.GenerationRecord) error {
	if record == nil {
		return domain.ErrInvalidInput
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	refs, err := json.Marshal(domain.NormalizeRefs(record.Params.InputRefs))
	if err != nil {
		return fmt.Errorf("encode input refs: %w", err)
	}
	p := record.Params
	_, err = r.sql.Exec(ctx, sqlinline.QInsertRecord,
		record.ID,
		record.UserID,
		p.Prompt,
		refs,
		p.Ratio,
		p.Cost,
		string(p.Tier),
		p.Resolution,
		record.ArtifactKey,
		record.SourceURL,
		record.CreatedAt,
	)
	return err
}

// GetByID loads a record by identifier.
func (r *RecordRepositoryPG) GetByID(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	var (
		rec  domain.GenerationRecord
		refs []byte
		tier string
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectRecordByID, id).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Params.Prompt,
		&refs,
		&rec.Params.Ratio,
		&rec.Params.Cost,
		&tier,
		&rec.Params.Resolution,
		&rec.ArtifactKey,
		&rec.SourceURL,
		&rec.CreatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &rec.Params.InputRefs); err != nil {
			return nil, fmt.Errorf("decode input refs: %w", err)
		}
	}
	rec.Params.Tier = domain.Tier(tier)
	cost := rec.Params.Cost
	rec.Params.Normalize()
	rec.Params.Cost = cost
	return &rec, nil
}

// CountByUser returns how many records the user owns.
func (r *RecordRepositoryPG) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	if err := r.sql.QueryRow(ctx, sqlinline.QCountRecordsByUser, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
