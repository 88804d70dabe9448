package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"bananabot/internal/domain"
	"bananabot/internal/infra"
	"bananabot/internal/sqlinline"
)

// TaskRepositoryPG implements domain.TaskRepository.
type TaskRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewTaskRepository creates a new task repository backed by PostgreSQL.
func NewTaskRepository(sql infra.SQLExecutor) *TaskRepositoryPG {
	return &TaskRepositoryPG{sql: sql}
}

// Open inserts a processing task.
func (r *TaskRepositoryPG) Open(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return domain.ErrInvalidInput
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	task.UpdatedAt = task.CreatedAt
	task.Status = domain.TaskStatusProcessing
	_, err := r.sql.Exec(ctx, sqlinline.QInsertTask, task.ID, task.UserID, task.Cost, task.CreatedAt)
	return err
}

// Transition moves a task from to.Source() to to. Losing the race is
// reported as false, not as an error.
func (r *TaskRepositoryPG) Transition(ctx context.Context, id string, to domain.TaskStatus) (bool, error) {
	from, ok := to.Source()
	if !ok {
		return false, domain.ErrInvalidInput
	}
	var got string
	if err := r.sql.QueryRow(ctx, sqlinline.QTransitionTask, id, string(to), string(from)).Scan(&got); err != nil {
		if infra.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListStale returns processing tasks created before cutoff and refunding
// tasks untouched since cutoff, oldest first.
func (r *TaskRepositoryPG) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Task, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListStaleTasks, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// ClaimRefund bumps the update time of a refunding task untouched since
// cutoff. Concurrent claimers see no row and get false.
func (r *TaskRepositoryPG) ClaimRefund(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	var got string
	if err := r.sql.QueryRow(ctx, sqlinline.QClaimTaskRefund, id, cutoff).Scan(&got); err != nil {
		if infra.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetByID fetches a task by identifier.
func (r *TaskRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	task, err := scanTask(r.sql.QueryRow(ctx, sqlinline.QSelectTaskByID, id))
	if infra.IsNoRows(err) {
		return nil, domain.ErrNotFound
	}
	return task, err
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t      domain.Task
		status string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Cost, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = domain.TaskStatus(status)
	return &t, nil
}
