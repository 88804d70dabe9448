package pgxstub

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type label string

func TestRowAssignsAndConverts(t *testing.T) {
	now := time.Now()
	var (
		id   int64
		name label
		at   *time.Time
		ts   time.Time
	)
	err := NewRow(int64(7), "pro", nil, now).Scan(&id, &name, &at, &ts)
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	require.Equal(t, label("pro"), name)
	require.Nil(t, at)
	require.True(t, ts.Equal(now))
}

func TestRowArityMismatch(t *testing.T) {
	var a, b int64
	require.Error(t, NewRow(int64(1)).Scan(&a, &b))
}

func TestExecutorDefaultsAndCalls(t *testing.T) {
	exec := &Executor{}
	var v int64
	err := exec.QueryRow(context.Background(), "--sql 00000000-0000-0000-0000-000000000001\nselect 1", 1).Scan(&v)
	require.ErrorIs(t, err, pgx.ErrNoRows)

	rows, err := exec.Query(context.Background(), "--sql 00000000-0000-0000-0000-000000000002\nselect 2")
	require.NoError(t, err)
	require.False(t, rows.Next())

	calls := exec.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, "00000000-0000-0000-0000-000000000001", calls[0].Marker())
	require.Equal(t, []any{1}, calls[0].Args)
}

func TestRowsIterate(t *testing.T) {
	rows := &Rows{Data: [][]any{{int64(1)}, {int64(2)}}}
	var got []int64
	for rows.Next() {
		var v int64
		require.NoError(t, rows.Scan(&v))
		got = append(got, v)
	}
	require.Equal(t, []int64{1, 2}, got)
}
