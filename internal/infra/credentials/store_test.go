package credentials

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bananabot/internal/infra"
)

type stubExecutor struct {
	tokens map[string]string
	err    error
	exec   struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if s.err != nil {
		return stubRow{err: s.err}
	}
	token, ok := s.tokens[args[0].(string)]
	if !ok {
		return stubRow{err: pgx.ErrNoRows}
	}
	return stubRow{token: token}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestToken(t *testing.T) {
	store := NewStore(&stubExecutor{tokens: map[string]string{ProviderKie: " abc123 "}})
	key, err := store.Token(context.Background(), ProviderKie)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "abc123" {
		t.Fatalf("expected abc123, got %q", key)
	}
}

func TestToken_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{})
	key, err := store.Token(context.Background(), ProviderGemini)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestSet(t *testing.T) {
	exec := &stubExecutor{}
	store := NewStore(exec)
	if err := store.Set(context.Background(), " Gemini ", "secret"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if len(exec.exec.args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
	}
	if v, ok := exec.exec.args[0].(string); !ok || v != ProviderGemini {
		t.Fatalf("expected provider gemini, got %T %v", exec.exec.args[0], exec.exec.args[0])
	}
	if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
		t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
	}
	if raw, ok := exec.exec.args[2].([]byte); !ok || !strings.Contains(string(raw), "rotated_at") {
		t.Fatalf("expected rotated_at properties, got %v", exec.exec.args[2])
	}
}

func TestSetRejectsEmptyKeyAndUnknownProvider(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.Set(context.Background(), ProviderKie, " "); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := store.Set(context.Background(), "openai", "k"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestResolveKeepsEnvironmentKeys(t *testing.T) {
	store := NewStore(&stubExecutor{tokens: map[string]string{ProviderKie: "db-kie", ProviderGemini: "db-gemini"}})
	cfg := &infra.Config{KieAPIKey: "env-kie"}
	if err := store.Resolve(context.Background(), cfg); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if cfg.KieAPIKey != "env-kie" {
		t.Fatalf("kie key overwritten: %q", cfg.KieAPIKey)
	}
	if cfg.GeminiAPIKey != "db-gemini" {
		t.Fatalf("gemini key = %q, want db-gemini", cfg.GeminiAPIKey)
	}
}

func TestResolvePropagatesErrors(t *testing.T) {
	store := NewStore(&stubExecutor{err: errors.New("boom")})
	if err := store.Resolve(context.Background(), &infra.Config{}); err == nil {
		t.Fatal("expected error")
	}
}
