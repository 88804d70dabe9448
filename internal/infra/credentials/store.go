// Package credentials keeps provider API keys in the integration_tokens table
// so they can be rotated without a redeploy.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bananabot/internal/infra"
	"bananabot/internal/sqlinline"
)

const (
	ProviderKie    = "kie"
	ProviderGemini = "gemini"
)

// Providers lists the names accepted by Set.
var Providers = []string{ProviderKie, ProviderGemini}

type Store struct {
	sql infra.SQLExecutor
	now func() time.Time
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql, now: func() time.Time { return time.Now().UTC() }}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Set stores key for a known provider, replacing any previous key.
func (s *Store) Set(ctx context.Context, provider, key string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !known(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	return s.upsert(ctx, provider, key, map[string]any{"rotated_at": s.now().Format(time.RFC3339)})
}

// Resolve fills empty keys in cfg from the table. Keys already present in
// the environment win.
func (s *Store) Resolve(ctx context.Context, cfg *infra.Config) error {
	if cfg.KieAPIKey == "" {
		key, err := s.Token(ctx, ProviderKie)
		if err != nil {
			return fmt.Errorf("load kie key: %w", err)
		}
		cfg.KieAPIKey = key
	}
	if cfg.GeminiAPIKey == "" {
		key, err := s.Token(ctx, ProviderGemini)
		if err != nil {
			return fmt.Errorf("load gemini key: %w", err)
		}
		cfg.GeminiAPIKey = key
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

func known(provider string) bool {
	for _, p := range Providers {
		if p == provider {
			return true
		}
	}
	return false
}
