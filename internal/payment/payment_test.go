package payment

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bananabot/internal/adapter/memory"
	"bananabot/internal/infra"
	"bananabot/internal/ledger"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	list := c.List()
	require.Len(t, list, 5)
	assert.Equal(t, "mini", list[0].Key)
	assert.Equal(t, "whale", list[4].Key)

	std, ok := c.Get("standard")
	require.True(t, ok)
	assert.Equal(t, int64(44), std.Credits)
	assert.Equal(t, "6.8", std.PerCredit().String())
}

func TestLoadCatalogFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packages.yaml")
	t.Setenv("PROMO_PRICE", "49.50")
	require.NoError(t, os.WriteFile(path, []byte(`
packages:
  - key: promo
    name: Promo
    credits: 10
    price: ${PROMO_PRICE}
  - key: big
    credits: 100
    price: 399
    currency: USD
`), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	promo, ok := c.Get("promo")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("49.5").Equal(promo.Price))
	assert.Equal(t, "RUB", promo.Currency)
	big, _ := c.Get("big")
	assert.Equal(t, "USD", big.Currency)
	assert.Equal(t, "big", big.Name)
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":     "packages: []",
		"no price":  "packages: [{key: a, credits: 1}]",
		"duplicate": "packages: [{key: a, credits: 1, price: 1}, {key: a, credits: 2, price: 2}]",
		"credits":   "packages: [{key: a, credits: 0, price: 1}]",
	} {
		_, err := ParseCatalog([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestCreateAndConfirmOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := ledger.NewMemory()
	svc := NewService(nil, store.Purchases(), l, infra.NopLogger())

	p, err := svc.Create(ctx, 5, "mini")
	require.NoError(t, err)
	assert.Equal(t, int64(8), p.Amount)

	var credited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := svc.Confirm(ctx, p.ID); err == nil {
				credited.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrAlreadyConfirmed)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), credited.Load())

	balance, _ := l.Balance(ctx, 5)
	assert.Equal(t, int64(8), balance)
}

func TestCreateUnknownPackage(t *testing.T) {
	svc := NewService(nil, memory.New().Purchases(), ledger.NewMemory(), infra.NopLogger())
	_, err := svc.Create(context.Background(), 1, "gold")
	require.ErrorIs(t, err, ErrUnknownPackage)
}
