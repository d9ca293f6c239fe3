package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Orders.IdempotencyTTL)
	assert.Equal(t, 5, cfg.Orders.LowStockThreshold)
}

func TestLoadLayers(t *testing.T) {
	path := writeFile(t, "supershop.yaml", `
service: shop-eu
database:
  driver: mysql
  dsn: shop:secret@tcp(db:3306)/shop?parseTime=true
  tx_timeout: 2s
orders:
  low_stock_threshold: 3
http:
  addr: ":9000"
`)
	t.Setenv("SUPERSHOP_HTTP_ADDR", ":9100")
	t.Setenv("SUPERSHOP_ORDERS_IDEMPOTENCY_TTL", "1h")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "shop-eu", cfg.Service)
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, 3, cfg.Orders.LowStockThreshold)
	assert.Equal(t, ":9100", cfg.HTTP.Addr)
	assert.Equal(t, time.Hour, cfg.Orders.IdempotencyTTL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
}

func TestLoadDotEnv(t *testing.T) {
	env := writeFile(t, ".env", "SUPERSHOP_REDIS_URL=redis://cache:6379/0\n")
	t.Cleanup(func() { _ = os.Unsetenv("SUPERSHOP_REDIS_URL") })

	cfg, err := Load("", env, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown driver": "database:\n  driver: oracle\n",
		"missing dsn":    "database:\n  driver: postgres\n",
		"bad yaml":       "database: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
