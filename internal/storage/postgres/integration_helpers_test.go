package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Живые тесты ходят в PostgreSQL из SHOP_POSTGRES_TEST_DSN и пропускаются без него.
const envTestDSN = "SHOP_POSTGRES_TEST_DSN"

// liveStore открывает хранилище без миграций или пропускает тест.
func liveStore(t *testing.T) *Store {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(envTestDSN))
	if dsn == "" {
		t.Skipf("%s is not set", envTestDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

// migratedStore возвращает хранилище с актуальной схемой и пустыми таблицами.
func migratedStore(t *testing.T) *Store {
	t.Helper()

	store := liveStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, store.EnsureSchema(ctx))
	_, err := store.DB().Exec(ctx,
		`TRUNCATE TABLE outbox_messages, order_items, orders, products, customers CASCADE`)
	require.NoError(t, err)

	return store
}
