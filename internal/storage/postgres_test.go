package storage

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-insight/internal/config"
	"github.com/wallet-insight/internal/types"
)

func testPostgresConfig() *config.PostgresConfig {
	cfg := &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "wallet_insight",
		User:           "insight",
		Password:       "insight_dev_password",
		MaxConnections: 5,
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Password = v
	}
	return cfg
}

// setupTestDB connects to Postgres and applies migrations, skipping when unavailable
func setupTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(testContext(t), cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.ConnectionString(), "../../migrations/postgres"); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return db
}

func TestPoolConfig(t *testing.T) {
	cfg := testPostgresConfig()
	cfg.MaxConnections = 3
	cfg.MinConnections = 10
	cfg.MaxConnIdleTime = 2 * time.Minute

	poolConfig, err := PoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(3), poolConfig.MaxConns)
	assert.Equal(t, int32(3), poolConfig.MinConns)
	assert.Equal(t, 2*time.Minute, poolConfig.MaxConnIdleTime)
	assert.Equal(t, "wallet_insight", poolConfig.ConnConfig.Database)
	assert.Equal(t, applicationName, poolConfig.ConnConfig.RuntimeParams["application_name"])

	cfg.MaxConnections = 0
	cfg.MinConnections = -1
	poolConfig, err = PoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(1), poolConfig.MaxConns)
	assert.Equal(t, int32(0), poolConfig.MinConns)
}

func TestNewPostgresDB(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Ping(testContext(t)))
	assert.NotNil(t, db.Pool())
}

func TestReportRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db.Pool())
	ctx := testContext(t)

	address := "0x" + time.Now().Format("20060102150405.000000")
	older := &types.WalletReport{
		Address:     address,
		Chain:       types.ChainETH,
		GeneratedAt: time.Now().UTC().Add(-time.Hour),
		Behavior:    types.BehaviorAnalysis{Tags: []string{"Low Activity"}},
	}
	newer := &types.WalletReport{
		Address:     address,
		Chain:       types.ChainETH,
		GeneratedAt: time.Now().UTC(),
		Behavior: types.BehaviorAnalysis{
			Tags:    []string{"DEX User"},
			Metrics: types.BehaviorMetrics{TotalTransactions: 12},
		},
	}
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	assert.NotEmpty(t, older.ID)

	reports, err := repo.ListByAddress(ctx, types.ChainETH, address, 10)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, newer.ID, reports[0].ID)
	assert.Equal(t, 12, reports[0].Behavior.Metrics.TotalTransactions)

	got, err := repo.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Low Activity"}, got.Behavior.Tags)

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))
}

func TestReportRepository_GetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db.Pool())

	_, err := repo.GetByID(testContext(t), "not-a-uuid")
	assert.ErrorIs(t, err, ErrReportNotFound)

	_, err = repo.GetByID(testContext(t), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrReportNotFound)
}
