package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolConfig_ApplyDefaults(t *testing.T) {
	cfg := &PoolConfig{ConnString: "postgres://localhost/db"}
	cfg.ApplyDefaults()

	require.Equal(t, DefaultMaxConns, cfg.MaxConns)
	require.Equal(t, DefaultMinConns, cfg.MinConns)
	require.Equal(t, time.Hour, cfg.MaxConnLifetime)
	require.Equal(t, 30*time.Minute, cfg.MaxConnIdleTime)
	require.Equal(t, time.Minute, cfg.HealthCheckPeriod)
	require.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	require.NoError(t, cfg.Validate())

	small := &PoolConfig{ConnString: "postgres://localhost/db", MaxConns: 1}
	small.ApplyDefaults()
	require.Equal(t, int32(1), small.MinConns)

	set := &PoolConfig{ConnString: "postgres://localhost/db", MaxConns: 5, ConnectTimeout: time.Second}
	set.ApplyDefaults()
	require.Equal(t, int32(5), set.MaxConns)
	require.Equal(t, time.Second, set.ConnectTimeout)
}

func TestPoolConfig_pgxConfig(t *testing.T) {
	cfg := &PoolConfig{ConnString: "postgres://tenant@localhost:5432/app", MaxConns: 4}
	cfg.ApplyDefaults()

	pc, err := cfg.pgxConfig()
	require.NoError(t, err)
	require.Equal(t, int32(4), pc.MaxConns)
	require.Equal(t, int32(2), pc.MinConns)
	require.Equal(t, time.Hour, pc.MaxConnLifetime)
	require.Equal(t, 10*time.Second, pc.ConnConfig.ConnectTimeout)
	require.Equal(t, "tenant", pc.ConnConfig.User)

	_, err = (&PoolConfig{ConnString: "postgres://%zz"}).pgxConfig()
	require.Error(t, err)
}

func TestPoolConfig_Validate(t *testing.T) {
	require.Error(t, (&PoolConfig{}).Validate())
	require.Error(t, (&PoolConfig{ConnString: "postgres://localhost/db", MaxConns: 1, MinConns: 2}).Validate())
}

func TestConnectWithRetry_missingConnString(t *testing.T) {
	start := time.Now()
	_, err := ConnectWithRetry(context.Background(), &PoolConfig{}, time.Minute)
	require.ErrorContains(t, err, "connection string is required")
	require.Less(t, time.Since(start), 5*time.Second)
}
