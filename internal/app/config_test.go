package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUDIT_CHAIN_KEY", "k")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, "admin", cfg.AdminUsername)
	assert.False(t, cfg.PermissionCacheEnabled)
	assert.False(t, cfg.IsProduction())

	opts := cfg.QueueRedisOpts()
	assert.Equal(t, cfg.RedisAddr, opts.Addr)
}

func TestLoadConfigRequiresChainKey(t *testing.T) {
	t.Setenv("AUDIT_CHAIN_KEY", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsDefaultAdminPasswordInProduction(t *testing.T) {
	t.Setenv("AUDIT_CHAIN_KEY", "k")
	t.Setenv("APP_ENV", "production")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("ADMIN_PASSWORD", "a-real-secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfigRejectsNonPositiveStoreTimeout(t *testing.T) {
	t.Setenv("AUDIT_CHAIN_KEY", "k")
	t.Setenv("STORE_TIMEOUT", "0s")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestRuntimeTestModeFlag(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(TestModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
