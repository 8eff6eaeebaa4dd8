package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/carbonledger/internal/ledger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LEDGER_ROOT_AUTHORITY", "0xROOT")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.LedgerStore)
	assert.Equal(t, uint32(10000), cfg.LedgerMaxIssuePerCall)
	assert.True(t, cfg.AuditAsync)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, "*/30 * * * *", cfg.IntegrityCron)
	assert.False(t, cfg.IsProduction())

	lc, err := cfg.LedgerConfig()
	require.NoError(t, err)
	assert.Equal(t, ledger.Principal("0xroot"), lc.Root)
	assert.Equal(t, uint32(10000), lc.Policy.MaxIssuePerCall)
}

func TestLoadConfigRejectsMissingRoot(t *testing.T) {
	t.Setenv("LEDGER_ROOT_AUTHORITY", "")
	t.Setenv("LEDGER_GENESIS_FILE", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsUnknownStore(t *testing.T) {
	t.Setenv("LEDGER_ROOT_AUTHORITY", "0xroot")
	t.Setenv("LEDGER_STORE", "sqlite")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsMemoryStoreInProduction(t *testing.T) {
	t.Setenv("LEDGER_ROOT_AUTHORITY", "0xroot")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LEDGER_STORE", "memory")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("LEDGER_STORE", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.LedgerStore)
	assert.True(t, cfg.IsProduction())

	t.Setenv("APP_ENV", "development")
	t.Setenv("LEDGER_STORE", "memory")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.LedgerStore)
}

func TestGenesisFileOverridesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yml")
	require.NoError(t, os.WriteFile(path, []byte("root_authority: \"0xGENESIS\"\nmax_issue_per_call: 250\n"), 0o600))
	t.Setenv("LEDGER_ROOT_AUTHORITY", "0xenv")
	t.Setenv("LEDGER_GENESIS_FILE", path)
	t.Setenv("LEDGER_STORE", "Postgres")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.LedgerStore)

	lc, err := cfg.LedgerConfig()
	require.NoError(t, err)
	assert.Equal(t, ledger.Principal("0xgenesis"), lc.Root)
	assert.Equal(t, uint32(250), lc.Policy.MaxIssuePerCall)
}

func TestGenesisFileErrors(t *testing.T) {
	cfg := &Config{LedgerGenesisFile: filepath.Join(t.TempDir(), "missing.yml")}
	_, err := cfg.LedgerConfig()
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("root_authority: [unterminated"), 0o600))
	cfg = &Config{LedgerGenesisFile: path}
	_, err = cfg.LedgerConfig()
	require.Error(t, err)

	cfg = &Config{}
	_, err = cfg.LedgerConfig()
	require.Error(t, err)
}
