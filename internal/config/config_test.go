package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load("/nonexistent/path.hcl")
	require.NoError(t, err)
	require.Equal(t, Default().Table, cfg.Table)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	os.Clearenv()
	defer os.Clearenv()
	os.Setenv("MOLTPOKER_BIND_ADDRESS", "0.0.0.0:9000")
	os.Setenv("MOLTPOKER_ACTION_TIMEOUT_MS", "15000")
	os.Setenv("MOLTPOKER_ADMIN_ALLOW_LIST", "alice,bob")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.Server.BindAddress)
	require.Equal(t, 15000, cfg.Table.ActionTimeoutMs)
	require.Equal(t, []string{"alice", "bob"}, cfg.Server.AdminAllowList)
}

func TestValidateRejectsBadBlinds(t *testing.T) {
	cfg := Default()
	cfg.Table.BigBlind = cfg.Table.SmallBlind
	require.Error(t, cfg.Validate())
}
