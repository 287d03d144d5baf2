package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.EqualValues(t, 180000, cfg.Tuning.GPSSilenceMS)
	assert.EqualValues(t, 43200000, cfg.Tuning.StaleTripMS)
	assert.EqualValues(t, 120000, cfg.Tuning.ParkedConfirmMS)
	assert.InDelta(t, 0.1, cfg.Tuning.MinDistanceKm, 1e-9)
	assert.EqualValues(t, 86400000, cfg.Tuning.EventRetentionMS)
	assert.Equal(t, 2000, cfg.Tuning.MaxWaypoints)
	assert.EqualValues(t, 5000, cfg.Tuning.DispatcherIntervalMS)
	assert.EqualValues(t, 120000, cfg.Tuning.ReaperIntervalMS)
	assert.EqualValues(t, 3600000, cfg.Tuning.RetentionIntervalMS)
	assert.False(t, cfg.Collaborators.AutoEnrich)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Tuning, cfg.Tuning)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("tuning:\n  max_waypoints: 500\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Tuning.MaxWaypoints)
	assert.EqualValues(t, 180000, cfg.Tuning.GPSSilenceMS)
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("tuning:\n  max_waypoints: 500\n"), 0o644))

	t.Setenv("MAX_WAYPOINTS", "900")
	t.Setenv("AUTO_ENRICH_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.Tuning.MaxWaypoints)
	assert.True(t, cfg.Collaborators.AutoEnrich)
}

func TestDurationHelpersConvertMillisToDuration(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "3m0s", cfg.Tuning.GPSSilence().String())
	assert.Equal(t, "12h0m0s", cfg.Tuning.StaleTrip().String())
}
