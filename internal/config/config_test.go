package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pialert/pialert/internal/domain"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalJSON = `{
  "telegram": {"bot_token": "tok", "chat_id": "42"},
  "paths": {
    "down_alert": {"logs": "/var/log/pialert", "state": "/var/lib/pialert/down_alert_state.json"},
    "monitor":    {"logs": "/var/log/pialert", "state": "/var/lib/pialert/monitor_state.json"}
  }
}`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", minimalJSON))
	require.NoError(t, err)

	assert.Equal(t, []string{"1.1.1.1:53", "8.8.8.8:53"}, cfg.DownAlert.Hosts)
	assert.Equal(t, "pihole-FTL", cfg.DownAlert.Service)
	assert.Equal(t, 1, cfg.DownAlert.RequiredConsecutive)

	cpu := cfg.Monitor.Thresholds["cpu"]
	assert.Equal(t, 85.0, cpu.Critical)
	assert.Equal(t, 75.0, cpu.Warn)
	assert.Equal(t, domain.DirectionAbove, cpu.Direction)
	assert.Equal(t, 5.0, cpu.HysteresisMargin)

	assert.Equal(t, 75.0, cfg.Monitor.Thresholds["temp"].Critical)
	assert.Equal(t, 3, cfg.Notify.Attempts)
	assert.Equal(t, 5, cfg.Supervisor.RestartIntervalSec)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", `
telegram:
  bot_token: tok
  chat_id: "42"
paths:
  down_alert: {logs: /tmp/logs, state: /tmp/da.json}
  monitor: {logs: /tmp/logs, state: /tmp/mon.json}
down_alert:
  required_consecutive_samples: 3
monitor:
  thresholds:
    cpu:
      critical_threshold: 95
`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.DownAlert.RequiredConsecutive)
	assert.Equal(t, 95.0, cfg.Monitor.Thresholds["cpu"].Critical)
	// unrelated defaults survive a partial override
	assert.Equal(t, 75.0, cfg.Monitor.Thresholds["cpu"].Warn)
}

func TestLoad_MissingTokenIsFatal(t *testing.T) {
	_, err := Load(writeConfig(t, "config.json", `{
  "paths": {
    "down_alert": {"logs": "/tmp/l", "state": "/tmp/s.json"},
    "monitor":    {"logs": "/tmp/l", "state": "/tmp/s2.json"}
  }
}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "bot_token")
}

func TestLoad_DryRunNeedsNoCredentials(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", `{
  "settings": {"dry_run": true},
  "paths": {
    "down_alert": {"logs": "/tmp/l", "state": "/tmp/s.json"},
    "monitor":    {"logs": "/tmp/l", "state": "/tmp/s2.json"}
  }
}`))
	require.NoError(t, err)
	assert.True(t, cfg.Settings.DryRun)
}

func TestLoad_BadDirectionIsFatal(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", `
telegram: {bot_token: tok, chat_id: "42"}
paths:
  down_alert: {logs: /tmp/l, state: /tmp/s.json}
  monitor: {logs: /tmp/l, state: /tmp/s2.json}
monitor:
  thresholds:
    cpu: {direction: sideways}
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoad_InvertedThresholdsAreFatal(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", `
telegram: {bot_token: tok, chat_id: "42"}
paths:
  down_alert: {logs: /tmp/l, state: /tmp/s.json}
  monitor: {logs: /tmp/l, state: /tmp/s2.json}
monitor:
  thresholds:
    cpu: {warn_threshold: 95, critical_threshold: 85}
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "DEGRADED unreachable")

	// same inversion is legitimate for a below-direction check
	cfg, err := Load(writeConfig(t, "ok.yaml", `
telegram: {bot_token: tok, chat_id: "42"}
paths:
  down_alert: {logs: /tmp/l, state: /tmp/s.json}
  monitor: {logs: /tmp/l, state: /tmp/s2.json}
monitor:
  thresholds:
    free_disk: {warn_threshold: 20, critical_threshold: 10, direction: below}
`))
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionBelow, cfg.Monitor.Thresholds["free_disk"].Direction)
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestTargets_DockerTestDropsHostOnlyChecks(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", minimalJSON))
	require.NoError(t, err)

	da := cfg.DownAlertTargets()
	require.Len(t, da, 2)
	assert.Equal(t, "internet", da[0].Name)
	assert.Equal(t, domain.KindConnectivity, da[0].Kind)
	assert.Equal(t, "pihole", da[1].Name)
	assert.Equal(t, domain.KindService, da[1].Kind)

	mon := cfg.MonitorTargets()
	names := make([]string, 0, len(mon))
	for _, tg := range mon {
		names = append(names, tg.Name)
	}
	assert.Equal(t, []string{"cpu", "ram", "disk", "temp"}, names)

	cfg.Settings.DockerTest = true
	da = cfg.DownAlertTargets()
	require.Len(t, da, 1)
	assert.Equal(t, "internet", da[0].Name)

	mon = cfg.MonitorTargets()
	names = names[:0]
	for _, tg := range mon {
		names = append(names, tg.Name)
	}
	assert.Equal(t, []string{"cpu", "ram", "disk"}, names)
}

func TestTargets_CarryConfiguredThresholds(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", `
telegram: {bot_token: tok, chat_id: "42"}
paths:
  down_alert: {logs: /tmp/l, state: /tmp/s.json}
  monitor: {logs: /tmp/l, state: /tmp/s2.json}
monitor:
  thresholds:
    ram:
      warn_threshold: 70
      critical_threshold: 80
      hysteresis_margin: 3
      required_consecutive_samples: 2
`))
	require.NoError(t, err)

	var ram domain.Target
	var found bool
	for _, tg := range cfg.MonitorTargets() {
		if tg.Name == "ram" {
			ram, found = tg, true
			break
		}
	}
	require.True(t, found)
	assert.Equal(t, 70.0, ram.Thresholds.Warn)
	assert.Equal(t, 80.0, ram.Thresholds.Critical)
	assert.Equal(t, 3.0, ram.Thresholds.HysteresisMargin)
	assert.Equal(t, 2, ram.Thresholds.RequiredConsecutive)
}
