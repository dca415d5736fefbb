package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOAA-OWP/DMOD-sub000/component"
	"github.com/NOAA-OWP/DMOD-sub000/config"
	"github.com/NOAA-OWP/DMOD-sub000/health"
	"github.com/NOAA-OWP/DMOD-sub000/hydrofabric"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
)

const testConfigYAML = `
server:
  addr: 127.0.0.1:0
http:
  addr: 127.0.0.1:0
  hydrofabric_uid: hf-1
metrics:
  enabled: false
resources:
  nodes:
    - id: node-1
      cpus: 8
log:
  level: warn
`

func writeTestConfig(t *testing.T, dataDir string) string {
	t.Helper()
	dir := t.TempDir()
	body := testConfigYAML + "hydrofabric:\n  data_dir: " + dataDir + "\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func writeHydrofabric(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "hf-1")
	require.NoError(t, os.MkdirAll(root, 0o755))
	catchments := `{"type": "FeatureCollection", "features": [
		{"id": "cat-1", "properties": {"toid": "nex-2"}},
		{"id": "cat-3", "properties": {"toid": "nex-4"}}
	]}`
	nexuses := `{"type": "FeatureCollection", "features": [
		{"id": "nex-2", "properties": {"toid": "cat-3"}},
		{"id": "nex-4", "properties": {"toid": null}}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(root, hydrofabric.CatchmentFile), []byte(catchments), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, hydrofabric.NexusFile), []byte(nexuses), 0o644))
	return dir
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseFlags(t *testing.T) {
	t.Setenv("DMOD_LOG_FORMAT", "json")

	cli, err := parseFlags([]string{"--config", "x.yaml", "--log-level", "debug", "--shutdown-timeout", "3s"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "x.yaml", cli.ConfigPath)
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Equal(t, "json", cli.LogFormat)
	assert.Equal(t, 3*time.Second, cli.ShutdownTimeout)
	assert.False(t, cli.Validate)

	_, err = parseFlags([]string{"--no-such-flag"}, io.Discard)
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		cli     CLIConfig
		wantErr string
	}{
		{"defaults", CLIConfig{ShutdownTimeout: time.Second}, ""},
		{"version skips checks", CLIConfig{ShowVersion: true, LogLevel: "loud"}, ""},
		{"missing file", CLIConfig{ConfigPath: "/no/such/file.yaml", ShutdownTimeout: time.Second}, "config file not found"},
		{"bad level", CLIConfig{LogLevel: "loud", ShutdownTimeout: time.Second}, "invalid log level"},
		{"bad format", CLIConfig{LogFormat: "xml", ShutdownTimeout: time.Second}, "invalid log format"},
		{"zero timeout", CLIConfig{}, "shutdown timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(&tt.cli)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"dmod"`)

	buf.Reset()
	setupLogger(&buf, "info", "text").Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--version"}, &stdout, io.Discard))
	assert.Equal(t, "dmod version "+Version+"\n", stdout.String())
}

func TestRun_Validate(t *testing.T) {
	path := writeTestConfig(t, writeHydrofabric(t))

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "--validate", "--log-level", "info"}, &stdout, io.Discard)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Configuration is valid")
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  workers: 0\n"), 0o644))

	err := run(context.Background(), []string{"--config", path, "--validate"}, io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}

func TestBuildApp_WithoutNATS(t *testing.T) {
	cfg, err := loadConfig(writeTestConfig(t, writeHydrofabric(t)))
	require.NoError(t, err)

	a, err := buildApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, a.nats)

	states := a.manager.States()
	assert.Len(t, states, 2)
	assert.Equal(t, component.StateCreated, states["websocket"])
	assert.Equal(t, component.StateCreated, states["subset-gateway"])
	assert.False(t, a.status().IsHealthy())
}

func TestServe_StartsAndStops(t *testing.T) {
	cfg, err := loadConfig(writeTestConfig(t, writeHydrofabric(t)))
	require.NoError(t, err)
	a, err := buildApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a, 2*time.Second) }()

	require.Eventually(t, func() bool {
		for _, s := range a.manager.States() {
			if s != component.StateStarted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, a.status().IsHealthy())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	for name, s := range a.manager.States() {
		assert.Equal(t, component.StateStopped, s, name)
	}
}

func TestServe_MissingHydrofabricFailsStart(t *testing.T) {
	cfg, err := loadConfig(writeTestConfig(t, t.TempDir()))
	require.NoError(t, err)
	a, err := buildApp(context.Background(), cfg, discardLogger())
	require.NoError(t, err)

	err = serve(context.Background(), a, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hf-1")
}

func TestStaticNodes(t *testing.T) {
	nodes := staticNodes([]config.NodeConfig{{ID: "a", CPUs: 4}, {ID: "b", CPUs: 0}})
	snap, err := nodes.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].NodeID)
	assert.Equal(t, 4, snap[0].AvailableCPUs)
}

func TestTrackNATS(t *testing.T) {
	a := &app{monitor: health.NewMonitor(), registry: metric.NewMetricsRegistry()}
	track := a.trackNATS()
	gauge := a.registry.CoreMetrics().NATSConnected

	track(false)
	status, ok := a.monitor.Get("nats")
	require.True(t, ok)
	assert.True(t, status.IsDegraded())
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))

	track(true)
	status, _ = a.monitor.Get("nats")
	assert.True(t, status.IsHealthy())
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
}
