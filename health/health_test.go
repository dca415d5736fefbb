package health

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOAA-OWP/DMOD-sub000/component"
)

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"unix path", "open /var/lib/dmod/hydrofabric/conus.geojson: no such file", "open [PATH]: no such file"},
		{"nats url", "dial nats://bus.internal:4222 refused", "dial [URL] refused"},
		{"websocket url", "upgrade failed for wss://dmod.example.org/", "upgrade failed for [URL]"},
		{"ip address", "timeout reading from 10.1.2.3", "timeout reading from [IP]"},
		{"port", "listen tcp :3012: address in use", "listen tcp [PORT]: address in use"},
		{"credential", "auth failed token=abc123", "auth failed [REDACTED]"},
		{"plain", "queue full", "queue full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("dmod", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want == StatusHealthy, got.Healthy)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_CopiesSubStatuses(t *testing.T) {
	subs := []Status{NewHealthy("a", "")}
	got := Aggregate("dmod", subs)
	subs[0].Status = StatusUnhealthy
	assert.Equal(t, StatusHealthy, got.SubStatuses[0].Status)
}

func TestFromComponents(t *testing.T) {
	got := FromComponents("dmod", map[string]component.HealthStatus{
		"websocket": {Healthy: true, Uptime: time.Minute},
		"subset":    {Healthy: false, ErrorCount: 3, LastError: "load /data/hf.geojson failed"},
	})

	require.Len(t, got.SubStatuses, 2)
	assert.Equal(t, StatusUnhealthy, got.Status)
	assert.Equal(t, "subset", got.SubStatuses[0].Component)
	assert.Equal(t, "load [PATH] failed", got.SubStatuses[0].Message)
	assert.Equal(t, 3, got.SubStatuses[0].Metrics.ErrorCount)
	assert.Equal(t, "websocket", got.SubStatuses[1].Component)
	assert.Equal(t, time.Minute, got.SubStatuses[1].Metrics.Uptime)
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	track := m.Track("nats")

	track(true)
	s, ok := m.Get("nats")
	require.True(t, ok)
	assert.True(t, s.IsHealthy())

	track(false)
	s, _ = m.Get("nats")
	assert.True(t, s.IsDegraded())

	m.Update("catalog", NewUnhealthy("ignored", "watch closed"))
	all := m.All()
	require.Len(t, all, 2)
	assert.Equal(t, "catalog", all[0].Component)
	assert.False(t, all[0].Timestamp.IsZero())

	m.Remove("catalog")
	_, ok = m.Get("catalog")
	assert.False(t, ok)
}

func TestMonitor_Concurrent(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(healthy bool) {
			defer wg.Done()
			m.Track("nats")(healthy)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			_ = m.All()
		}()
	}
	wg.Wait()
	assert.Len(t, m.All(), 1)
}
