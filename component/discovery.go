package component

import (
	"time"
)

// Discoverable is the part of a service the manager can inspect without
// touching its lifecycle.
type Discoverable interface {
	Meta() Metadata
	Health() HealthStatus
}

// Metadata describes a service.
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "transport", "gateway", "provider", "metrics"
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus is a point-in-time health report.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}
