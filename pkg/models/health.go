package models

import "time"

// HealthState is the coarse result of a health probe.
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Unhealthy HealthState = "unhealthy"
)

// HealthStatus is what a connector reports from GetHealth.
type HealthStatus struct {
	Status      HealthState    `json:"status"`
	LastChecked time.Time      `json:"lastChecked"`
	Details     map[string]any `json:"details,omitempty"`
}
