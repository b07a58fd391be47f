// Package types defines the records lazytask processes share through Redis.
package types

import "time"

// StatusRecord is the published state of one running lazytask process.
type StatusRecord struct {
	Instance   string `json:"instance"`
	PID        int    `json:"pid"`
	Command    string `json:"command"`
	Timestamp  int64  `json:"timestamp"`
	Generation uint64 `json:"generation"`
	Tasks      int    `json:"tasks"`
	Skipped    int    `json:"skipped,omitempty"`
	Source     string `json:"source"`
	Stale      bool   `json:"stale,omitempty"`
	Warning    string `json:"warning,omitempty"`

	SyncEnabled  bool   `json:"syncEnabled"`
	LastSync     int64  `json:"lastSync,omitempty"`
	LastSyncErr  string `json:"lastSyncError,omitempty"`
	SyncFailures int    `json:"syncFailures,omitempty"`

	CacheHits    uint64 `json:"cacheHits"`
	CacheMisses  uint64 `json:"cacheMisses"`
	CacheEntries int    `json:"cacheEntries"`
}

// SyncEvent records one sync attempt outcome.
type SyncEvent struct {
	Instance   string `json:"instance"`
	Timestamp  int64  `json:"timestamp"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	Generation uint64 `json:"generation"`
}

// InstanceStatus indicates whether a process is still publishing.
type InstanceStatus string

const (
	InstanceLive  InstanceStatus = "live"  // < 1 min
	InstanceStale InstanceStatus = "stale" // < 5 min
	InstanceGone  InstanceStatus = "gone"  // >= 5 min or no record
)

// SyncHealth summarises a process's sync state.
type SyncHealth string

const (
	SyncDisabled SyncHealth = "disabled"
	SyncHealthy  SyncHealth = "healthy"
	SyncDegraded SyncHealth = "degraded"
	SyncFailing  SyncHealth = "failing"
)

// DetermineSyncHealth classifies r's sync state. One failure is degraded;
// failureThreshold consecutive failures is failing.
func DetermineSyncHealth(r *StatusRecord, failureThreshold int) SyncHealth {
	if r == nil || !r.SyncEnabled {
		return SyncDisabled
	}
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	switch {
	case r.SyncFailures >= failureThreshold:
		return SyncFailing
	case r.SyncFailures > 0:
		return SyncDegraded
	default:
		return SyncHealthy
	}
}

// DetermineInstanceStatus reports how recently r was published.
func DetermineInstanceStatus(r *StatusRecord, now time.Time) InstanceStatus {
	if r == nil {
		return InstanceGone
	}
	age := now.Sub(time.UnixMilli(r.Timestamp))
	switch {
	case age < time.Minute:
		return InstanceLive
	case age < 5*time.Minute:
		return InstanceStale
	default:
		return InstanceGone
	}
}
