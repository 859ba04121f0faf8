package models

import "time"

// Per-mapping run statuses recorded in history.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Session-level statuses returned by the engine. SessionError is only
// produced by single-mapping sessions, where the one transfer's outcome is
// the session's outcome.
const (
	SessionCompleted = "completed"
	SessionSkipped   = "skipped"
	SessionError     = "error"
)

// Skip reasons reported on a skipped session.
const (
	ReasonInProgress = "sync already in progress"
	ReasonNasOffline = "nas_offline"
	ReasonNoMappings = "no_mappings"
)

// FolderMapping pairs a local source folder with a destination folder on the
// NAS. Mappings are iterated in id order, so creation order is the sync order.
type FolderMapping struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	SourcePath      string     `json:"source_path"`
	DestinationPath string     `json:"destination_path"`
	Enabled         bool       `json:"enabled"`
	DeleteSource    bool       `json:"delete_source"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus  string     `json:"last_sync_status,omitempty"`
	LastSyncMessage string     `json:"last_sync_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// SyncRun is the recorded outcome of one transfer attempt for one mapping.
// Runs are append-only and never mutated once written.
type SyncRun struct {
	ID               int64     `json:"id"`
	MappingID        int64     `json:"mapping_id"`
	MappingName      string    `json:"mapping_name,omitempty"`
	Status           string    `json:"status"`
	Message          string    `json:"message,omitempty"`
	FilesTransferred int64     `json:"files_transferred"`
	BytesTransferred int64     `json:"bytes_transferred"`
	DurationSeconds  float64   `json:"duration_seconds"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

// NasConfig holds the connection settings for the NAS.
type NasConfig struct {
	Hostname   string `json:"hostname"`
	SSHUser    string `json:"ssh_user"`
	SSHKeyPath string `json:"ssh_key_path"`
	SSHPort    int    `json:"ssh_port"`
}

// SchedulerConfig controls the periodic sync.
type SchedulerConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`
}

// Interval returns the configured interval as a duration.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}
