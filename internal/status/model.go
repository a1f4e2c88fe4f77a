// Package status persists per-job task status and rolls it up into asset
// and version status.
package status

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/fossabot/gfw-data-api/internal/pipeline"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Asset and version status values.
const (
	Pending = "pending"
	Saved   = "saved"
	Failed  = "failed"
)

// ChangeLog is one entry of an append-only change log.
type ChangeLog struct {
	DateTime time.Time `json:"date_time"`
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Detail   string    `json:"detail,omitempty"`
}

// Task tracks one external job.
type Task struct {
	TaskID    string          `json:"task_id"`
	AssetID   string          `json:"asset_id"`
	Status    pipeline.Status `json:"status"`
	ChangeLog []ChangeLog     `json:"change_log"`
	CreatedOn time.Time       `json:"created_on"`
	UpdatedOn time.Time       `json:"updated_on"`
}

// Asset is one materialisation of a version.
type Asset struct {
	AssetID         string          `json:"asset_id"`
	Dataset         string          `json:"dataset"`
	Version         string          `json:"version"`
	AssetType       string          `json:"asset_type"`
	AssetURI        string          `json:"asset_uri"`
	IsDefault       bool            `json:"is_default"`
	IsManaged       bool            `json:"is_managed"`
	Status          string          `json:"status"`
	CreationOptions json.RawMessage `json:"creation_options,omitempty"`
	ChangeLog       []ChangeLog     `json:"change_log"`
	CreatedOn       time.Time       `json:"created_on"`
	UpdatedOn       time.Time       `json:"updated_on"`
}

// Version is one release of a dataset.
type Version struct {
	Dataset    string      `json:"dataset"`
	Version    string      `json:"version"`
	SourceType string      `json:"source_type"`
	SourceURI  []string    `json:"source_uri"`
	Status     string      `json:"status"`
	ChangeLog  []ChangeLog `json:"change_log"`
	CreatedOn  time.Time   `json:"created_on"`
	UpdatedOn  time.Time   `json:"updated_on"`
}

// EntryFromEvent converts a pipeline event to a change log entry.
func EntryFromEvent(ev pipeline.Event) ChangeLog {
	return ChangeLog{
		DateTime: ev.DateTime,
		Status:   string(ev.Status),
		Message:  ev.Message,
		Detail:   ev.Detail,
	}
}

// ValidTaskStatus reports whether s is a task status.
func ValidTaskStatus(s pipeline.Status) bool {
	switch s {
	case pipeline.StatusPending, pipeline.StatusSuccess, pipeline.StatusFailed:
		return true
	}
	return false
}
