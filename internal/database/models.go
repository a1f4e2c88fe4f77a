package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fossabot/gfw-data-api/internal/status"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	versionColumns = `dataset, version, source_type, source_uri, status, change_log, created_on, updated_on`
	assetColumns   = `asset_id, dataset, version, asset_type, asset_uri, is_default, is_managed, status,
		creation_options, change_log, created_on, updated_on`
	taskColumns = `task_id, asset_id, status, change_log, created_on, updated_on`
)

func scanVersion(row rowScanner) (*status.Version, error) {
	var (
		v         status.Version
		sourceURI []byte
		changeLog []byte
	)
	if err := row.Scan(&v.Dataset, &v.Version, &v.SourceType, &sourceURI, &v.Status, &changeLog, &v.CreatedOn, &v.UpdatedOn); err != nil {
		return nil, err
	}
	if err := unmarshalColumn("source_uri", sourceURI, &v.SourceURI); err != nil {
		return nil, err
	}
	if err := unmarshalColumn("change_log", changeLog, &v.ChangeLog); err != nil {
		return nil, err
	}
	return &v, nil
}

func scanAsset(row rowScanner) (*status.Asset, error) {
	var (
		a         status.Asset
		options   []byte
		changeLog []byte
	)
	if err := row.Scan(&a.AssetID, &a.Dataset, &a.Version, &a.AssetType, &a.AssetURI, &a.IsDefault, &a.IsManaged,
		&a.Status, &options, &changeLog, &a.CreatedOn, &a.UpdatedOn); err != nil {
		return nil, err
	}
	if len(options) > 0 {
		a.CreationOptions = json.RawMessage(append([]byte(nil), options...))
	}
	if err := unmarshalColumn("change_log", changeLog, &a.ChangeLog); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanTask(row rowScanner) (*status.Task, error) {
	var (
		t         status.Task
		taskState string
		changeLog []byte
	)
	if err := row.Scan(&t.TaskID, &t.AssetID, &taskState, &changeLog, &t.CreatedOn, &t.UpdatedOn); err != nil {
		return nil, err
	}
	t.Status = pipelineStatus(taskState)
	if err := unmarshalColumn("change_log", changeLog, &t.ChangeLog); err != nil {
		return nil, err
	}
	return &t, nil
}

func unmarshalColumn(name string, data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

func marshalColumn(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode column: %w", err)
	}
	if string(b) == "null" {
		return []byte("[]"), nil
	}
	return b, nil
}
