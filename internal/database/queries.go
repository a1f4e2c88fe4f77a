package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fossabot/gfw-data-api/internal/pipeline"
	"github.com/fossabot/gfw-data-api/internal/status"
)

// =============================================================================
// DATASET / VERSION QUERIES
// =============================================================================

// CreateDataset registers a dataset. Existing datasets are left untouched.
func (c *Client) CreateDataset(ctx context.Context, dataset string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO datasets (dataset) VALUES ($1)
		ON CONFLICT (dataset) DO NOTHING
	`, dataset)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", mapError(err))
	}
	return nil
}

// CreateVersion inserts a version of an existing dataset.
func (c *Client) CreateVersion(ctx context.Context, v *status.Version) error {
	sourceURI, err := marshalColumn(v.SourceURI)
	if err != nil {
		return err
	}
	st := v.Status
	if st == "" {
		st = status.Pending
	}

	err = c.db.QueryRowContext(ctx, `
		INSERT INTO versions (dataset, version, source_type, source_uri, status)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		RETURNING created_on, updated_on
	`, v.Dataset, v.Version, v.SourceType, string(sourceURI), st).Scan(&v.CreatedOn, &v.UpdatedOn)
	if err != nil {
		return fmt.Errorf("failed to create version %s/%s: %w", v.Dataset, v.Version, mapError(err))
	}
	v.Status = st
	return nil
}

// GetVersion retrieves a version.
func (c *Client) GetVersion(ctx context.Context, dataset, version string) (*status.Version, error) {
	return getVersion(ctx, c.db, dataset, version, false)
}

func getVersion(ctx context.Context, q querier, dataset, version string, forUpdate bool) (*status.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM versions WHERE dataset = $1 AND version = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	v, err := scanVersion(q.QueryRowContext(ctx, query, dataset, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %s/%s: %w", dataset, version, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return v, nil
}

// =============================================================================
// ASSET QUERIES
// =============================================================================

// CreateAsset inserts an asset. An empty AssetID is filled with a new UUID.
func (c *Client) CreateAsset(ctx context.Context, a *status.Asset) error {
	if a.AssetID == "" {
		a.AssetID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = status.Pending
	}
	options := []byte(a.CreationOptions)
	if len(options) == 0 {
		options = []byte("{}")
	}

	err := c.db.QueryRowContext(ctx, `
		INSERT INTO assets (asset_id, dataset, version, asset_type, asset_uri, is_default, is_managed, status, creation_options)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		RETURNING created_on, updated_on
	`, a.AssetID, a.Dataset, a.Version, a.AssetType, a.AssetURI, a.IsDefault, a.IsManaged, a.Status, string(options),
	).Scan(&a.CreatedOn, &a.UpdatedOn)
	if err != nil {
		return fmt.Errorf("failed to create asset: %w", mapError(err))
	}
	return nil
}

// GetAsset retrieves an asset by id.
func (c *Client) GetAsset(ctx context.Context, assetID string) (*status.Asset, error) {
	return getAsset(ctx, c.db, assetID, false)
}

func getAsset(ctx context.Context, q querier, assetID string, forUpdate bool) (*status.Asset, error) {
	if _, err := uuid.Parse(assetID); err != nil {
		return nil, fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	query := `SELECT ` + assetColumns + ` FROM assets WHERE asset_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanAsset(q.QueryRowContext(ctx, query, assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return a, nil
}

// =============================================================================
// TASK QUERIES
// =============================================================================

// GetTask retrieves a task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (*status.Task, error) {
	t, err := findTask(ctx, c.db, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return t, nil
}

// ListTasks returns the tasks of an asset ordered by creation time.
func (c *Client) ListTasks(ctx context.Context, assetID string) ([]*status.Task, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE asset_id = $1
		ORDER BY created_on, task_id
	`, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*status.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// TaskAssetID returns the owning asset of a task.
func (c *Client) TaskAssetID(ctx context.Context, taskID string) (string, error) {
	var assetID string
	err := c.db.QueryRowContext(ctx, `SELECT asset_id FROM tasks WHERE task_id = $1`, taskID).Scan(&assetID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get task asset: %w", err)
	}
	return assetID, nil
}

func findTask(ctx context.Context, q querier, taskID string) (*status.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func pipelineStatus(s string) pipeline.Status {
	return pipeline.Status(s)
}
