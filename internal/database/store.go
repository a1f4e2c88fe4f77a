package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fossabot/gfw-data-api/internal/pipeline"
	"github.com/fossabot/gfw-data-api/internal/status"
)

var _ status.Store = (*Client)(nil)

// InTx runs a status rollup in one transaction. Asset and version rows are
// locked FOR UPDATE, so rollups of the same asset run one at a time.
func (c *Client) InTx(ctx context.Context, fn func(status.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollup: %w", err)
	}
	if err := fn(&rollupTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback rollup: %v (after: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollup: %w", mapError(err))
	}
	return nil
}

type rollupTx struct {
	tx *sql.Tx
}

func (r *rollupTx) LockAsset(ctx context.Context, assetID string) (*status.Asset, error) {
	return getAsset(ctx, r.tx, assetID, true)
}

func (r *rollupTx) FindTask(ctx context.Context, taskID string) (*status.Task, error) {
	return findTask(ctx, r.tx, taskID)
}

func (r *rollupTx) SaveTask(ctx context.Context, task *status.Task) error {
	changeLog, err := marshalColumn(task.ChangeLog)
	if err != nil {
		return err
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO tasks (task_id, asset_id, status, change_log)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status,
			change_log = EXCLUDED.change_log,
			updated_on = NOW()
	`, task.TaskID, task.AssetID, string(task.Status), string(changeLog))
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.TaskID, mapError(err))
	}
	return nil
}

func (r *rollupTx) ListTaskStatuses(ctx context.Context, assetID string) ([]pipeline.Status, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT status FROM tasks WHERE asset_id = $1 ORDER BY task_id`, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task statuses: %w", err)
	}
	defer rows.Close()

	var statuses []pipeline.Status
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan task status: %w", err)
		}
		statuses = append(statuses, pipelineStatus(s))
	}
	return statuses, rows.Err()
}

func (r *rollupTx) UpdateAsset(ctx context.Context, assetID, st string, entries []status.ChangeLog) error {
	changeLog, err := marshalColumn(entries)
	if err != nil {
		return err
	}
	_, err = r.tx.ExecContext(ctx, `
		UPDATE assets
		SET status = $2, change_log = change_log || $3::jsonb, updated_on = NOW()
		WHERE asset_id = $1
	`, assetID, st, string(changeLog))
	if err != nil {
		return fmt.Errorf("failed to update asset %s: %w", assetID, err)
	}
	return nil
}

func (r *rollupTx) LockVersion(ctx context.Context, dataset, version string) (*status.Version, error) {
	return getVersion(ctx, r.tx, dataset, version, true)
}

func (r *rollupTx) UpdateVersion(ctx context.Context, dataset, version, st string, entries []status.ChangeLog) error {
	changeLog, err := marshalColumn(entries)
	if err != nil {
		return err
	}
	_, err = r.tx.ExecContext(ctx, `
		UPDATE versions
		SET status = $3, change_log = change_log || $4::jsonb, updated_on = NOW()
		WHERE dataset = $1 AND version = $2
	`, dataset, version, st, string(changeLog))
	if err != nil {
		return fmt.Errorf("failed to update version %s/%s: %w", dataset, version, err)
	}
	return nil
}
