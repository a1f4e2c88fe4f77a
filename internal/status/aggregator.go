package status

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.temporal.io/sdk/log"

	"github.com/fossabot/gfw-data-api/internal/pipeline"
)

var (
	ErrUnknownAsset      = errors.New("unknown asset")
	ErrUnknownTask       = errors.New("unknown task")
	ErrTaskAssetMismatch = errors.New("task belongs to another asset")
	ErrInvalidStatus     = errors.New("invalid status")
)

// Tx is the view of the store inside one rollup transaction. LockAsset and
// LockVersion hold their row until the transaction ends, which serialises
// every rollup of the same asset.
type Tx interface {
	LockAsset(ctx context.Context, assetID string) (*Asset, error)
	FindTask(ctx context.Context, taskID string) (*Task, error)
	SaveTask(ctx context.Context, task *Task) error
	ListTaskStatuses(ctx context.Context, assetID string) ([]pipeline.Status, error)
	UpdateAsset(ctx context.Context, assetID, status string, entries []ChangeLog) error
	LockVersion(ctx context.Context, dataset, version string) (*Version, error)
	UpdateVersion(ctx context.Context, dataset, version, status string, entries []ChangeLog) error
}

// Store runs fn in a transaction, committing when fn returns nil.
// FindTask returns nil, nil and the Lock methods return ErrNotFound when
// the row does not exist.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	TaskAssetID(ctx context.Context, taskID string) (string, error)
}

// Aggregator applies pipeline events to tasks and rolls them up.
type Aggregator struct {
	store  Store
	logger log.Logger
	now    func() time.Time
}

// NewAggregator creates an Aggregator on store.
func NewAggregator(store Store, logger log.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Result is the state after one event was applied.
type Result struct {
	AssetStatus   string
	VersionStatus string
}

// OnEvent applies ev to the asset. An event with a task id creates or
// updates that task first. The asset is then recomputed from all of its
// tasks, and the version from its default asset.
func (a *Aggregator) OnEvent(ctx context.Context, assetID string, ev pipeline.Event) (Result, error) {
	if !ValidTaskStatus(ev.Status) {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidStatus, ev.Status)
	}
	if ev.DateTime.IsZero() {
		ev.DateTime = a.now()
	}
	entry := EntryFromEvent(ev)

	var res Result
	err := a.store.InTx(ctx, func(tx Tx) error {
		asset, err := tx.LockAsset(ctx, assetID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownAsset, assetID)
		}
		if err != nil {
			return err
		}

		summaryDetail := ev.Detail
		if ev.TaskID != "" {
			if err := a.applyTask(ctx, tx, assetID, ev, entry); err != nil {
				return err
			}
			summaryDetail = fmt.Sprintf("task %s: %s", ev.TaskID, ev.Status)
		}

		statuses, err := tx.ListTaskStatuses(ctx, assetID)
		if err != nil {
			return err
		}
		res.AssetStatus = AssetRollup(asset.Status, ev.Status, statuses)
		summary := ChangeLog{DateTime: ev.DateTime, Status: res.AssetStatus, Message: ev.Message, Detail: summaryDetail}
		if err := tx.UpdateAsset(ctx, assetID, res.AssetStatus, []ChangeLog{summary}); err != nil {
			return err
		}

		if !asset.IsDefault {
			return nil
		}
		version, err := tx.LockVersion(ctx, asset.Dataset, asset.Version)
		if err != nil {
			return fmt.Errorf("version %s/%s of asset %s: %w", asset.Dataset, asset.Version, assetID, err)
		}
		res.VersionStatus = VersionRollup(version.Status, res.AssetStatus)
		vsummary := ChangeLog{
			DateTime: ev.DateTime,
			Status:   res.VersionStatus,
			Message:  ev.Message,
			Detail:   fmt.Sprintf("asset %s: %s", assetID, res.AssetStatus),
		}
		return tx.UpdateVersion(ctx, asset.Dataset, asset.Version, res.VersionStatus, []ChangeLog{vsummary})
	})
	if err != nil {
		return Result{}, err
	}

	if a.logger != nil && res.AssetStatus != Pending {
		a.logger.Info("Asset status changed", "assetId", assetID, "status", res.AssetStatus, "versionStatus", res.VersionStatus)
	}
	return res, nil
}

func (a *Aggregator) applyTask(ctx context.Context, tx Tx, assetID string, ev pipeline.Event, entry ChangeLog) error {
	task, err := tx.FindTask(ctx, ev.TaskID)
	if err != nil {
		return err
	}
	if task == nil {
		task = &Task{TaskID: ev.TaskID, AssetID: assetID, CreatedOn: ev.DateTime}
	} else if task.AssetID != assetID {
		return fmt.Errorf("%w: task %s, asset %s", ErrTaskAssetMismatch, ev.TaskID, assetID)
	}
	task.Status = ev.Status
	task.ChangeLog = append(task.ChangeLog, entry)
	task.UpdatedOn = ev.DateTime
	return tx.SaveTask(ctx, task)
}

// OnTaskCallback applies change log entries reported for an existing task,
// in timestamp order.
func (a *Aggregator) OnTaskCallback(ctx context.Context, taskID string, entries []ChangeLog) (Result, error) {
	assetID, err := a.store.TaskAssetID(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if err != nil {
		return Result{}, err
	}

	sorted := append([]ChangeLog(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DateTime.Before(sorted[j].DateTime) })

	var res Result
	for _, e := range sorted {
		res, err = a.OnEvent(ctx, assetID, pipeline.Event{
			TaskID:   taskID,
			Status:   pipeline.Status(e.Status),
			Message:  e.Message,
			Detail:   e.Detail,
			DateTime: e.DateTime,
		})
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// Sink binds the aggregator to one asset as a pipeline.Sink.
func (a *Aggregator) Sink(assetID string) pipeline.Sink {
	return pipeline.SinkFunc(func(ctx context.Context, ev pipeline.Event) error {
		_, err := a.OnEvent(ctx, assetID, ev)
		return err
	})
}
