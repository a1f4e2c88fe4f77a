package status

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fossabot/gfw-data-api/internal/pipeline"
)

// MemoryStore keeps datasets, versions, assets and tasks in memory. Writes
// made in a transaction become visible on commit; each asset and version
// has its own lock.
type MemoryStore struct {
	mu       sync.Mutex
	datasets map[string]bool
	versions map[string]*Version
	assets   map[string]*Asset
	tasks    map[string]*Task
	locks    map[string]*sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		datasets: make(map[string]bool),
		versions: make(map[string]*Version),
		assets:   make(map[string]*Asset),
		tasks:    make(map[string]*Task),
		locks:    make(map[string]*sync.Mutex),
	}
}

func versionKey(dataset, version string) string { return dataset + "/" + version }

// CreateDataset registers dataset. Existing datasets are left alone.
func (s *MemoryStore) CreateDataset(_ context.Context, dataset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[dataset] = true
	return nil
}

// CreateVersion stores v, failing with ErrAlreadyExists on a duplicate.
func (s *MemoryStore) CreateVersion(_ context.Context, v *Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.datasets[v.Dataset] {
		return fmt.Errorf("dataset %s: %w", v.Dataset, ErrNotFound)
	}
	key := versionKey(v.Dataset, v.Version)
	if _, ok := s.versions[key]; ok {
		return fmt.Errorf("version %s: %w", key, ErrAlreadyExists)
	}
	cp := cloneVersion(v)
	if cp.Status == "" {
		cp.Status = Pending
	}
	cp.CreatedOn, cp.UpdatedOn = now(), now()
	s.versions[key] = cp
	return nil
}

// GetVersion returns a copy of the version.
func (s *MemoryStore) GetVersion(_ context.Context, dataset, version string) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[versionKey(dataset, version)]
	if !ok {
		return nil, fmt.Errorf("version %s/%s: %w", dataset, version, ErrNotFound)
	}
	return cloneVersion(v), nil
}

// CreateAsset stores a. A version holds at most one default asset.
func (s *MemoryStore) CreateAsset(_ context.Context, a *Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[versionKey(a.Dataset, a.Version)]; !ok {
		return fmt.Errorf("version %s/%s: %w", a.Dataset, a.Version, ErrNotFound)
	}
	if _, ok := s.assets[a.AssetID]; ok {
		return fmt.Errorf("asset %s: %w", a.AssetID, ErrAlreadyExists)
	}
	for _, other := range s.assets {
		if other.Dataset == a.Dataset && other.Version == a.Version {
			if a.IsDefault && other.IsDefault {
				return fmt.Errorf("default asset of %s/%s: %w", a.Dataset, a.Version, ErrAlreadyExists)
			}
			if other.AssetType == a.AssetType && other.AssetURI == a.AssetURI {
				return fmt.Errorf("asset %s of %s/%s: %w", a.AssetType, a.Dataset, a.Version, ErrAlreadyExists)
			}
		}
	}
	cp := cloneAsset(a)
	if cp.Status == "" {
		cp.Status = Pending
	}
	cp.CreatedOn, cp.UpdatedOn = now(), now()
	s.assets[a.AssetID] = cp
	return nil
}

// GetAsset returns a copy of the asset.
func (s *MemoryStore) GetAsset(_ context.Context, assetID string) (*Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	return cloneAsset(a), nil
}

// GetTask returns a copy of the task.
func (s *MemoryStore) GetTask(_ context.Context, taskID string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return cloneTask(t), nil
}

// ListTasks returns copies of the asset's tasks ordered by creation time.
func (s *MemoryStore) ListTasks(_ context.Context, assetID string) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Task
	for _, t := range s.tasks {
		if t.AssetID == assetID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].CreatedOn.Before(out[j].CreatedOn)
	})
	return out, nil
}

// TaskAssetID returns the owning asset of a task.
func (s *MemoryStore) TaskAssetID(_ context.Context, taskID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return "", fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return t.AssetID, nil
}

// InTx runs fn with staged writes, applying them only if fn succeeds.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx := &memTx{store: s, tasks: make(map[string]*Task)}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type assetUpdate struct {
	status  string
	entries []ChangeLog
}

type memTx struct {
	store    *MemoryStore
	held     []*sync.Mutex
	tasks    map[string]*Task
	assets   map[string]assetUpdate
	versions map[string]assetUpdate
}

func (tx *memTx) lock(key string) {
	s := tx.store
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	tx.held = append(tx.held, m)
}

func (tx *memTx) release() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.held[i].Unlock()
	}
	tx.held = nil
}

func (tx *memTx) LockAsset(_ context.Context, assetID string) (*Asset, error) {
	if _, err := tx.store.GetAsset(context.Background(), assetID); err != nil {
		return nil, err
	}
	tx.lock("asset/" + assetID)
	return tx.store.GetAsset(context.Background(), assetID)
}

func (tx *memTx) FindTask(_ context.Context, taskID string) (*Task, error) {
	if t, ok := tx.tasks[taskID]; ok {
		return cloneTask(t), nil
	}
	t, err := tx.store.GetTask(context.Background(), taskID)
	if err != nil {
		return nil, nil
	}
	return t, nil
}

func (tx *memTx) SaveTask(_ context.Context, task *Task) error {
	tx.tasks[task.TaskID] = cloneTask(task)
	return nil
}

func (tx *memTx) ListTaskStatuses(_ context.Context, assetID string) ([]pipeline.Status, error) {
	s := tx.store
	s.mu.Lock()
	merged := make(map[string]pipeline.Status)
	for id, t := range s.tasks {
		if t.AssetID == assetID {
			merged[id] = t.Status
		}
	}
	s.mu.Unlock()
	for id, t := range tx.tasks {
		if t.AssetID == assetID {
			merged[id] = t.Status
		}
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]pipeline.Status, len(ids))
	for i, id := range ids {
		out[i] = merged[id]
	}
	return out, nil
}

func (tx *memTx) UpdateAsset(_ context.Context, assetID, status string, entries []ChangeLog) error {
	if tx.assets == nil {
		tx.assets = make(map[string]assetUpdate)
	}
	u := tx.assets[assetID]
	u.status = status
	u.entries = append(u.entries, entries...)
	tx.assets[assetID] = u
	return nil
}

func (tx *memTx) LockVersion(_ context.Context, dataset, version string) (*Version, error) {
	if _, err := tx.store.GetVersion(context.Background(), dataset, version); err != nil {
		return nil, err
	}
	tx.lock("version/" + versionKey(dataset, version))
	return tx.store.GetVersion(context.Background(), dataset, version)
}

func (tx *memTx) UpdateVersion(_ context.Context, dataset, version, status string, entries []ChangeLog) error {
	if tx.versions == nil {
		tx.versions = make(map[string]assetUpdate)
	}
	key := versionKey(dataset, version)
	u := tx.versions[key]
	u.status = status
	u.entries = append(u.entries, entries...)
	tx.versions[key] = u
	return nil
}

func (tx *memTx) commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	for id, t := range tx.tasks {
		s.tasks[id] = t
	}
	for id, u := range tx.assets {
		if a, ok := s.assets[id]; ok {
			a.Status = u.status
			a.ChangeLog = append(a.ChangeLog, u.entries...)
			a.UpdatedOn = ts
		}
	}
	for key, u := range tx.versions {
		if v, ok := s.versions[key]; ok {
			v.Status = u.status
			v.ChangeLog = append(v.ChangeLog, u.entries...)
			v.UpdatedOn = ts
		}
	}
}

func now() time.Time { return time.Now().UTC() }

func cloneTask(t *Task) *Task {
	cp := *t
	cp.ChangeLog = append([]ChangeLog(nil), t.ChangeLog...)
	return &cp
}

func cloneAsset(a *Asset) *Asset {
	cp := *a
	cp.ChangeLog = append([]ChangeLog(nil), a.ChangeLog...)
	cp.CreationOptions = append([]byte(nil), a.CreationOptions...)
	return &cp
}

func cloneVersion(v *Version) *Version {
	cp := *v
	cp.SourceURI = append([]string(nil), v.SourceURI...)
	cp.ChangeLog = append([]ChangeLog(nil), v.ChangeLog...)
	return &cp
}
