// Package api serves the asset creation endpoint and the task status
// callback used by batch jobs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.temporal.io/sdk/log"

	"github.com/fossabot/gfw-data-api/internal/assets"
	"github.com/fossabot/gfw-data-api/internal/jobs"
	"github.com/fossabot/gfw-data-api/internal/status"
)

const maxBodyBytes = 1 << 20

// AssetService creates assets and reads their state.
type AssetService interface {
	CreateAsset(ctx context.Context, in assets.CreateInput) (*status.Asset, error)
	GetAsset(ctx context.Context, assetID string) (*status.Asset, error)
	ListTasks(ctx context.Context, assetID string) ([]*status.Task, error)
	GetTask(ctx context.Context, taskID string) (*status.Task, error)
	GetVersion(ctx context.Context, dataset, version string) (*status.Version, error)
}

// TaskUpdater applies status reports of running jobs.
type TaskUpdater interface {
	OnTaskCallback(ctx context.Context, taskID string, entries []status.ChangeLog) (status.Result, error)
}

// Server holds the HTTP handlers.
type Server struct {
	assets AssetService
	tasks  TaskUpdater
	logger log.Logger
}

// NewServer creates a Server.
func NewServer(assets AssetService, tasks TaskUpdater, logger log.Logger) *Server {
	return &Server{assets: assets, tasks: tasks, logger: logger}
}

// Handler returns the routes of the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /datasets/{dataset}/{version}", s.getVersion)
	mux.HandleFunc("POST /datasets/{dataset}/{version}/assets", s.createAsset)
	mux.HandleFunc("GET /assets/{assetId}", s.getAsset)
	mux.HandleFunc("GET /assets/{assetId}/tasks", s.listTasks)
	mux.HandleFunc("GET /tasks/{taskId}", s.getTask)
	mux.HandleFunc("PATCH /tasks/{taskId}", s.updateTask)
	return mux
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) createAsset(w http.ResponseWriter, r *http.Request) {
	var in assets.CreateInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	in.Dataset = r.PathValue("dataset")
	in.Version = r.PathValue("version")

	asset, err := s.assets.CreateAsset(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, http.StatusAccepted, asset)
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	v, err := s.assets.GetVersion(r.Context(), r.PathValue("dataset"), r.PathValue("version"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, v)
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	a, err := s.assets.GetAsset(r.Context(), r.PathValue("assetId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.assets.ListTasks(r.Context(), r.PathValue("assetId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*status.Task{}
	}
	writeData(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.assets.GetTask(r.Context(), r.PathValue("taskId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

// taskUpdate is the body jobs send to report progress.
type taskUpdate struct {
	ChangeLog []status.ChangeLog `json:"change_log"`
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var body taskUpdate
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if len(body.ChangeLog) == 0 {
		s.writeError(w, fmt.Errorf("%w: change_log must not be empty", errBadRequest))
		return
	}

	taskID := r.PathValue("taskId")
	if _, err := s.tasks.OnTaskCallback(r.Context(), taskID, body.ChangeLog); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := s.assets.GetTask(r.Context(), taskID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, task)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// =============================================================================
// RESPONSES
// =============================================================================

var errBadRequest = errors.New("bad request")

type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Status: "success", Data: data})
}

func writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError && s.logger != nil {
		s.logger.Error("Request failed", "error", err)
	}
	writeJSON(w, code, envelope{Status: "failed", Message: err.Error()})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, assets.ErrInvalidRequest),
		errors.Is(err, jobs.ErrInvalidSource),
		errors.Is(err, status.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, status.ErrNotFound),
		errors.Is(err, status.ErrUnknownTask),
		errors.Is(err, status.ErrUnknownAsset):
		return http.StatusNotFound
	case errors.Is(err, status.ErrAlreadyExists),
		errors.Is(err, status.ErrTaskAssetMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
