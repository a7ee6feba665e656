package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/concurrency"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/engine"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/github"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/labels"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/provision"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/runstore"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/store"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/tracker"
)

// TriggerAPI marks runs started over HTTP.
const TriggerAPI = "api"

// Engine is the part of engine.Engine the HTTP surface uses.
type Engine interface {
	FullSync(ctx context.Context, trigger string) (*runstore.Run, error)
	SyncAllProjects(ctx context.Context, trigger string) (*runstore.Run, error)
	CreateRepository(ctx context.Context, projectID, trigger string) (*models.RepoRef, *runstore.Run, error)
	ReseedLabels(ctx context.Context, projectID, trigger string) (int, *runstore.Run, error)
	AddEntity(ctx context.Context, e *models.Entity) (*models.Entity, error)
	GetEntity(ctx context.Context, kind models.Kind, id string) (*models.Entity, error)
	ListEntities(ctx context.Context, kind models.Kind) ([]*models.Entity, error)
	SetEntityState(ctx context.Context, kind models.Kind, id string, change engine.StateChange) (tracker.DispatchReport, error)
	LinkEntity(ctx context.Context, kind models.Kind, id string) (*models.RemoteRef, error)
	Runs() *runstore.Store
	Running() []concurrency.Lease
	LastFullSync() time.Time
}

// Handler serves the sync control API.
type Handler struct {
	engine  Engine
	service string
	log     zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(e Engine, service string, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:  e,
		service: service,
		log:     logger.With().Str("component", "web").Logger(),
	}
}

// RegisterRoutes registers every API route on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/", h.handleInfo).Methods("GET")

	r.HandleFunc("/sync", h.handleFullSync).Methods("POST")
	r.HandleFunc("/projects/sync", h.handleProjectSync).Methods("POST")
	r.HandleFunc("/projects/{id}/repository", h.handleCreateRepository).Methods("POST")
	r.HandleFunc("/projects/{id}/labels", h.handleReseedLabels).Methods("POST")

	r.HandleFunc("/entities", h.handleListEntities).Methods("GET")
	r.HandleFunc("/entities", h.handleAddEntity).Methods("POST")
	r.HandleFunc("/entities/{kind}/{id}", h.handleGetEntity).Methods("GET")
	r.HandleFunc("/entities/{kind}/{id}", h.handleSetState).Methods("PATCH")
	r.HandleFunc("/entities/{kind}/{id}/link", h.handleLinkEntity).Methods("POST")

	r.HandleFunc("/runs", h.handleListRuns).Methods("GET")
	r.HandleFunc("/runs/{id}", h.handleRunDetail).Methods("GET")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type infoResponse struct {
	Service      string              `json:"service"`
	Status       string              `json:"status"`
	LastFullSync *time.Time          `json:"last_full_sync,omitempty"`
	Running      []concurrency.Lease `json:"running"`
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	resp := infoResponse{
		Service: h.service,
		Status:  "running",
		Running: h.engine.Running(),
	}
	if last := h.engine.LastFullSync(); !last.IsZero() {
		resp.LastFullSync = &last
	}
	if resp.Running == nil {
		resp.Running = []concurrency.Lease{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Batch runs are detached from the request so a client disconnect does not
// abort a pass halfway.
func (h *Handler) handleFullSync(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.FullSync(context.WithoutCancel(r.Context()), TriggerAPI)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, runStatusCode(run), run)
}

func (h *Handler) handleProjectSync(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.SyncAllProjects(context.WithoutCancel(r.Context()), TriggerAPI)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, runStatusCode(run), run)
}

type repositoryResponse struct {
	Repository *models.RepoRef `json:"repository,omitempty"`
	Run        *runstore.Run   `json:"run,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func (h *Handler) handleCreateRepository(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	ref, run, err := h.engine.CreateRepository(r.Context(), projectID, TriggerAPI)
	if err != nil {
		var seedErr *provision.SeedError
		if errors.As(err, &seedErr) {
			writeJSON(w, http.StatusMultiStatus, repositoryResponse{Repository: ref, Run: run, Error: err.Error()})
			return
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, repositoryResponse{Repository: ref, Run: run})
}

func (h *Handler) handleReseedLabels(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	n, run, err := h.engine.ReseedLabels(r.Context(), projectID, TriggerAPI)
	if err != nil && n == 0 {
		h.writeError(w, err)
		return
	}
	resp := map[string]any{"labels": n, "run": run}
	code := http.StatusOK
	if err != nil {
		resp["error"] = err.Error()
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, resp)
}

func (h *Handler) handleListEntities(w http.ResponseWriter, r *http.Request) {
	var kind models.Kind
	if q := r.URL.Query().Get("kind"); q != "" {
		k, err := models.ParseKind(q)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = k
	}
	list, err := h.engine.ListEntities(r.Context(), kind)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []*models.Entity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": list})
}

type addEntityRequest struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Component   string `json:"component"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
}

func (h *Handler) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	var req addEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	ent, err := h.engine.AddEntity(r.Context(), &models.Entity{
		Kind:        kind,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Component:   req.Component,
		Status:      req.Status,
		Priority:    req.Priority,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ent)
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}
	ent, err := h.engine.GetEntity(r.Context(), kind, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (h *Handler) handleSetState(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}
	var change engine.StateChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	report, err := h.engine.SetEntityState(r.Context(), kind, id, change)
	if err != nil {
		h.writeError(w, err)
		return
	}
	code := http.StatusOK
	if report.Failed > 0 {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, report)
}

func (h *Handler) handleLinkEntity(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}
	ref, err := h.engine.LinkEntity(r.Context(), kind, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.engine.Runs().List()
	if runs == nil {
		runs = []*runstore.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	run, ok := h.engine.Runs().Get(mux.Vars(r)["id"])
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func entityParams(w http.ResponseWriter, r *http.Request) (models.Kind, string, bool) {
	vars := mux.Vars(r)
	kind, err := models.ParseKind(vars["kind"])
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return kind, vars["id"], true
}

// runStatusCode reports 207 when any entity in the run failed.
func runStatusCode(run *runstore.Run) int {
	if run != nil && run.Result != nil && run.Result.Failed() {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, concurrency.ErrBusy),
		errors.Is(err, models.ErrAlreadyLinked),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, labels.ErrInvalidValue),
		errors.Is(err, models.ErrInvalidEntity):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case github.IsRemoteError(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := statusForError(err)
	if code >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", code).Msg("request failed")
	}
	writeErrorMessage(w, code, err.Error())
}

func writeErrorMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}
