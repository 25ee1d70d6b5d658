package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
	"github.com/maksimrudenko/ticket-triage/internal/core/ports"
	"github.com/maksimrudenko/ticket-triage/internal/observability/metrics"
	"github.com/maksimrudenko/ticket-triage/internal/progress"
)

type Router struct {
	control ports.JobControl
	tracker *progress.Tracker
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(control ports.JobControl, tracker *progress.Tracker, m *metrics.HTTPServerMetrics) *Router {
	return &Router{
		control: control,
		tracker: tracker,
		metrics: m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/jobs", rt.startJob)
	mux.HandleFunc("/v1/jobs/cancel", rt.cancelJob)
	mux.HandleFunc("/v1/jobs/", rt.getJob)
	mux.HandleFunc("/v1/progress/ws", rt.observeProgress)
	mux.HandleFunc("/v1/progress/", rt.progressByAccount)
	mux.Handle("/metrics", rt.metrics.Handler())

	return requestIDMiddleware(accessLogMiddleware(metricsMiddleware(rt.metrics, mux)))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startJobRequest struct {
	AccountID string               `json:"account_id"`
	Kind      string               `json:"kind"`
	Config    *domain.ImportConfig `json:"config,omitempty"`
}

func (rt *Router) startJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	job, err := rt.control.Start(r.Context(), req.AccountID, domain.JobKind(req.Kind), req.Config)
	if err != nil {
		rt.metrics.ObserveJobStart(req.Kind, "error")
		writeDomainError(w, err)
		return
	}
	rt.metrics.ObserveJobStart(req.Kind, "ok")

	// The job id is returned immediately; the run itself is asynchronous.
	writeJSON(w, http.StatusAccepted, job)
}

type cancelJobRequest struct {
	JobID     string `json:"job_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

func (rt *Router) cancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req cancelJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var err error
	switch {
	case req.JobID != "":
		err = rt.control.CancelByJobID(r.Context(), req.JobID)
	case req.AccountID != "":
		kind := domain.JobKind(req.Kind)
		if kind == "" {
			kind = domain.JobKindImport
		}
		err = rt.control.CancelByAccount(r.Context(), req.AccountID, kind)
	default:
		writeError(w, http.StatusBadRequest, "job_id or account_id is required")
		return
	}
	if err != nil {
		rt.metrics.ObserveJobCancel("error")
		writeDomainError(w, err)
		return
	}
	rt.metrics.ObserveJobCancel("ok")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	job, err := rt.control.GetJob(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) progressByAccount(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/progress/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "account id is required")
		return
	}

	if accountID, ok := strings.CutSuffix(rest, "/terminate"); ok {
		rt.forceTerminate(w, r, accountID)
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	kind := domain.JobKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.JobKindAnalysis
	}

	snapshot, err := rt.control.Progress(r.Context(), rest, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (rt *Router) forceTerminate(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := rt.control.ForceTerminate(r.Context(), accountID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsKind(err, domain.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsKind(err, domain.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
