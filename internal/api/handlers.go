package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/synjan/qascan/internal/orchestration"
	"github.com/synjan/qascan/internal/storage"
	"github.com/synjan/qascan/pkg/models"
	"github.com/synjan/qascan/pkg/utils"
)

type errorResponse struct {
	Error string `json:"error"`
}

type startScanRequest struct {
	RepositoryURL string `json:"repositoryUrl"`
	UseAI         bool   `json:"useAI"`
	AIModel       string `json:"aiModel,omitempty"`
}

type startScanResponse struct {
	ScanID  string `json:"scanId"`
	Message string `json:"message"`
}

type scanListResponse struct {
	Scans []models.ScanSession `json:"scans"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("Encoding response failed: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleScanner(w http.ResponseWriter, r *http.Request) {
	caller, err := s.auth.authenticate(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.startScan(w, r, caller)
	case http.MethodGet:
		if id := r.URL.Query().Get("id"); id != "" {
			s.getScan(w, id)
			return
		}
		s.listScans(w, caller)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request, caller identity) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RepositoryURL == "" {
		s.writeError(w, http.StatusBadRequest, "repositoryUrl is required")
		return
	}

	id, err := s.orchestrator.StartScan(orchestration.ScanRequest{
		RepositoryURL: req.RepositoryURL,
		Owner:         caller.Owner,
		Token:         caller.Token,
		UseAI:         req.UseAI,
		Model:         req.AIModel,
	})
	if err != nil {
		s.logger.Errorf("Starting scan failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusCreated, startScanResponse{
		ScanID:  id,
		Message: "scan started",
	})
}

func (s *Server) getScan(w http.ResponseWriter, id string) {
	session, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) listScans(w http.ResponseWriter, caller identity) {
	s.writeJSON(w, http.StatusOK, scanListResponse{Scans: s.store.ListByOwner(caller.Owner)})
}

// handleRepositories serves the caller's repository list through the
// cache. The outcome of the cache read is exposed in X-Cache-Status so
// clients can tell fresh data from a stale fallback.
func (s *Server) handleRepositories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, err := s.auth.authenticate(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	key := "repos:" + utils.TokenDigest(caller.Token)
	payload, status, err := s.cache.Fetch(r.Context(), key, func(ctx context.Context) ([]byte, error) {
		repos, err := s.repos.ListRepositories(ctx, caller.Token)
		if err != nil {
			return nil, err
		}
		return json.Marshal(repos)
	})

	if s.metrics != nil {
		s.metrics.IncCounter("qascan_cache_reads_total", 1, prometheus.Labels{"status": status.String()})
	}
	w.Header().Set("X-Cache-Status", status.String())

	if err != nil {
		s.logger.Errorf("Listing repositories failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.logger.Errorf("Writing repository payload failed: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
