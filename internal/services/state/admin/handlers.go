package admin

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/statevault/statevault/internal/services/state/storage"
)

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (s *Server) handlePurgeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

type purgeConfigRequest struct {
	Threshold  *int   `json:"threshold,omitempty"`
	CooldownMS *int64 `json:"cooldown_ms,omitempty"`
}

func (s *Server) handlePurgeConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req purgeConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	var cooldown *time.Duration
	if req.CooldownMS != nil {
		value := time.Duration(*req.CooldownMS) * time.Millisecond
		cooldown = &value
	}
	if err := s.scheduler.Configure(req.Threshold, cooldown); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handlePurgeSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	triggered := s.scheduler.TriggerNow()
	writeJSON(w, http.StatusAccepted, map[string]bool{"triggered": triggered})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	stats, err := s.executor.StatsByType(r.Context(), s.clock().UTC())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	if err := s.executor.WipeAllVolatile(r.Context()); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

type recordResponse struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}

	typeName := r.URL.Query().Get("type")
	typ, ok := s.reg.Lookup(typeName)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "unknown record type")
		return
	}

	opts := storage.ListOptions{
		OrderBy:   r.URL.Query().Get("order_by"),
		Ascending: r.URL.Query().Get("asc") == "true",
	}
	if ids := strings.TrimSpace(r.URL.Query().Get("ids")); ids != "" {
		opts.IDs = strings.Split(ids, ",")
	}

	records, err := s.store.List(r.Context(), typ.Namespace, opts)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	response := make([]recordResponse, 0, len(records))
	for _, record := range records {
		response = append(response, recordResponse{
			ID:        record.ID,
			Data:      json.RawMessage(record.Data),
			CreatedAt: record.CreatedAt,
			UpdatedAt: record.UpdatedAt,
			ExpiresAt: record.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, errorResponse{Error: code, ErrorDescription: description})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
