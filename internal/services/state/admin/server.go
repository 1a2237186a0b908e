// Package admin implements the operational HTTP surface.
//
// These endpoints configure and observe the purge subsystem; none of them are
// part of the protocol-facing persistence contract.
package admin

import (
	"net/http"
	"time"

	"github.com/statevault/statevault/internal/services/state/purge"
	"github.com/statevault/statevault/internal/services/state/registry"
	"github.com/statevault/statevault/internal/services/state/storage"
)

// Server hosts the administrative endpoints.
type Server struct {
	store     storage.RecordStore
	reg       *registry.Registry
	scheduler *purge.Scheduler
	executor  *purge.Executor
	clock     func() time.Time
}

// NewServer builds an admin server bound to the store and purge subsystem.
func NewServer(store storage.RecordStore, reg *registry.Registry, scheduler *purge.Scheduler, executor *purge.Executor) *Server {
	return &Server{
		store:     store,
		reg:       reg,
		scheduler: scheduler,
		executor:  executor,
		clock:     time.Now,
	}
}

// RegisterRoutes registers admin HTTP endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/purge/status", s.handlePurgeStatus)
	mux.HandleFunc("/purge/config", s.handlePurgeConfig)
	mux.HandleFunc("/purge/sweep", s.handlePurgeSweep)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/flush", s.handleFlush)
	mux.HandleFunc("/records", s.handleRecords)
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}
