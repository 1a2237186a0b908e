package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/statevault/statevault/internal/services/state/admin"
	"github.com/statevault/statevault/internal/services/state/purge"
	"github.com/statevault/statevault/internal/services/state/registry"
	statesqlite "github.com/statevault/statevault/internal/services/state/storage/sqlite"
)

// Config carries server composition settings.
type Config struct {
	DBPath         string
	HTTPAddr       string
	PurgeThreshold int
	PurgeCooldown  time.Duration
	SweepTimeout   time.Duration
}

// Server hosts the state service.
type Server struct {
	store        *statesqlite.Store
	scheduler    *purge.Scheduler
	executor     *purge.Executor
	httpListener net.Listener
	httpServer   *http.Server
}

// New creates a configured state server listening on the HTTP address.
func New(cfg Config) (*Server, error) {
	store, err := openStateStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	reg := registry.Default()
	executor := purge.NewExecutor(store, reg)

	var schedulerOpts []purge.SchedulerOption
	if cfg.SweepTimeout > 0 {
		schedulerOpts = append(schedulerOpts, purge.WithSweepTimeout(cfg.SweepTimeout))
	}
	scheduler := purge.NewScheduler(executor, schedulerOpts...)
	if cfg.PurgeThreshold != 0 || cfg.PurgeCooldown != 0 {
		var threshold *int
		var cooldown *time.Duration
		if cfg.PurgeThreshold != 0 {
			threshold = &cfg.PurgeThreshold
		}
		if cfg.PurgeCooldown != 0 {
			cooldown = &cfg.PurgeCooldown
		}
		if err := scheduler.Configure(threshold, cooldown); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("configure purge scheduler: %w", err)
		}
	}
	store.SetWriteObserver(scheduler)

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}

	mux := http.NewServeMux()
	adminServer := admin.NewServer(store, reg, scheduler, executor)
	adminServer.RegisterRoutes(mux)

	return &Server{
		store:        store,
		scheduler:    scheduler,
		executor:     executor,
		httpListener: httpListener,
		httpServer:   &http.Server{Handler: mux},
	}, nil
}

// Addr returns the HTTP listener address.
func (s *Server) Addr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Run creates and serves a state server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStore()

	log.Printf("state server listening at %v", s.httpListener.Addr())
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		<-httpErr
		return nil
	case err := <-httpErr:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func openStateStore(path string) (*statesqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "state.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := statesqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open state sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close state store: %v", err)
	}
}
