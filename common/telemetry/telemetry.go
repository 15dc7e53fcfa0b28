package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/sellerhub/marking/common/config"
	"github.com/sellerhub/marking/common/logger"
)

// Telemetry hosts the optional pprof endpoint
type Telemetry struct {
	server *http.Server
	log    *logger.Logger
}

// New starts the pprof server when enabled
func New(cfg *config.Config, log *logger.Logger) *Telemetry {
	if !cfg.Telemetry.EnablePprof {
		return &Telemetry{log: log}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	t := &Telemetry{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Telemetry.PprofPort),
			Handler: mux,
		},
		log: log,
	}

	go func() {
		log.Info("pprof server starting", "addr", t.server.Addr)
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("pprof server error", "error", err)
		}
	}()

	return t
}

// Close stops the pprof server
func (t *Telemetry) Close() error {
	if t.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.server.Shutdown(ctx)
}
