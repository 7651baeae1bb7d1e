package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ippclub/crates-mcp/internal/config"
	"github.com/ippclub/crates-mcp/internal/crates"
	"github.com/ippclub/crates-mcp/internal/docs"
	"github.com/ippclub/crates-mcp/internal/handler"
	"github.com/ippclub/crates-mcp/internal/mcp"
	"github.com/ippclub/crates-mcp/internal/service"
	"github.com/ippclub/crates-mcp/internal/store"
	"github.com/ippclub/crates-mcp/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP requests (default command)",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}
	cmd.Flags().String("transport", "stdio", "Transport to serve on (only stdio is supported)")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	if transport == "" {
		transport = "stdio"
	}
	if transport != "stdio" {
		return exitError(ExitUsage, "unsupported transport %q: only stdio is supported", transport)
	}

	cfg, log, err := a.setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	log = log.With(zap.String("session_id", sessionID))

	recorder, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Server.Version, log)
	if err != nil {
		log.Warn("telemetry disabled", zap.Error(err))
		recorder = nil
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := recorder.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush telemetry", zap.Error(err))
		}
	}()

	st := openJournal(cfg, log)
	if st != nil {
		defer st.Close()
	}

	client, err := crates.New(ctx, cfg, nil, log)
	if err != nil {
		log.Error("failed to create crates.io client", zap.Error(err))
		return exitError(ExitFailure, "%v", err)
	}
	indexes := service.NewIndexService(cfg, log, st)
	indexes.Record(sessionID, client)

	docsClient, err := docs.New(cfg, log)
	if err != nil {
		log.Error("failed to create docs.rs client", zap.Error(err))
		return exitError(ExitFailure, "%v", err)
	}

	registry, err := mcp.NewRegistry(client, docsClient)
	if err != nil {
		return exitError(ExitFailure, "failed to build tool registry: %v", err)
	}

	if cfg.Server.StatusAddr != "" {
		api := handler.NewAPI(cfg, log, client, indexes, st, recorder, sessionID)
		defer api.Close()
		srv := startDiagnostics(cfg.Server.StatusAddr, api, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("diagnostics listener forced to shutdown", zap.Error(err))
			}
		}()
	}

	opts := []mcp.Option{mcp.WithRecorder(recorder), mcp.WithSessionID(sessionID)}
	if st != nil {
		opts = append(opts, mcp.WithJournal(st))
	}
	server := mcp.NewServer(cfg.Server.Name, cfg.Server.Version, registry, log, opts...)

	// The read loop blocks on stdin, so a signal has to be able to end the
	// command while it is waiting.
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if mcp.IsClosed(err) {
		log.Info("server exited properly")
		return nil
	}
	log.Error("server stopped", zap.Error(err))
	return exitError(ExitFailure, "%v", err)
}

// openJournal opens the call journal when storage is configured. A journal
// that cannot be opened only disables journaling.
func openJournal(cfg *config.Config, log *zap.Logger) *store.SQLiteStore {
	if cfg.Storage.Path == "" {
		return nil
	}
	st, err := store.NewSQLiteStore(cfg.Storage.Path, log)
	if err != nil {
		log.Warn("call journal disabled", zap.String("path", cfg.Storage.Path), zap.Error(err))
		return nil
	}
	return st
}

func startDiagnostics(addr string, api *handler.API, log *zap.Logger) *http.Server {
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("starting diagnostics listener", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("diagnostics listener failed", zap.Error(err))
		}
	}()
	return srv
}
