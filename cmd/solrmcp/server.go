package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/solrmcp/internal/api"
	"github.com/kalambet/solrmcp/internal/config"
	"github.com/kalambet/solrmcp/internal/history"
	"github.com/kalambet/solrmcp/internal/ollama"
	"github.com/kalambet/solrmcp/internal/solr"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server (stdio transport) with a health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cluster, provider, and history status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "solrmcp version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging. Everything goes to stderr: stdout is
	// the MCP transport.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check embedding provider readiness.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel, cfg.Solr.ConnectionTimeout)
	if err := ollama.EnsureReady(ctx, ollamaClient, os.Stderr); err != nil {
		return err
	}

	// Open query history.
	hist, err := history.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer func() {
		if err := hist.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing history store: %v\n", err)
		}
	}()

	client := solr.NewClient(solr.Options{
		BaseURL: cfg.Solr.BaseURL,
		Timeout: cfg.Solr.ConnectionTimeout,
		ZKHosts: cfg.Solr.ZKHosts,
	}, ollamaClient)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Client:  client,
		History: hist,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)",
		"solr", cfg.Solr.BaseURL, "embed_model", cfg.Ollama.EmbedModel)

	// Health sidecar so status and supervisors can probe liveness.
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("health endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}

	// Server health.
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	if resp, err := client.Get(healthURL); err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Solr cluster.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	solrClient := solr.NewClient(solr.Options{
		BaseURL: cfg.Solr.BaseURL,
		Timeout: 2 * time.Second,
		ZKHosts: cfg.Solr.ZKHosts,
	}, nil)
	if names, err := solrClient.ListCollections(ctx); err != nil {
		printStatus("Solr", "unreachable at %s", cfg.Solr.BaseURL)
	} else {
		printStatus("Solr", "%d collections at %s", len(names), cfg.Solr.BaseURL)
	}

	// Embedding provider.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel, 2*time.Second)
	if ollamaClient.IsRunning(ctx) {
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	} else {
		printStatus("Ollama", "not running")
	}
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)

	// History counts.
	if hist, err := history.Open(cfg.Storage.DataDir); err == nil {
		if n, err := hist.Count(); err == nil {
			printStatus("Recorded queries", "%d", n)
		}
		if recent, err := hist.Recent(1); err == nil && len(recent) > 0 {
			printStatus("Last query", "%s", truncate(recent[0].Statement, 80))
		}
		hist.Close()
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
