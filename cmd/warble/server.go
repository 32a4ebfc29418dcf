package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/warblehq/warble/internal/api"
	"github.com/warblehq/warble/internal/archive"
	"github.com/warblehq/warble/internal/config"
	"github.com/warblehq/warble/internal/guard"
	"github.com/warblehq/warble/internal/platform"
	"github.com/warblehq/warble/internal/protect"
	"github.com/warblehq/warble/internal/state"
	"github.com/warblehq/warble/internal/workflow"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the warble server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running warble server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show warble system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "warble version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Platform.BearerToken == "" {
		return fmt.Errorf("missing platform credentials: set WARBLE_BEARER_TOKEN")
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Single-instance guard: probe health before taking the PID file.
	pidPath := cfg.PIDPath()
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("warble is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("warble is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.BearerToken)

	// Resolve the operator's own id and the protected accounts up front,
	// before the engine issues any of its own calls.
	selfID, err := client.AuthenticatedUserID(ctx)
	if err != nil {
		slog.Warn("could not resolve authenticated user id at startup, will retry lazily", "error", err)
	}
	protected := protect.Parse(cfg.Workflows.ProtectedAccounts)
	if protected.Len() > 0 {
		protected.Resolve(ctx, client)
		slog.Info("protected accounts resolved", "count", protected.Len())
	}

	var recorder workflow.ActionRecorder
	arch, err := archive.Open(cfg.Storage.DataDir)
	if err != nil {
		slog.Warn("action archive unavailable, continuing without it", "error", err)
	} else {
		recorder = arch
		defer func() {
			if err := arch.Close(); err != nil {
				slog.Warn("closing archive", "error", err)
			}
		}()
	}

	store := state.NewStore(cfg.StatePath())
	engine := workflow.NewEngine(client, workflow.EngineConfig{
		Limits: guard.Limits{
			Replies:   cfg.Budget.MaxReplies,
			Originals: cfg.Budget.MaxOriginals,
			Likes:     cfg.Budget.MaxLikes,
			Retweets:  cfg.Budget.MaxRetweets,
			Follows:   cfg.Budget.MaxFollows,
			Unfollows: cfg.Budget.MaxUnfollows,
			Deletes:   cfg.Budget.MaxDeletes,
		},
		Protected: protected,
		SelfID:    selfID,
		MaxActive: cfg.Workflows.MaxActive,
		Recorder:  recorder,
	})
	svc := api.NewService(store, engine)

	appHandler := api.NewAppHandler(api.AppDeps{Service: svc, Archive: arch})
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Background pass so time-gated workflows advance while the agent is idle.
	poller := api.NewPoller(svc, 15*time.Minute)
	go poller.Run(ctx)

	// MCP server on stdio: this is how the agent reaches the engine.
	mcpSrv := api.NewMCPServer(svc)
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "warble listening on %s\n", addr)
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

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := cfg.PIDPath()
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("warble is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop warble (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to warble (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		var budget struct {
			Summary string `json:"summary"`
		}
		if budgetResp, err := client.Get(serverURL + "/budget"); err == nil {
			if decodeJSON(budgetResp, &budget) == nil {
				printStatus("Budget", "%s", budget.Summary)
			}
		}

		var workflows []struct {
			ID string `json:"id"`
		}
		if wfResp, err := client.Get(serverURL + "/workflows"); err == nil {
			if decodeJSON(wfResp, &workflows) == nil {
				printStatus("Active workflows", "%d", len(workflows))
			}
		}
	}

	printStatus("Platform", "%s", cfg.Platform.BaseURL)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
