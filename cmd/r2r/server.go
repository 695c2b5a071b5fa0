package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rain2recharge/r2r/internal/api"
	"github.com/rain2recharge/r2r/internal/assessment"
	"github.com/rain2recharge/r2r/internal/assistant"
	"github.com/rain2recharge/r2r/internal/config"
	"github.com/rain2recharge/r2r/internal/geocoding"
	"github.com/rain2recharge/r2r/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and optionally the MCP stdio server) in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status and effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdin/stdout")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "r2r version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)})))

	if config.IsPlaceholder(cfg.Assistant.APIKey) {
		printWarning("assistant API key not set (R2R_ASSISTANT_API_KEY); chat replies will use fallbacks")
	}
	if cfg.Server.APIToken == "" {
		printWarning("no API token configured; the API accepts unauthenticated requests")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	provider, err := geocoding.NewProvider(geocoding.ProviderConfig{
		Name:         cfg.Geocoding.Provider,
		UserAgent:    cfg.Geocoding.UserAgent,
		MapboxToken:  cfg.Geocoding.MapboxToken,
		GoogleAPIKey: cfg.Geocoding.GoogleAPIKey,
	})
	if err != nil {
		return err
	}

	client := assistant.NewClientWithBaseURL(cfg.Assistant.APIKey, cfg.Assistant.BaseURL,
		assistant.WithModel(cfg.Assistant.Model),
		assistant.WithTimeout(cfg.Assistant.Timeout),
	)

	deps := api.Deps{
		Assessments:    assessment.NewRegistry(store, assessment.WithClimateDelay(cfg.Wizard.ClimateDelay)),
		Chats:          api.NewChats(store, assistant.New(client)),
		Geocoder:       geocoding.NewService(provider, cfg.Geocoding.RateLimit),
		Token:          cfg.Server.APIToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	slog.Info("services ready",
		"model", client.Model(),
		"geocoder", provider.Name(),
		"data_dir", cfg.Storage.DataDir,
	)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "r2r listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	hctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var health struct {
		Status string `json:"status"`
	}
	resp, err := client.get(hctx, "/health")
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case decodeJSON(resp, &health) != nil:
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	default:
		printStatus("Server", "%s on port %d", health.Status, cfg.Server.Port)
	}

	printStatus("Model", "%s", cfg.Assistant.Model)
	if config.IsPlaceholder(cfg.Assistant.APIKey) {
		printStatus("Assistant key", "%s", colorize(colorYellow, "not set"))
	} else {
		printStatus("Assistant key", "set")
	}
	printStatus("Geocoder", "%s", cfg.Geocoding.Provider)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
