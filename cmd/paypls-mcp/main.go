// Command paypls-mcp serves the PayPls agent wallet as MCP tools.
//
// Usage:
//
//	paypls-mcp                        # serve MCP over stdio
//	paypls-mcp serve --http :8090     # serve MCP over HTTP
//	paypls-mcp tools                  # print tool descriptors
//	paypls-mcp call wallet_balance '{"token":"BTC"}'
//	paypls-mcp journal --limit 20     # show recent tool calls
//	paypls-mcp version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/paypls-mcp/internal/paypls/config"
	"github.com/RobinCoderZhao/paypls-mcp/internal/paypls/journal"
	"github.com/RobinCoderZhao/paypls-mcp/internal/paypls/tools"
	"github.com/RobinCoderZhao/paypls-mcp/internal/paypls/wallet"
	"github.com/RobinCoderZhao/paypls-mcp/pkg/mcpserver"
	"github.com/RobinCoderZhao/paypls-mcp/pkg/storage"
)

var version = "0.2.0"

const serverName = "paypls"

const instructions = "Wallet tools for an AI agent. Sends may need human approval: " +
	"always give a clear justification, and poll wallet_tx_status while a transfer is pending_approval. " +
	"Amounts are in the smallest unit (sats for BTC, micro-units for USDC/EURC)."

// errToolFailed marks a call whose error envelope was already printed.
var errToolFailed = errors.New("tool call failed")

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "paypls-mcp",
		Short:         "MCP server for the PayPls agent wallet",
		Long:          "paypls-mcp exposes the PayPls wallet API (BTC and USDC transfers) as MCP tools. Without a subcommand it serves MCP over stdio.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, "")
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./.paypls.yaml or ~/.paypls.yaml)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(callCmd(&configPath))
	rootCmd.AddCommand(journalCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

func reportError(w io.Writer, err error) {
	var startupErr *config.StartupConfigError
	switch {
	case errors.Is(err, errToolFailed):
	case errors.As(err, &startupErr):
		fmt.Fprintf(w, "Error: %s environment variable is required\n", startupErr.Key)
		fmt.Fprintln(w, startupErr.Hint)
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdio, or over HTTP with --http",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath, httpAddr)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "listen address for the HTTP transport (e.g. :8090)")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool descriptors served on tools/list",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := tools.Descriptors()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(mcpserver.ToolsListResult{Tools: defs})
		},
	}
}

func callCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Invoke one tool and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := "{}"
			if len(args) == 2 {
				raw = args[1]
			}
			return runCall(cmd.Context(), *configPath, args[0], raw, cmd.OutOrStdout())
		},
	}
}

func journalCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent tool calls from the local journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(cmd.Context(), *configPath, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "paypls-mcp %s\n", version)
		},
	}
}

// loadConfig resolves configuration once; nothing re-reads it afterwards.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	setupLogger(cfg.Log)
	return cfg, nil
}

// setupLogger installs the default logger. Stdout carries the protocol,
// so logs always go to stderr.
func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildServer wires the wallet client, tools and middleware. The returned
// cleanup closes the journal database, if one was opened.
func buildServer(ctx context.Context, cfg config.Config) (*mcpserver.Server, func(), error) {
	logger := slog.Default()

	apiCfg := cfg.API
	apiCfg.UserAgent = "paypls-mcp/" + version
	client := wallet.NewClient(apiCfg, nil)

	s := mcpserver.New(serverName, version)
	s.SetLogger(logger)
	s.SetInstructions(instructions)
	s.Use(mcpserver.RecoveryMiddleware(logger))
	s.Use(mcpserver.LoggingMiddleware(logger))

	cleanup := func() {}
	if cfg.Journal.Enabled() {
		db, err := storage.Open(ctx, cfg.Journal)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		store, err := journal.NewStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		s.Use(store.Middleware())
		cleanup = func() { db.Close() }
		logger.Info("journal enabled", "driver", cfg.Journal.Driver)
	}

	if err := tools.Register(s, client); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("register tools: %w", err)
	}
	return s, cleanup, nil
}

func runServe(configPath, httpAddr string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, cleanup, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.HTTP.Addr != "" {
		if cfg.HTTP.AuthToken == "" {
			slog.Warn("HTTP transport has no auth token; set PAYPLS_HTTP_TOKEN to require one")
		}
		return s.RunHTTP(ctx, cfg.HTTP.Addr, cfg.HTTP.AuthToken)
	}

	slog.Info("PayPls MCP server running (BTC + USDC supported)", "version", version, "api", cfg.API.BaseURL)
	return s.RunStdio(ctx, os.Stdin, os.Stdout)
}

func runCall(ctx context.Context, configPath, name, rawArgs string, out io.Writer) error {
	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return fmt.Errorf("arguments must be a JSON object: %w", err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	s, cleanup, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	params, err := json.Marshal(mcpserver.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return err
	}
	resp := s.HandleRequest(ctx, &mcpserver.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		return fmt.Errorf("tools/call: %s", resp.Error.Message)
	}
	result, ok := resp.Result.(*mcpserver.ToolCallResult)
	if !ok {
		return fmt.Errorf("unexpected result type %T", resp.Result)
	}

	fmt.Fprintln(out, result.Text())
	if result.IsError {
		return errToolFailed
	}
	return nil
}

func runJournal(ctx context.Context, configPath string, limit int, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Journal.Enabled() {
		return errors.New("journal is disabled; set PAYPLS_JOURNAL_DSN or journal.dsn")
	}

	db, err := storage.Open(ctx, cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()

	store, err := journal.NewStore(ctx, db)
	if err != nil {
		return err
	}
	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}

	return printJournal(out, entries)
}

func printJournal(out io.Writer, entries []journal.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No tool calls recorded.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOOL\tRESULT\tSTATUS\tTRANSACTION\tDURATION")
	for _, e := range entries {
		result := "ok"
		if e.IsError {
			result = "error"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Tool, result, dash(e.Status), dash(e.TransactionID), e.Duration)
		if e.IsError && e.Message != "" {
			fmt.Fprintf(tw, "\t  %s\t\t\t\t\n", e.Message)
		}
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
