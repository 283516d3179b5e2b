// Package main is the GraphRAG CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hyperjump/graphrag/internal/cli"
	"github.com/hyperjump/graphrag/internal/config"
	"github.com/hyperjump/graphrag/internal/models"
	"github.com/hyperjump/graphrag/internal/search"
	"github.com/hyperjump/graphrag/internal/server"
	"github.com/hyperjump/graphrag/internal/storage"
	"github.com/hyperjump/graphrag/internal/stream"
	"github.com/hyperjump/graphrag/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/graphrag/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if present, and a missing default file means
// environment-only configuration. Returns the config and the path actually
// loaded ("" when none was).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "query":
		runQuery()
	case "stream":
		runStream()
	case "history":
		runHistory()
	case "version", "--version", "-v":
		fmt.Printf("graphrag version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	components := initializeComponents(cfg, logger)
	srv := server.NewServer(components.Search, components.Sessions, components.Store, &cfg.Server, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	serveErr := serveUntil(ctx, srv, shutdownTimeout)
	stop()

	logger.Info("Shutting down...", zap.Int("open_sessions", components.Registry.Len()))
	if err := components.Close(); err != nil {
		logger.Warn("failed to close history store", zap.Error(err))
	}
	if serveErr != nil {
		logger.Error("Server failed", zap.Error(serveErr))
		_ = logger.Sync()
		os.Exit(1)
	}
}

const shutdownTimeout = 10 * time.Second

// lifecycle is the part of *server.Server that serveUntil drives.
type lifecycle interface {
	Start() error
	Stop(ctx context.Context) error
}

// serveUntil runs srv until it fails or ctx is done, then shuts it down
// gracefully. A clean shutdown returns nil.
func serveUntil(ctx context.Context, srv lifecycle, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Store    storage.HistoryStore
	Search   *search.Service
	Sessions *stream.Controller
	Registry *stream.Registry
}

func (c *Components) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) *Components {
	store := storage.Open(context.Background(), &cfg.Storage, logger)

	svc := search.NewServiceFromConfig(&cfg.Search,
		search.WithPacing(search.Pacing{Base: cfg.Stream.PacingBase, Step: cfg.Stream.PacingStep}))
	if cfg.Search.Tavily.APIKey == "" {
		logger.Warn("TAVILY_API_KEY is not set; tavily searches will fail upstream")
	}
	if cfg.Search.Serper.APIKey == "" {
		logger.Warn("SERPER_API_KEY is not set; serper searches will fail upstream")
	}

	registry := stream.NewRegistry()
	sessions := stream.NewController(svc, registry, store,
		stream.WithLogger(logger),
		stream.WithMaxResults(cfg.Stream.MaxResults),
	)
	return &Components{Store: store, Search: svc, Sessions: sessions, Registry: registry}
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// parseInterspersed parses args with fs while allowing flags anywhere among
// the positional arguments, which are returned in their original order. Go's
// flag package alone stops at the first non-flag argument. Everything after
// "--" is positional.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if consumed := len(args) - len(rest); consumed > 0 && args[consumed-1] == "--" {
			return append(positional, rest...), nil
		}
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	searchType := fs.String("type", string(models.ProviderTavily), "search provider: tavily or serper")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: graphrag query [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	positional, _ := parseInterspersed(fs, os.Args[2:])

	queryStr := buildSearchQuery(positional)
	if queryStr == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	resp, err := queryViaHTTP(*serverURL, models.QueryRequest{Query: queryStr, SearchType: *searchType})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteQueryResults(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func queryViaHTTP(serverURL string, req models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	limit := fs.Int("limit", storage.DefaultHistoryLimit, "number of recent queries")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])

	format := parseFormat(*outputFormat)
	entries, err := historyViaHTTP(*serverURL, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "History failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteHistory(os.Stdout, entries, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func historyViaHTTP(serverURL string, limit int) ([]models.HistoryEntry, error) {
	resp, err := http.Get(serverURL + "/api/history?limit=" + strconv.Itoa(limit))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		History []models.HistoryEntry `json:"history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.History, nil
}

func runStream() {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	searchType := fs.String("type", string(models.ProviderTavily), "search provider: tavily or serper")
	sessionID := fs.String("session", "", "session id (default: random)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: graphrag stream [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	positional, _ := parseInterspersed(fs, os.Args[2:])

	queryStr := buildSearchQuery(positional)
	if queryStr == "" {
		fs.Usage()
		os.Exit(1)
	}
	if *sessionID == "" {
		*sessionID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := models.QueryRequest{Query: queryStr, SearchType: *searchType}
	if err := streamViaWebSocket(ctx, *serverURL, *sessionID, req, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Stream failed: %v\n", err)
		os.Exit(1)
	}
}

// streamURL maps an http(s) server URL to the session's ws(s) endpoint.
func streamURL(serverURL, sessionID string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws/stream/" + url.PathEscape(sessionID)
	return u.String(), nil
}

// streamViaWebSocket sends req on a new session and prints every event until
// the session ends. An error event is reported as an error after printing.
func streamViaWebSocket(ctx context.Context, serverURL, sessionID string, req models.QueryRequest, w io.Writer) error {
	target, err := streamURL(serverURL, sessionID)
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send query: %w", err)
	}
	for {
		var event models.StreamEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("connection closed before completion: %w", err)
		}
		if err := cli.WriteEvent(w, event); err != nil {
			return err
		}
		switch event.Kind {
		case models.EventDone:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case models.EventError:
			return errors.New(event.Message)
		}
	}
}

func printUsage() {
	fmt.Println(`graphrag - Streaming web search backend with query history

Usage:
  graphrag server [flags]            Start the HTTP and WebSocket server
  graphrag query [flags] <query>     Run a one-shot search
  graphrag stream [flags] <query>    Stream a search over WebSocket
  graphrag history [flags]           Show recent queries
  graphrag version                   Show version
  graphrag help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/graphrag/config.yaml)
  --debug            Enable debug logging

Query / Stream Flags:
  --server string    Server URL (default: http://localhost:8000)
  --type string      Search provider: tavily or serper (default: tavily)
  --output string    Output format for query: text, compact, or json (default: text)
  --session string   Session id for stream (default: random)

History Flags:
  --server string    Server URL (default: http://localhost:8000)
  --limit int        Number of recent queries (default: 10)
  --output string    Output format: text, compact, or json (default: text)

Environment:
  TAVILY_API_KEY, SERPER_API_KEY, NEO4J_URI, NEO4J_USERNAME, NEO4J_PASSWORD,
  STORAGE_BACKEND (neo4j|sqlite|disabled), HOST, PORT, DEBUG. A .env file in
  the working directory is loaded first.

Examples:
  graphrag server
  graphrag query "what is graph rag"
  graphrag query --type serper --output json golang generics
  graphrag stream latest go release
  graphrag history --limit 5`)
}
