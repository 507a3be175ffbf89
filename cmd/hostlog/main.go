// hostlog - live log viewer for rented game servers
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ernie/hostlog/internal/api"
	"github.com/ernie/hostlog/internal/auth"
	"github.com/ernie/hostlog/internal/bus"
	"github.com/ernie/hostlog/internal/collector"
	"github.com/ernie/hostlog/internal/config"
	"github.com/ernie/hostlog/internal/domain"
	"github.com/ernie/hostlog/internal/live"
	"github.com/ernie/hostlog/internal/logquery"
	"github.com/ernie/hostlog/internal/storage"
	"github.com/ernie/hostlog/internal/tui"
	"github.com/ernie/hostlog/internal/viewer"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"
)

var version = "dev"

const defaultConfigPath = "/etc/hostlog/config.yml"

// tokenEnv supplies --token when the flag is absent
const tokenEnv = "HOSTLOG_TOKEN"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "servers":
		cmdServers(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "logs":
		cmdLogs(os.Args[2:])
	case "watch":
		cmdWatch(os.Args[2:])
	case "version":
		fmt.Printf("hostlog %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("hostlog - live log viewer for rented game servers")
	fmt.Println()
	fmt.Println("Usage: hostlog <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                    Start the log API and live channel")
	fmt.Println("  servers                  List configured servers")
	fmt.Println("  token [--admin]          Mint an API token from the configured secret")
	fmt.Println("  logs <server>            Print one page of a server log")
	fmt.Println("  watch <server>           Browse history and follow live lines")
	fmt.Println("  version                  Show version")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config PATH            Config file (default: " + defaultConfigPath + ")")
	fmt.Println("  --url URL                API address (default: derived from config)")
	fmt.Println("  --token TOKEN            API token (default: $" + tokenEnv + ")")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  hostlog serve --config ./config.yml")
	fmt.Println("  hostlog logs ffa-1 --percent 50 --count 40")
	fmt.Println("  hostlog logs ffa-1 --reverse --q Kill:")
	fmt.Println("  hostlog watch ffa-1 --delay 30s --highlights")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Hostlog %s starting...", version)

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	log.Printf("Database initialized at %s", cfg.Database.Path)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	servers := make([]domain.Server, 0, len(cfg.GameServers))
	for _, gs := range cfg.GameServers {
		servers = append(servers, domain.Server{Name: gs.Name, Address: gs.Address, LogPath: gs.LogPath})
	}
	synced, err := store.SyncServers(ctx, servers)
	if err != nil {
		log.Fatalf("Failed to sync servers: %v", err)
	}
	log.Printf("Serving logs for %d servers", len(synced))

	b, err := bus.Start(cfg.Bus.URL)
	if err != nil {
		log.Fatalf("Failed to start message bus: %v", err)
	}
	defer b.Close()

	searcher, err := logquery.NewSearcher(cfg.Logs.Search, cfg.Logs.GrepPath)
	if err != nil {
		log.Fatalf("Failed to set up search: %v", err)
	}
	engine := logquery.NewEngine(searcher, logquery.Options{
		DefaultChunkSize: cfg.Logs.DefaultChunkSize,
		MaxChunkSize:     cfg.Logs.MaxChunkSize,
		MaxQueryLength:   cfg.Logs.MaxQueryLength,
	})

	tails := collector.NewTailManager(b, cfg.Logs.PollInterval)
	logStream := api.NewLogStreamManager(store, b, tails)
	sessions := api.NewSessionManager(cfg.Server.SessionTTL)
	limiter := api.NewRateLimiter(cfg.Logs.RateLimit, cfg.Logs.RateBurst)

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		log.Printf("Warning: No JWT secret configured. Auth tokens will use an empty secret.")
	}

	router := api.NewRouter(store, engine, sessions, logStream, limiter, authService)
	go router.RunSessionJanitor(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// chunk reads and searches over large logs can be slow to write
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Printf("Received signal, shutting down...")
	case err := <-serverErr:
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Println("Shutting down HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Stopping log tailers...")
	tails.Stop()

	log.Println("Shutdown complete")
}

// cliFlags are the options every client command accepts
type cliFlags struct {
	configPath *string
	url        *string
	token      *string
}

func addCLIFlags(fs *flag.FlagSet) cliFlags {
	return cliFlags{
		configPath: fs.String("config", defaultConfigPath, "path to configuration file"),
		url:        fs.String("url", "", "base URL of the hostlog server"),
		token:      fs.String("token", "", "API token (default: $"+tokenEnv+")"),
	}
}

// apiClient builds a viewer client, deriving the address from the config
// file when --url is not given
func (f cliFlags) apiClient() *viewer.Client {
	addr := *f.url
	if addr == "" {
		cfg, err := config.Load(*f.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *f.configPath, err)
			addr = "http://localhost:8080"
		} else {
			addr = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
		}
	}
	token := *f.token
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	client, err := viewer.NewClient(addr, token)
	if err != nil {
		fatalf("%v", err)
	}
	return client
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func cmdServers(args []string) {
	fs := flag.NewFlagSet("servers", flag.ExitOnError)
	cf := addCLIFlags(fs)
	fs.Parse(args)

	client := cf.apiClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	servers, err := client.Servers(ctx)
	if err != nil {
		fatalf("%v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSERVER\tADDRESS\tLINES\tLIVE")
	fmt.Fprintln(w, "--\t------\t-------\t-----\t----")
	for _, srv := range servers {
		lines, watchers := "-", "-"
		// log status needs an admin token, so plain listings skip it
		if status, err := client.LogStatus(ctx, srv.ID); err == nil {
			lines = strconv.Itoa(status.TotalLines)
			watchers = strconv.Itoa(status.Subscribers)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", srv.ID, srv.Name, srv.Address, lines, watchers)
	}
	w.Flush()
}

func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	username := fs.String("username", "admin", "subject to put in the token")
	admin := fs.Bool("admin", false, "grant log access")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("%v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		fatalf("auth.jwt_secret is not set in %s", *configPath)
	}
	token, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration).GenerateToken(*username, *admin)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Println(token)
}

// resolveServer accepts a server name or numeric id
func resolveServer(ctx context.Context, client *viewer.Client, ref string) domain.Server {
	servers, err := client.Servers(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	id, idErr := strconv.ParseInt(ref, 10, 64)
	for _, srv := range servers {
		if srv.Name == ref || (idErr == nil && srv.ID == id) {
			return srv
		}
	}
	fatalf("server %q not found", ref)
	return domain.Server{}
}

// serverArg splits the server reference off the flags, which may come
// before or after it
func serverArg(fs *flag.FlagSet, args []string) string {
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: hostlog %s <server> [options]\n", fs.Name())
		fs.PrintDefaults()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	cf := addCLIFlags(fs)
	percent := fs.Float64("percent", 100, "window position as a percentage of the log")
	count := fs.Int("count", 0, "window size in lines (default: server default)")
	forward := fs.Bool("forward", false, "page forward from --offset instead of reading a window")
	reverse := fs.Bool("reverse", false, "page backward from the end, newest first")
	offset := fs.Int("offset", 0, "page offset")
	chunkSize := fs.Int("chunk-size", 0, "page size in lines (default: server default)")
	query := fs.String("q", "", "only show lines containing this text")
	ref := serverArg(fs, args)

	if *forward && *reverse {
		fatalf("--forward and --reverse are exclusive")
	}

	client := cf.apiClient()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	srv := resolveServer(ctx, client, ref)

	if *forward || *reverse {
		res, err := client.FetchChunk(ctx, srv.ID, logquery.ChunkRequest{
			Offset:    *offset,
			ChunkSize: *chunkSize,
			Query:     *query,
			Reverse:   *reverse,
		})
		if err != nil {
			fatalf("%v", err)
		}
		printLines(os.Stdout, res.LineNumbers, res.Lines)
		summary := fmt.Sprintf("%d lines", res.TotalLines)
		if *query != "" {
			summary = fmt.Sprintf("%d of %d lines match", res.MatchedLines, res.TotalLines)
		}
		if res.HasMore {
			summary += fmt.Sprintf(", more at --offset %d", res.NextOffset)
		}
		fmt.Fprintln(os.Stderr, summary)
		return
	}

	win, err := client.FetchWindow(ctx, srv.ID, logquery.PercentRequest{Percent: *percent, Count: *count, Query: *query})
	if err != nil {
		fatalf("%v", err)
	}
	printLines(os.Stdout, win.LineNumbers, win.Lines)
	if win.IsSearch {
		fmt.Fprintf(os.Stderr, "matches %d-%d of %d (%d lines)\n", win.StartIndex+1, win.EndIndex, win.TotalMatches, win.Total)
	} else {
		fmt.Fprintf(os.Stderr, "lines %d-%d of %d\n", win.StartIndex+1, win.EndIndex, win.Total)
	}
}

func printLines(w io.Writer, numbers []int, lines []string) {
	for i, line := range lines {
		fmt.Fprintf(w, "%7d  %s", numbers[i]+1, line)
		if !strings.HasSuffix(line, "\n") {
			fmt.Fprintln(w)
		}
	}
}

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cf := addCLIFlags(fs)
	delay := fs.Duration("delay", 0, "hold live lines back by this long (max 90s)")
	highlights := fs.Bool("highlights", false, "only show highlight events live")
	query := fs.String("q", "", "start with this search applied")
	types := fs.Bool("types", false, "prefix piped lines with their event type")
	logFile := fs.String("log-file", "", "write diagnostics here while the viewer is open")
	ref := serverArg(fs, args)

	client := cf.apiClient()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := resolveServer(ctx, client, ref)
	liveURL := live.URLFor(client.BaseURL(), client.Token(), srv.ID)

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		err := tui.RunPlain(ctx, os.Stdout, liveURL, tui.PlainOptions{
			ServerID:      srv.ID,
			Delay:         *delay,
			HighlightOnly: *highlights,
			ShowTypes:     *types,
		})
		if err != nil {
			fatalf("%v", err)
		}
		return
	}

	// the alt screen owns the terminal, so log output goes to a file or nowhere
	log.SetOutput(io.Discard)
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fatalf("%v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	err := tui.Run(ctx, tui.Options{
		Fetcher:       client,
		Server:        srv,
		Delay:         *delay,
		HighlightOnly: *highlights,
		Query:         *query,
	}, liveURL)
	if err != nil && !errors.Is(err, context.Canceled) {
		fatalf("%v", err)
	}
}
