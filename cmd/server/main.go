package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kulaginds/wiener-restore/internal/config"
	"github.com/kulaginds/wiener-restore/internal/handler"
	"github.com/kulaginds/wiener-restore/internal/logging"
)

const (
	appName    = "Wiener Restoration Server"
	appVersion = "v1.0.0"

	shutdownTimeout = 10 * time.Second
)

func main() {
	hostFlag := flag.String("host", "", "server listen host")
	portFlag := flag.String("port", "", "server listen port")
	logLevelFlag := flag.String("log-level", "", "log level (debug, info, warn, error)")
	configFlag := flag.String("config", "", "YAML configuration file")
	helpFlag := flag.Bool("help", false, "show help")
	versionFlag := flag.Bool("version", false, "show version")

	flag.Parse()

	if *helpFlag {
		showHelp()
		return
	}

	if *versionFlag {
		showVersion()
		return
	}

	opts := config.LoadOptions{
		Host:       strings.TrimSpace(*hostFlag),
		Port:       strings.TrimSpace(*portFlag),
		LogLevel:   strings.TrimSpace(*logLevelFlag),
		ConfigFile: strings.TrimSpace(*configFlag),
	}

	cfg, err := config.LoadWithOverrides(opts)
	if err != nil {
		logging.Error("failed to load config: %v", err)
		os.Exit(1)
	}

	if err = setupLogging(cfg.Logging); err != nil {
		logging.Error("failed to set up logging: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := createServer(cfg)
	logging.Info("starting %s on %s (bd=%d, max block=%d)", appName, server.Addr, cfg.Filter.BitDepth, cfg.Filter.MaxBlockSize)

	if err := startServer(ctx, server); err != nil {
		logging.Error("server: %v", err)
		os.Exit(1)
	}
	logging.Info("server stopped")
}

func createServer(cfg *config.Config) *http.Server {
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	h := handler.New(cfg)
	mux := http.NewServeMux()
	mux.HandleFunc("/filter", h.Filter)
	mux.HandleFunc("/healthz", h.Health)

	var next http.Handler = mux
	next = corsMiddleware(next, cfg.Security.AllowedOrigins)
	next = securityHeadersMiddleware(next)
	next = requestLoggingMiddleware(next)

	return &http.Server{
		Addr:         addr,
		Handler:      next,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; connect-src 'self' ws: wss:")

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if isOriginAllowed(origin, allowedOrigins, r.Host) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isOriginAllowed(origin string, allowedOrigins []string, host string) bool {
	if origin == "" {
		return false
	}

	for _, allowed := range allowedOrigins {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}

	if len(allowedOrigins) == 0 {
		return strings.Contains(origin, host)
	}

	return false
}

func setupLogging(cfg config.LoggingConfig) error {
	return logging.Configure(logging.Options{
		Level:  cfg.Level,
		Format: cfg.Format,
		File:   cfg.File,
		Caller: cfg.EnableCaller,
	})
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Info("%s %s %s %d %s", r.RemoteAddr, r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func startServer(ctx context.Context, server *http.Server) error {
	if server == nil {
		return fmt.Errorf("server is nil")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func showHelp() {
	fmt.Println(appName)
	fmt.Println("USAGE: wiener-server [options]")
	fmt.Println("OPTIONS:")
	fmt.Println("  -host        Set server listen host (default 0.0.0.0)")
	fmt.Println("  -port        Set server listen port (default 8080)")
	fmt.Println("  -log-level   Set log level (debug, info, warn, error)")
	fmt.Println("  -config      Load a YAML configuration file")
	fmt.Println("  -version     Show version information")
	fmt.Println("  -help        Show this help message")
	fmt.Println("ENDPOINTS: /filter (websocket), /healthz")
	fmt.Println("ENVIRONMENT VARIABLES: CONFIG_FILE, SERVER_HOST, SERVER_PORT, FILTER_BIT_DEPTH, FILTER_MAX_BLOCK_SIZE, ALLOWED_ORIGINS, LOG_LEVEL, LOG_FORMAT, LOG_FILE")
	fmt.Println("EXAMPLES: wiener-server -host 0.0.0.0 -port 8080 -config restore.yaml")
}

func showVersion() {
	fmt.Printf("%s %s\n", appName, appVersion)
}
