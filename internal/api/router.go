package api

import (
	"context"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/ernie/hostlog/internal/auth"
	"github.com/ernie/hostlog/internal/logquery"
	"github.com/ernie/hostlog/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux       *http.ServeMux
	store     *storage.Store
	engine    *logquery.Engine
	sessions  *SessionManager
	logStream *LogStreamManager
	limiter   *RateLimiter
	auth      *auth.Service
}

// NewRouter creates a new HTTP router
func NewRouter(store *storage.Store, engine *logquery.Engine, sessions *SessionManager, logStream *LogStreamManager, limiter *RateLimiter, authService *auth.Service) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		store:     store,
		engine:    engine,
		sessions:  sessions,
		logStream: logStream,
		limiter:   limiter,
		auth:      authService,
	}

	// API routes
	r.mux.HandleFunc("GET /api/servers", r.handleGetServers)
	r.mux.HandleFunc("GET /api/servers/{id}", r.handleGetServer)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)

	// Log routes (admin only); pages are large and compress well
	r.mux.HandleFunc("GET /api/servers/{id}/log-status", r.requireAdmin(r.handleLogStatus))
	r.mux.Handle("GET /api/servers/{id}/logs", r.logRoute(r.handleLogWindow))
	r.mux.Handle("GET /api/servers/{id}/logs/forward", r.logRoute(r.handleLogForward))
	r.mux.Handle("GET /api/servers/{id}/logs/reverse", r.logRoute(r.handleLogReverse))

	// WebSocket endpoint
	r.mux.HandleFunc("GET /ws/logs", r.handleLogWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

func (r *Router) logRoute(h http.HandlerFunc) http.Handler {
	return gzhttp.GzipHandler(r.requireAdmin(r.limiter.Wrap(h)))
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Log-Session")
	w.Header().Set("Access-Control-Expose-Headers", "X-Log-Session")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// RunSessionJanitor expires idle view sessions until ctx is done
func (r *Router) RunSessionJanitor(ctx context.Context) {
	r.sessions.Run(ctx)
}
