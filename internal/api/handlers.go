package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/ernie/hostlog/internal/domain"
	"github.com/ernie/hostlog/internal/storage"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseID parses an ID from the URL path
func parseID(req *http.Request, param string) (int64, error) {
	return strconv.ParseInt(req.PathValue(param), 10, 64)
}

// serverFromPath loads the server named by the {id} path value, writing
// the error response itself when it cannot
func (r *Router) serverFromPath(w http.ResponseWriter, req *http.Request) (*domain.Server, bool) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid server id")
		return nil, false
	}
	server, err := r.store.GetServerByID(req.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "server not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return server, true
}

// handleGetServers returns all servers
func (r *Router) handleGetServers(w http.ResponseWriter, req *http.Request) {
	servers, err := r.store.GetServers(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

// handleGetServer returns a single server
func (r *Router) handleGetServer(w http.ResponseWriter, req *http.Request) {
	server, ok := r.serverFromPath(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, server)
}

// handleLogStatus describes a server's log file and its live subscribers
func (r *Router) handleLogStatus(w http.ResponseWriter, req *http.Request) {
	server, ok := r.serverFromPath(w, req)
	if !ok {
		return
	}

	status := domain.LogStatus{
		ServerID:    server.ID,
		LogPath:     server.LogPath,
		Subscribers: r.logStream.Clients(server.ID),
		Tailing:     r.logStream.Tailing(server.ID),
	}
	if server.LogPath != "" {
		if info, err := os.Stat(server.LogPath); err == nil {
			modified := info.ModTime().UTC()
			status.Exists = true
			status.SizeBytes = info.Size()
			status.ModifiedAt = &modified

			idx := r.sessions.FromRequest(w, req).Get(server.LogPath)
			if total, err := idx.TotalLines(); err == nil {
				status.TotalLines = total
			}
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// handleHealth returns a simple health check response
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
