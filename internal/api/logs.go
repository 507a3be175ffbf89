package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/ernie/hostlog/internal/logindex"
	"github.com/ernie/hostlog/internal/logquery"
)

// logIndex resolves the server and view session of a log request
func (r *Router) logIndex(w http.ResponseWriter, req *http.Request) (*logindex.Index, bool) {
	server, ok := r.serverFromPath(w, req)
	if !ok {
		return nil, false
	}
	if server.LogPath == "" {
		writeError(w, http.StatusNotFound, errNoLog.Error())
		return nil, false
	}
	return r.sessions.FromRequest(w, req).Get(server.LogPath), true
}

// handleLogWindow returns the lines around a percentage of the log
func (r *Router) handleLogWindow(w http.ResponseWriter, req *http.Request) {
	percent, err := parsePercent(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	idx, ok := r.logIndex(w, req)
	if !ok {
		return
	}

	win, err := r.engine.AtPercent(req.Context(), idx, logquery.PercentRequest{
		Percent: percent,
		Count:   parseSize(req, "count"),
		Query:   req.URL.Query().Get("q"),
	})
	if err != nil {
		r.logReadError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

func (r *Router) handleLogForward(w http.ResponseWriter, req *http.Request) {
	r.handleLogChunk(w, req, false)
}

func (r *Router) handleLogReverse(w http.ResponseWriter, req *http.Request) {
	r.handleLogChunk(w, req, true)
}

// handleLogChunk returns one page of the log, oldest first or newest first
func (r *Router) handleLogChunk(w http.ResponseWriter, req *http.Request, reverse bool) {
	idx, ok := r.logIndex(w, req)
	if !ok {
		return
	}

	result, err := r.engine.Chunk(req.Context(), idx, logquery.ChunkRequest{
		Offset:    parseOffset(req),
		ChunkSize: parseSize(req, "chunk_size"),
		Query:     req.URL.Query().Get("q"),
		Reverse:   reverse,
	})
	if err != nil {
		r.logReadError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) logReadError(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, req.Context().Err()) {
		return
	}
	log.Printf("Error reading log for %s: %v", req.URL.Path, err)
	writeError(w, http.StatusInternalServerError, "failed to read log")
}
