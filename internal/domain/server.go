package domain

import "time"

// Server represents a rented game server whose log can be viewed
type Server struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	LogPath   string    `json:"log_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LogStatus describes a server's log file as seen by the viewer
type LogStatus struct {
	ServerID    int64      `json:"server_id"`
	LogPath     string     `json:"log_path"`
	Exists      bool       `json:"exists"`
	SizeBytes   int64      `json:"size_bytes"`
	TotalLines  int        `json:"total_lines"`
	ModifiedAt  *time.Time `json:"modified_at,omitempty"`
	Subscribers int        `json:"subscribers"` // live websocket clients
	Tailing     bool       `json:"tailing"`     // a tailer is publishing this log
}
