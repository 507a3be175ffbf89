package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hostlog.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "auth:\n  jwt_secret: s3cret\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1" || cfg.Server.HTTPPort != 8080 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Server.SessionTTL != 10*time.Minute {
		t.Fatalf("SessionTTL = %v, want 10m", cfg.Server.SessionTTL)
	}
	if cfg.Logs.DefaultChunkSize != 500 || cfg.Logs.MaxChunkSize != 5000 || cfg.Logs.MaxQueryLength != 200 {
		t.Fatalf("logs = %+v", cfg.Logs)
	}
	if cfg.Logs.Search != "auto" || cfg.Logs.PollInterval != 100*time.Millisecond {
		t.Fatalf("logs = %+v", cfg.Logs)
	}
	if cfg.Auth.TokenDuration != 24*time.Hour {
		t.Fatalf("TokenDuration = %v", cfg.Auth.TokenDuration)
	}
}

func TestLoad_GameServers(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  http_port: 9090
  session_ttl: 2m
logs:
  search: native
  rate_limit: 5
game_servers:
  - name: ffa-1
    address: 10.0.0.5:27960
    log_path: /srv/q3/ffa-1/games.log
  - name: ctf-1
    address: 10.0.0.6:27960
    log_path: /srv/q3/ctf-1/games.log
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.GameServers) != 2 || cfg.GameServers[1].LogPath != "/srv/q3/ctf-1/games.log" {
		t.Fatalf("GameServers = %+v", cfg.GameServers)
	}
	if cfg.Server.HTTPPort != 9090 || cfg.Server.SessionTTL != 2*time.Minute {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Logs.RateBurst != 10 {
		t.Fatalf("RateBurst = %d, want 10", cfg.Logs.RateBurst)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "search mode", body: "logs:\n  search: regex\n", want: "logs.search"},
		{name: "chunk sizes", body: "logs:\n  default_chunk_size: 800\n  max_chunk_size: 800\n", want: "default_chunk_size"},
		{name: "negative rate", body: "logs:\n  rate_limit: -1\n", want: "rate limits"},
		{name: "duplicate server", body: "game_servers:\n  - name: a\n  - name: a\n", want: "duplicate"},
		{name: "unnamed server", body: "game_servers:\n  - address: x\n", want: "name is required"},
		{name: "bad yaml", body: "logs: [", want: "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("Load() of a missing file succeeded")
	}
}
