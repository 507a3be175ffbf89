package domain

// Event categories assigned to log lines by the classifier
const (
	EventInit           = "init"
	EventShutdown       = "shutdown"
	EventMatchStart     = "match_start"
	EventMatchEnd       = "match_end"
	EventWarmup         = "warmup"
	EventPlayerJoin     = "player_join"
	EventPlayerLeave    = "player_leave"
	EventPlayerInfo     = "player_info"
	EventKill           = "kill"
	EventFlagCapture    = "flag_capture"
	EventFlagTaken      = "flag_taken"
	EventFlagReturn     = "flag_return"
	EventFlagDrop       = "flag_drop"
	EventObeliskDestroy = "obelisk_destroy"
	EventSkullScore     = "skull_score"
	EventTeamChange     = "team_change"
	EventSay            = "say"
	EventSayTeam        = "say_team"
	EventTell           = "tell"
	EventSayRcon        = "say_rcon"
	EventAward          = "award"
	EventScore          = "score"
	EventItem           = "item"
	EventOther          = "other"
)

// HighlightEvents are the categories that stay visible when a viewer turns
// on highlight-only mode
var HighlightEvents = map[string]bool{
	EventMatchStart:     true,
	EventMatchEnd:       true,
	EventKill:           true,
	EventFlagCapture:    true,
	EventFlagTaken:      true,
	EventFlagReturn:     true,
	EventFlagDrop:       true,
	EventObeliskDestroy: true,
	EventSkullScore:     true,
	EventAward:          true,
	EventSay:            true,
	EventSayTeam:        true,
	EventTell:           true,
	EventSayRcon:        true,
}

// IsHighlight reports whether eventType is shown in highlight-only mode
func IsHighlight(eventType string) bool {
	return HighlightEvents[eventType]
}

// Live message types sent over the log websocket
const (
	MessageLines = "lines"
	MessageError = "error"
)

// LiveMessage is the envelope pushed to live log subscribers
type LiveMessage struct {
	Type     string     `json:"type"`
	ServerID int64      `json:"server_id"`
	Lines    []LiveLine `json:"lines,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// LiveLine is one appended log line with its category. Line is the 0-based
// line number in the file; it restarts at 0 after truncation or rotation.
type LiveLine struct {
	Line      int    `json:"line"`
	Content   string `json:"content"`
	EventType string `json:"event_type"`
}
