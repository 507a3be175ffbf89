package collector

import (
	"regexp"
	"strings"

	"github.com/ernie/hostlog/internal/domain"
)

var (
	// ISO timestamp prefix written by servers started with the timestamped
	// logger, e.g. "2026-01-05T14:03:22.118Z Kill: ..."
	timestampRegex = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?)\s+`)
	// Classic level time prefix, e.g. "  3:07 Kill: ..."
	levelTimeRegex = regexp.MustCompile(`^\s*\d+:\d{2}\s+`)
)

// A rule maps a line that matches pattern to an event category. Rules are
// tried in order and the first match wins.
type rule struct {
	pattern   *regexp.Regexp
	eventType string
}

var rules = []rule{
	{regexp.MustCompile(`^InitGame: `), domain.EventInit},
	{regexp.MustCompile(`^ServerStartup:$`), domain.EventInit},
	{regexp.MustCompile(`^ShutdownGame:`), domain.EventShutdown},
	{regexp.MustCompile(`^ServerShutdown:$`), domain.EventShutdown},
	{regexp.MustCompile(`^WarmupEnd:$`), domain.EventMatchStart},
	{regexp.MustCompile(`^MatchState: active\b`), domain.EventMatchStart},
	{regexp.MustCompile(`^Warmup: \d+$`), domain.EventWarmup},
	{regexp.MustCompile(`^MatchState: warmup\b`), domain.EventWarmup},
	{regexp.MustCompile(`^Exit: `), domain.EventMatchEnd},
	{regexp.MustCompile(`^MatchState: intermission\b`), domain.EventMatchEnd},
	{regexp.MustCompile(`^ClientConnect: \d+$`), domain.EventPlayerJoin},
	{regexp.MustCompile(`^ClientBegin: \d+$`), domain.EventPlayerJoin},
	{regexp.MustCompile(`^ClientDisconnect: \d+`), domain.EventPlayerLeave},
	{regexp.MustCompile(`^ClientUserinfoChanged: \d+ `), domain.EventPlayerInfo},
	{regexp.MustCompile(`^Kill: \d+ \d+ \d+: .+ killed .+ by .+$`), domain.EventKill},
	{regexp.MustCompile(`^FlagCapture: \d+ \d+: `), domain.EventFlagCapture},
	{regexp.MustCompile(`^FlagTaken: \d+ \d+: `), domain.EventFlagTaken},
	{regexp.MustCompile(`^FlagReturn: -?\d+ \d+: `), domain.EventFlagReturn},
	{regexp.MustCompile(`^FlagDrop: \d+ \d+: `), domain.EventFlagDrop},
	{regexp.MustCompile(`^ObeliskDestroy: \d+ -?\d+: `), domain.EventObeliskDestroy},
	{regexp.MustCompile(`^SkullScore: \d+ \d+ \d+: `), domain.EventSkullScore},
	{regexp.MustCompile(`^TeamChange: \d+ \d+ \d+: `), domain.EventTeamChange},
	{regexp.MustCompile(`^Award: \d+ \w+: `), domain.EventAward},
	{regexp.MustCompile(`^Assist: \d+ \d+ (return|frag): `), domain.EventAward},
	{regexp.MustCompile(`^SayTeam: \d+ ".+": `), domain.EventSayTeam},
	{regexp.MustCompile(`^Say: \d+ ".+": `), domain.EventSay},
	{regexp.MustCompile(`^say: .+: `), domain.EventSay},
	{regexp.MustCompile(`^sayteam: .+: `), domain.EventSayTeam},
	{regexp.MustCompile(`^Tell: \d+ \d+ ".+" ".+": `), domain.EventTell},
	{regexp.MustCompile(`^tell: .+ to .+: `), domain.EventTell},
	{regexp.MustCompile(`^SayRcon: `), domain.EventSayRcon},
	{regexp.MustCompile(`^score: -?\d+\s+ping: \d+`), domain.EventScore},
	{regexp.MustCompile(`^red:-?\d+\s+blue:-?\d+`), domain.EventScore},
	{regexp.MustCompile(`^Item: \d+ \w+`), domain.EventItem},
}

// stripPrefix removes the timestamp or level time a server puts in front
// of each line
func stripPrefix(line string) string {
	line = strings.TrimRight(line, "\r\n")
	if loc := timestampRegex.FindStringIndex(line); loc != nil {
		return line[loc[1]:]
	}
	if loc := levelTimeRegex.FindStringIndex(line); loc != nil {
		return line[loc[1]:]
	}
	return strings.TrimLeft(line, " \t")
}

// Classify returns the event category of a raw log line. Lines that match
// no known event are domain.EventOther.
func Classify(line string) string {
	body := stripPrefix(line)
	if body == "" {
		return domain.EventOther
	}
	for _, r := range rules {
		if r.pattern.MatchString(body) {
			return r.eventType
		}
	}
	return domain.EventOther
}

// ClassifyLines pairs every line with its category
func ClassifyLines(lines []Line) []domain.LiveLine {
	out := make([]domain.LiveLine, len(lines))
	for i, line := range lines {
		out[i] = domain.LiveLine{Line: line.Number, Content: line.Text, EventType: Classify(line.Text)}
	}
	return out
}
