package terminalfeed

import (
	"strings"
	"time"
)

// Event is one line of the live terminal feed.
type Event struct {
	TS       time.Time `json:"ts"`
	Level    string    `json:"level"`
	Source   string    `json:"source"`
	Message  string    `json:"message"`
	Instance string    `json:"instance,omitempty"`
}

// Level names in severity order. Unknown levels rank below DEBUG so a
// malformed event never outranks a real one.
const (
	LevelDebug    = "DEBUG"
	LevelInfo     = "INFO"
	LevelWarning  = "WARNING"
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
)

var levelRank = map[string]int{
	LevelDebug:    10,
	LevelInfo:     20,
	LevelWarning:  30,
	LevelError:    40,
	LevelCritical: 50,
}

// NormalizeLevel maps a level string to its canonical name, defaulting to
// INFO for unknown input.
func NormalizeLevel(level string) string {
	upper := strings.ToUpper(strings.TrimSpace(level))
	if _, ok := levelRank[upper]; ok {
		return upper
	}
	if upper == "WARN" {
		return LevelWarning
	}
	return LevelInfo
}

// levelAtLeast reports whether level meets the min threshold.
func levelAtLeast(level, min string) bool {
	return levelRank[level] >= levelRank[min]
}
