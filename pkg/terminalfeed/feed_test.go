package terminalfeed

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func drain(sub *Subscriber) []Event {
	var events []Event
	for {
		select {
		case ev := <-sub.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestFeedBacklogReplay(t *testing.T) {
	feed := NewFeed(Config{BufferSize: 100, BacklogLines: 5})

	for i := 0; i < 20; i++ {
		feed.Publish(LevelInfo, "gateway", fmt.Sprintf("line %d", i))
	}

	sub := feed.Subscribe("", "")
	defer feed.Unsubscribe(sub)

	events := drain(sub)
	if len(events) != 5 {
		t.Fatalf("backlog = %d events, want 5", len(events))
	}
	// Oldest first, ending with the most recent line.
	if events[0].Message != "line 15" || events[4].Message != "line 19" {
		t.Fatalf("backlog window = %q .. %q", events[0].Message, events[4].Message)
	}
}

func TestFeedRingWraps(t *testing.T) {
	feed := NewFeed(Config{BufferSize: 4, BacklogLines: 4})

	for i := 0; i < 6; i++ {
		feed.Publish(LevelInfo, "gateway", fmt.Sprintf("line %d", i))
	}

	events := drain(feed.Subscribe("", ""))
	if len(events) != 4 {
		t.Fatalf("backlog = %d, want full ring", len(events))
	}
	if events[0].Message != "line 2" || events[3].Message != "line 5" {
		t.Fatalf("ring window = %q .. %q, oldest lines must be overwritten", events[0].Message, events[3].Message)
	}

	stats := feed.Stats()
	if stats.BufferedEvents != 4 {
		t.Fatalf("BufferedEvents = %d", stats.BufferedEvents)
	}
}

func TestFeedLevelAndSourceFilters(t *testing.T) {
	feed := NewFeed(Config{BufferSize: 100, BacklogLines: 100})

	feed.Publish(LevelDebug, "gateway", "debug line")
	feed.Publish(LevelInfo, "gateway", "info line")
	feed.Publish(LevelError, "runtime", "error line")

	warnOnly := drain(feed.Subscribe("WARNING", ""))
	if len(warnOnly) != 1 || warnOnly[0].Message != "error line" {
		t.Fatalf("warn filter = %v", warnOnly)
	}

	gatewayOnly := drain(feed.Subscribe("DEBUG", "gateway"))
	if len(gatewayOnly) != 2 {
		t.Fatalf("source filter = %d events, want 2", len(gatewayOnly))
	}

	// Live events honor the same filters.
	sub := feed.Subscribe("ERROR", "")
	feed.Publish(LevelInfo, "gateway", "ignored")
	feed.Publish(LevelCritical, "gateway", "kept")
	live := drain(sub)
	if len(live) != 1 || live[0].Message != "kept" {
		t.Fatalf("live filter = %v", live)
	}
}

func TestFeedSlowSubscriberDropsOldest(t *testing.T) {
	feed := NewFeed(Config{BufferSize: 100, BacklogLines: 1, SubscriberQueueSize: 3})
	sub := feed.Subscribe("", "")

	for i := 0; i < 5; i++ {
		feed.Publish(LevelInfo, "gateway", fmt.Sprintf("line %d", i))
	}

	events := drain(sub)
	if len(events) != 3 {
		t.Fatalf("queued = %d, want queue capacity", len(events))
	}
	// The newest lines survive; the oldest were shed.
	if events[0].Message != "line 2" || events[2].Message != "line 4" {
		t.Fatalf("queue window = %q .. %q", events[0].Message, events[2].Message)
	}
	if feed.Stats().DroppedEvents != 2 {
		t.Fatalf("DroppedEvents = %d, want 2", feed.Stats().DroppedEvents)
	}
}

func TestFeedTruncatesLongLines(t *testing.T) {
	feed := NewFeed(Config{BufferSize: 10, BacklogLines: 10, MaxLineChars: 20})

	feed.Publish(LevelInfo, "gateway", strings.Repeat("x", 100))

	events := drain(feed.Subscribe("", ""))
	if len(events) != 1 {
		t.Fatal("event missing")
	}
	msg := events[0].Message
	if !strings.HasSuffix(msg, truncationMarker) {
		t.Fatalf("message %q lacks truncation marker", msg)
	}
	if len(msg) != 20+len(truncationMarker) {
		t.Fatalf("len = %d", len(msg))
	}
}

func TestFeedTruncationKeepsRuneBoundaries(t *testing.T) {
	feed := NewFeed(Config{BufferSize: 10, BacklogLines: 10, MaxLineChars: 5})

	// The cap lands inside the two-byte "é"; the cut must back off to the
	// previous boundary instead of emitting half a rune.
	feed.Publish(LevelInfo, "gateway", "aaaaé and plenty more")

	events := drain(feed.Subscribe("", ""))
	if len(events) != 1 {
		t.Fatal("event missing")
	}
	msg := events[0].Message
	if !utf8.ValidString(msg) {
		t.Fatalf("truncated message %q is not valid UTF-8", msg)
	}
	if msg != "aaaa"+truncationMarker {
		t.Fatalf("message = %q, want cut at the rune boundary", msg)
	}
}

func TestFeedRedactsAtPublishTime(t *testing.T) {
	feed := NewFeed(Config{BufferSize: 10, BacklogLines: 10})

	feed.Publish(LevelInfo, "gateway", "calling with Authorization: Bearer abcdef123456789")

	// Even a subscriber attached later must never see the secret: redaction
	// happens before the line enters the ring.
	events := drain(feed.Subscribe("", ""))
	if len(events) != 1 {
		t.Fatal("event missing")
	}
	if strings.Contains(events[0].Message, "abcdef123456789") {
		t.Fatalf("secret survived into backlog: %q", events[0].Message)
	}
	if !strings.Contains(events[0].Message, redactedPlaceholder) {
		t.Fatalf("no redaction marker in %q", events[0].Message)
	}
}

func TestFeedInjectNormalizesLevel(t *testing.T) {
	feed := NewFeed(Config{BufferSize: 10, BacklogLines: 10, InstanceID: "replica-a"})

	feed.Inject(Event{Level: "warn", Source: "gateway", Message: "from peer", Instance: "replica-b"})

	events := drain(feed.Subscribe("WARNING", ""))
	if len(events) != 1 {
		t.Fatal("injected event not delivered")
	}
	if events[0].Level != LevelWarning {
		t.Fatalf("level = %q, want normalized WARNING", events[0].Level)
	}
	if events[0].Instance != "replica-b" {
		t.Fatalf("instance = %q, peer identity must be preserved", events[0].Instance)
	}
}

func TestFeedUnsubscribeStopsDelivery(t *testing.T) {
	feed := NewFeed(Config{BufferSize: 10, BacklogLines: 1})

	sub := feed.Subscribe("", "")
	feed.Unsubscribe(sub)
	feed.Publish(LevelInfo, "gateway", "after unsubscribe")

	if events := drain(sub); len(events) != 0 {
		t.Fatalf("received %d events after unsubscribe", len(events))
	}
	if feed.Stats().Subscribers != 0 {
		t.Fatalf("Subscribers = %d", feed.Stats().Subscribers)
	}
}

func TestNormalizeLevel(t *testing.T) {
	tests := []struct{ in, want string }{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarning},
		{"WARNING", LevelWarning},
		{" error ", LevelError},
		{"critical", LevelCritical},
		{"trace", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := NormalizeLevel(tt.in); got != tt.want {
			t.Errorf("NormalizeLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
