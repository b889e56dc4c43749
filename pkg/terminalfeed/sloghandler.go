package terminalfeed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// FeedHandler is a slog.Handler that mirrors log records into the terminal
// feed while the wrapped handler keeps writing them to the normal sink.
type FeedHandler struct {
	next   slog.Handler
	feed   *Feed
	source string
	attrs  []slog.Attr
	groups []string
}

// NewFeedHandler wraps next so every record also lands in feed under the
// given source name.
func NewFeedHandler(next slog.Handler, feed *Feed, source string) *FeedHandler {
	return &FeedHandler{next: next, feed: feed, source: source}
}

func (h *FeedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *FeedHandler) Handle(ctx context.Context, record slog.Record) error {
	var sb strings.Builder
	sb.WriteString(record.Message)
	appendAttr := func(a slog.Attr) {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value.Any())
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	record.Attrs(func(a slog.Attr) bool {
		appendAttr(a)
		return true
	})
	h.feed.Publish(feedLevel(record.Level), h.source, sb.String())
	return h.next.Handle(ctx, record)
}

func (h *FeedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *FeedHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func feedLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarning
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}
