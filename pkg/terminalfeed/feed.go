package terminalfeed

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

const truncationMarker = "...[truncated]"

// FeedObserver receives feed events for metrics collection.
type FeedObserver interface {
	ObserveFeedDrop()
	ObserveSubscribers(count int)
}

// Config configures a Feed.
type Config struct {
	// BufferSize is the ring buffer capacity.
	BufferSize int

	// BacklogLines is how many recent lines a new subscriber is replayed.
	BacklogLines int

	// SubscriberQueueSize bounds each subscriber's channel; a slow consumer
	// loses its oldest queued lines, never blocks publishers.
	SubscriberQueueSize int

	// MaxLineChars caps stored line length; longer lines are truncated
	// with a marker.
	MaxLineChars int

	// InstanceID identifies this replica in multi-replica deployments.
	InstanceID string

	// RedactExtraPatterns are extra "||"-separated redact regexps.
	RedactExtraPatterns string

	// Bus, when non-nil, relays locally published events to peer replicas.
	Bus Bus

	Observer FeedObserver
	Logger   *slog.Logger
}

// Subscriber is one attached feed consumer. Filters are fixed at subscribe
// time; a consumer that wants different filters reconnects.
type Subscriber struct {
	ch       chan Event
	minLevel string
	source   string
}

// Events returns the subscriber's receive channel.
func (s *Subscriber) Events() <-chan Event { return s.ch }

func (s *Subscriber) wants(ev Event) bool {
	if !levelAtLeast(ev.Level, s.minLevel) {
		return false
	}
	if s.source != "" && ev.Source != s.source {
		return false
	}
	return true
}

// Stats is a snapshot of feed state.
type Stats struct {
	BufferedEvents int `json:"buffered_events"`
	Subscribers    int `json:"subscribers"`
	DroppedEvents  int `json:"dropped_events"`
}

// Feed is the in-process live log hub: a bounded ring buffer of recent
// events, fan-out to bounded subscriber queues, and optional relay over a
// Bus so every replica sees every replica's lines.
//
// Publishing never blocks. A full subscriber queue sheds its oldest entry to
// make room, so a stalled SSE connection cannot back up the gateway.
type Feed struct {
	cfg      Config
	redactor *Redactor
	logger   *slog.Logger

	mu      sync.Mutex
	ring    []Event
	next    int
	filled  bool
	subs    map[*Subscriber]struct{}
	dropped int
}

// NewFeed creates a feed with the given configuration.
func NewFeed(cfg Config) *Feed {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.BacklogLines <= 0 {
		cfg.BacklogLines = 80
	}
	if cfg.BacklogLines > cfg.BufferSize {
		cfg.BacklogLines = cfg.BufferSize
	}
	if cfg.SubscriberQueueSize <= 0 {
		cfg.SubscriberQueueSize = 200
	}
	if cfg.MaxLineChars <= 0 {
		cfg.MaxLineChars = 2000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		cfg:      cfg,
		redactor: NewRedactor(cfg.RedactExtraPatterns, logger),
		logger:   logger.With("component", "terminalfeed"),
		ring:     make([]Event, cfg.BufferSize),
		subs:     make(map[*Subscriber]struct{}),
	}
}

// Publish records a locally produced line: redact, truncate, buffer, fan
// out, and relay to peer replicas over the bus.
func (f *Feed) Publish(level, source, message string) {
	ev := Event{
		TS:       time.Now().UTC(),
		Level:    NormalizeLevel(level),
		Source:   source,
		Message:  f.sanitize(message),
		Instance: f.cfg.InstanceID,
	}
	f.ingest(ev)

	if f.cfg.Bus != nil {
		if err := f.cfg.Bus.Publish(context.Background(), ev); err != nil {
			// Local delivery already happened; a bus outage only costs
			// cross-replica visibility.
			f.logger.Warn("feed bus publish failed", "error", err)
		}
	}
}

// Inject records an event received from a peer replica. The message was
// already redacted and truncated by the publishing side.
func (f *Feed) Inject(ev Event) {
	ev.Level = NormalizeLevel(ev.Level)
	f.ingest(ev)
}

func (f *Feed) ingest(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ring[f.next] = ev
	f.next = (f.next + 1) % len(f.ring)
	if f.next == 0 {
		f.filled = true
	}

	for sub := range f.subs {
		if sub.wants(ev) {
			f.push(sub, ev)
		}
	}
}

// push delivers without blocking, dropping the subscriber's oldest queued
// event when its channel is full.
func (f *Feed) push(sub *Subscriber, ev Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}
	select {
	case <-sub.ch:
		f.dropped++
		if f.cfg.Observer != nil {
			f.cfg.Observer.ObserveFeedDrop()
		}
	default:
	}
	select {
	case sub.ch <- ev:
	default:
		f.dropped++
		if f.cfg.Observer != nil {
			f.cfg.Observer.ObserveFeedDrop()
		}
	}
}

// Subscribe attaches a consumer with the given filters and replays the
// matching backlog into its queue before any live event arrives.
func (f *Feed) Subscribe(minLevel, source string) *Subscriber {
	sub := &Subscriber{
		ch:       make(chan Event, f.cfg.SubscriberQueueSize),
		minLevel: NormalizeLevel(minLevel),
		source:   source,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ev := range f.backlogLocked() {
		if sub.wants(ev) {
			f.push(sub, ev)
		}
	}
	f.subs[sub] = struct{}{}
	if f.cfg.Observer != nil {
		f.cfg.Observer.ObserveSubscribers(len(f.subs))
	}
	return sub
}

// Unsubscribe detaches a consumer. Its channel is not closed; the consumer
// simply stops receiving.
func (f *Feed) Unsubscribe(sub *Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, sub)
	if f.cfg.Observer != nil {
		f.cfg.Observer.ObserveSubscribers(len(f.subs))
	}
}

// backlogLocked returns up to BacklogLines most recent events, oldest first.
func (f *Feed) backlogLocked() []Event {
	var ordered []Event
	if f.filled {
		ordered = make([]Event, 0, len(f.ring))
		ordered = append(ordered, f.ring[f.next:]...)
		ordered = append(ordered, f.ring[:f.next]...)
	} else {
		ordered = append(ordered, f.ring[:f.next]...)
	}
	if len(ordered) > f.cfg.BacklogLines {
		ordered = ordered[len(ordered)-f.cfg.BacklogLines:]
	}
	return ordered
}

// Stats returns a snapshot of feed state.
func (f *Feed) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	buffered := f.next
	if f.filled {
		buffered = len(f.ring)
	}
	return Stats{
		BufferedEvents: buffered,
		Subscribers:    len(f.subs),
		DroppedEvents:  f.dropped,
	}
}

func (f *Feed) sanitize(message string) string {
	message = f.redactor.Redact(message)
	if len(message) > f.cfg.MaxLineChars {
		// Back off to a rune boundary so the cut never emits invalid UTF-8.
		cut := f.cfg.MaxLineChars
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut] + truncationMarker
	}
	return message
}
