package profileauth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

/*
====================================
AUDIT EVENTS
====================================
*/

// AuditEvent records one security-relevant outcome. Reason is a stable
// label (see AuditErrorCode), never an error string, and no field ever
// holds a token, code, hash or password.
type AuditEvent struct {
	At        time.Time         `json:"at"`
	Type      string            `json:"type"`
	UserID    string            `json:"user_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	OK        bool              `json:"ok"`
	Reason    string            `json:"reason,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// AuditSink consumes events on the engine's audit goroutine. Emit may block;
// the queue in front of it decides whether callers wait.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, event AuditEvent)

func (f AuditSinkFunc) Emit(ctx context.Context, event AuditEvent) { f(ctx, event) }

var discardAudit = AuditSinkFunc(func(context.Context, AuditEvent) {})

/*
====================================
SINKS
====================================
*/

// SlogSink logs events through a structured logger: successes at Info,
// failures at Warn.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger.With("component", "audit")}
}

func (s *SlogSink) Emit(ctx context.Context, ev AuditEvent) {
	attrs := []slog.Attr{
		slog.String("type", ev.Type),
		slog.Bool("ok", ev.OK),
		slog.Time("at", ev.At),
	}
	for _, kv := range [...][2]string{{"user_id", ev.UserID}, {"request_id", ev.RequestID}, {"ip", ev.IP}, {"reason", ev.Reason}} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}
	for _, k := range slices.Sorted(maps.Keys(ev.Attrs)) {
		attrs = append(attrs, slog.String("attr."+k, ev.Attrs[k]))
	}

	level := slog.LevelInfo
	if !ev.OK {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// JSONWriterSink writes newline-delimited JSON. Write errors are dropped.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		w = io.Discard
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, ev AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(ev)
}

/*
====================================
QUEUE
====================================
*/

// auditQueue decouples request goroutines from a slow sink. A nil queue is
// valid and drops everything, which is how disabled audit is represented.
type auditQueue struct {
	sink       AuditSink
	events     chan AuditEvent
	stop       chan struct{}
	dropIfFull bool

	worker   sync.WaitGroup
	stopOnce sync.Once
	stopped  atomic.Bool
	dropped  atomic.Uint64
}

func newAuditQueue(cfg AuditConfig, sink AuditSink) *auditQueue {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = discardAudit
	}
	q := &auditQueue{
		sink:       sink,
		events:     make(chan AuditEvent, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}
	q.worker.Go(q.loop)
	return q
}

func (q *auditQueue) loop() {
	ctx := context.Background()
	for {
		select {
		case ev := <-q.events:
			q.sink.Emit(ctx, ev)
		case <-q.stop:
			// Flush whatever was queued before Close.
			for len(q.events) > 0 {
				q.sink.Emit(ctx, <-q.events)
			}
			return
		}
	}
}

// Emit enqueues ev. With dropIfFull a full buffer counts a drop and returns
// at once; otherwise Emit waits for room, ctx, or Close.
func (q *auditQueue) Emit(ctx context.Context, ev AuditEvent) {
	if q == nil || q.stopped.Load() {
		return
	}
	if q.dropIfFull {
		select {
		case q.events <- ev:
		case <-q.stop:
		default:
			q.dropped.Add(1)
		}
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case q.events <- ev:
	case <-ctx.Done():
	case <-q.stop:
	}
}

// Close stops intake, flushes the buffer into the sink and waits for it.
// Safe to call more than once.
func (q *auditQueue) Close() {
	if q == nil {
		return
	}
	q.stopOnce.Do(func() {
		q.stopped.Store(true)
		close(q.stop)
		q.worker.Wait()
	})
}

func (q *auditQueue) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}
