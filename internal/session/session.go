package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/edirooss/slot-server/internal/domain/event"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultReadBufferSize is the read chunk size; one chunk is one message.
const DefaultReadBufferSize = 256

// Close reasons reported in logs and events.
const (
	ReasonDisconnected = "disconnected"
	ReasonIOFailure    = "io_failure"
)

// SlotReleaser returns a slot to its allocator.
type SlotReleaser interface {
	Release(id int)
}

// MessageStore records received messages per slot.
type MessageStore interface {
	Append(slot int, msg string)
	Clear(slot int)
}

// Deps are the shared collaborators every session needs.
// Log, Registry and Events may be left nil.
type Deps struct {
	Log            *zap.Logger
	Slots          SlotReleaser
	Messages       MessageStore
	Registry       *Registry
	Events         event.Publisher
	ReadBufferSize int
}

// Session owns one accepted connection bound to a reserved slot.
//
// Lifecycle:
//
//	New → Run → (peer close | I/O error | panic) → close
//
// Run reads fixed-size chunks until the peer closes or an I/O error occurs,
// replying to each chunk. On every exit path close runs exactly once: the
// connection is closed, the slot's message log cleared and the slot released,
// in that order. A Session is not shared; only its own goroutine touches it.
type Session struct {
	log         *zap.Logger
	slot        int
	conn        net.Conn
	connectedAt time.Time
	traceID     string
	remote      string

	slots    SlotReleaser
	messages MessageStore
	registry *Registry
	events   event.Publisher
	bufSize  int

	closeOnce sync.Once
}

// New binds conn to slot. The caller must own slot; ownership passes to the
// session and is given back to deps.Slots when Run returns.
func New(deps Deps, slot int, conn net.Conn, connectedAt time.Time) *Session {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Events == nil {
		deps.Events = event.Nop{}
	}
	if deps.ReadBufferSize <= 0 {
		deps.ReadBufferSize = DefaultReadBufferSize
	}

	traceID := uuid.NewString()
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	return &Session{
		log: deps.Log.With(
			zap.Int("slot", slot),
			zap.String("trace_id", traceID),
			zap.String("remote", remote),
		),
		slot:        slot,
		conn:        conn,
		connectedAt: connectedAt,
		traceID:     traceID,
		remote:      remote,
		slots:       deps.Slots,
		messages:    deps.Messages,
		registry:    deps.Registry,
		events:      deps.Events,
		bufSize:     deps.ReadBufferSize,
	}
}

// Slot returns the slot the session is bound to.
func (s *Session) Slot() int { return s.slot }

// Info returns the session's inspection snapshot.
func (s *Session) Info() Info {
	return Info{
		Slot:        s.slot,
		TraceID:     s.traceID,
		Remote:      s.remote,
		ConnectedAt: s.connectedAt,
	}
}

// Run serves the connection until it ends, then cleans up.
// Blocking; intended to be started with `go`.
func (s *Session) Run() {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		s.close(err)
	}()

	s.registry.add(s.Info())
	s.log.Info("client connected")
	s.publish(event.Event{Kind: event.SessionConnected})

	err = s.serve()
}

// serve is the read loop. Returns nil on orderly peer close (io.EOF).
func (s *Session) serve() error {
	buf := make([]byte, s.bufSize)
	for {
		n, rerr := s.conn.Read(buf)
		if n > 0 {
			if err := s.handle(string(buf[:n])); err != nil {
				return err
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read: %w", rerr)
		}
	}
}

// handle records one message and writes its reply.
func (s *Session) handle(msg string) error {
	s.messages.Append(s.slot, msg)
	s.log.Debug("received", zap.String("message", msg))
	s.publish(event.Event{Kind: event.SessionMessage, Message: msg})

	reply := Reply(s.slot, s.connectedAt, msg)
	if _, err := io.WriteString(s.conn, reply); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// close tears the session down exactly once.
// The registry entry and message log are dropped before the slot is
// released so a new owner of the slot never inherits them.
func (s *Session) close(cause error) {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Debug("connection close failed", zap.Error(err))
		}

		s.messages.Clear(s.slot)
		s.registry.remove(s.slot)
		s.slots.Release(s.slot)

		reason := ReasonDisconnected
		if cause != nil {
			reason = ReasonIOFailure
			s.log.Warn("session io failure", zap.Error(cause))
		}
		s.log.Info("client disconnected",
			zap.String("reason", reason),
			zap.Duration("duration", time.Since(s.connectedAt)))
		s.publish(event.Event{Kind: event.SessionClosed, Reason: reason})
	})
}

func (s *Session) publish(ev event.Event) {
	ev.Slot = s.slot
	ev.TraceID = s.traceID
	ev.Remote = s.remote
	ev.At = time.Now()
	s.events.Publish(ev)
}
