package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edirooss/slot-server/internal/domain/event"
	"github.com/edirooss/slot-server/internal/infrastructure/msglog"
	"github.com/edirooss/slot-server/internal/infrastructure/slotpool"
	"github.com/edirooss/slot-server/internal/session"
	"go.uber.org/zap"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("server closed")

// rejectWriteTimeout bounds the rejection write so a stalled peer cannot
// hold up the accept loop.
const rejectWriteTimeout = time.Second

type Options struct {
	MaxClients     int // slot pool size; default 100
	ReadBufferSize int // per-read chunk size; default 256
}

func (o *Options) setDefaults() {
	if o.MaxClients <= 0 {
		o.MaxClients = 100
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = session.DefaultReadBufferSize
	}
}

// Stats is a point-in-time view of slot usage and accept outcomes.
type Stats struct {
	Capacity int    `json:"capacity"`
	InUse    int    `json:"in_use"`
	Free     int    `json:"free"`
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}

// Server turns accepted TCP connections into sessions, one slot each.
//
// Accept loop:
//   - Reserve a slot; on success spawn session.Run in its own goroutine and
//     go straight back to Accept (sessions are never awaited)
//   - When the pool is exhausted, write session.RejectMessage and close the
//     connection; no session, log entry or registry entry is created
//
// The loop only stops when Close is called. Close stops accepting; live
// sessions keep running until their peers disconnect.
type Server struct {
	log      *zap.Logger
	slots    *slotpool.Pool
	messages *msglog.Log
	registry *session.Registry
	events   event.Publisher
	opts     Options
	now      func() time.Time // for tests; default time.Now

	mu       sync.Mutex
	listener net.Listener
	closed   bool

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// New creates a server. events may be nil.
func New(log *zap.Logger, opts Options, events event.Publisher) *Server {
	opts.setDefaults()
	if events == nil {
		events = event.Nop{}
	}
	return &Server{
		log:      log.Named("server"),
		slots:    slotpool.New(opts.MaxClients),
		messages: msglog.New(),
		registry: session.NewRegistry(),
		events:   events,
		opts:     opts,
		now:      time.Now,
	}
}

// ListenAndServe binds addr and runs the accept loop.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve runs the accept loop on ln. It blocks until Close is called
// (returning ErrServerClosed) or the listener fails permanently.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("starting server",
		zap.String("addr", ln.Addr().String()),
		zap.Int("max_clients", s.opts.MaxClients))

	var tempDelay time.Duration // backoff after accept failures
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if maxDelay := time.Second; tempDelay > maxDelay {
				tempDelay = maxDelay
			}
			s.log.Warn("accept failed; retrying", zap.Error(err), zap.Duration("retry_in", tempDelay))
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		s.handleConn(conn)
	}
}

// handleConn either hands conn to a new session or rejects it.
func (s *Server) handleConn(conn net.Conn) {
	id, ok := s.slots.Reserve()
	if !ok {
		s.reject(conn)
		return
	}
	s.accepted.Add(1)

	sess := session.New(session.Deps{
		Log:            s.log.Named("session"),
		Slots:          s.slots,
		Messages:       s.messages,
		Registry:       s.registry,
		Events:         s.events,
		ReadBufferSize: s.opts.ReadBufferSize,
	}, id, conn, s.now())

	go sess.Run()
}

func (s *Server) reject(conn net.Conn) {
	s.rejected.Add(1)

	remote := conn.RemoteAddr().String()
	s.log.Warn("max clients reached; rejecting", zap.String("remote", remote))

	_ = conn.SetWriteDeadline(time.Now().Add(rejectWriteTimeout))
	if _, err := io.WriteString(conn, session.RejectMessage); err != nil {
		s.log.Debug("reject write failed", zap.String("remote", remote), zap.Error(err))
	}
	_ = conn.Close()

	s.events.Publish(event.Event{
		Kind:   event.SessionRejected,
		Slot:   -1,
		Remote: remote,
		At:     time.Now(),
	})
}

// Close stops accepting new connections. Live sessions are not interrupted.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Sessions exposes the live session index (read-only use).
func (s *Server) Sessions() *session.Registry { return s.registry }

// Messages exposes the per-slot message log (read-only use).
func (s *Server) Messages() *msglog.Log { return s.messages }

// Stats returns current slot usage and accept counters.
func (s *Server) Stats() Stats {
	inUse := s.slots.InUse()
	capacity := s.slots.Capacity()
	return Stats{
		Capacity: capacity,
		InUse:    inUse,
		Free:     capacity - inUse,
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
	}
}
