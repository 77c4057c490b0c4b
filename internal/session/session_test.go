package session

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/edirooss/slot-server/internal/domain/event"
	"github.com/edirooss/slot-server/internal/infrastructure/msglog"
	"github.com/edirooss/slot-server/internal/infrastructure/slotpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(ev event.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) kinds() []event.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Kind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

func (p *recordingPublisher) last() event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fixture struct {
	pool   *slotpool.Pool
	log    *msglog.Log
	reg    *Registry
	events *recordingPublisher
	slot   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		pool:   slotpool.New(4),
		log:    msglog.New(),
		reg:    NewRegistry(),
		events: &recordingPublisher{},
	}
	slot, ok := f.pool.Reserve()
	require.True(t, ok)
	f.slot = slot
	return f
}

func (f *fixture) deps(bufSize int) Deps {
	return Deps{
		Log:            zap.NewNop(),
		Slots:          f.pool,
		Messages:       f.log,
		Registry:       f.reg,
		Events:         f.events,
		ReadBufferSize: bufSize,
	}
}

// start runs a session over one end of a pipe and returns the client end.
func (f *fixture) start(t *testing.T, bufSize int, connectedAt time.Time) (net.Conn, <-chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	s := New(f.deps(bufSize), f.slot, server, connectedAt)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run()
	}()
	return client, done
}

func (f *fixture) assertCleanedUp(t *testing.T) {
	t.Helper()
	_, ok := f.log.Messages(f.slot)
	assert.False(t, ok, "message log entry must be cleared")
	_, ok = f.reg.Get(f.slot)
	assert.False(t, ok, "registry entry must be removed")
	assert.Zero(t, f.pool.InUse(), "slot must be released")

	id, ok := f.pool.Reserve()
	require.True(t, ok)
	assert.Equal(t, f.slot, id)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
	}
}

func roundTrip(t *testing.T, c net.Conn, msg string) string {
	t.Helper()
	_, err := io.WriteString(c, msg)
	require.NoError(t, err)

	buf := make([]byte, 1024)
	n, err := c.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestReply(t *testing.T) {
	t.Parallel()

	connectedAt := time.Date(2024, 3, 5, 10, 15, 42, 0, time.Local)

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{name: "echo", msg: "hello", want: "Your message: hello"},
		{name: "clientinfo", msg: "/clientinfo", want: "client id: 7, connected since: 03/05/2024 10:15"},
		{name: "clientinfo with newline is echoed", msg: "/clientinfo\n", want: "Your message: /clientinfo\n"},
		{name: "bytes preserved", msg: "hé\x00llo", want: "Your message: hé\x00llo"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Reply(7, connectedAt, tc.msg))
		})
	}
}

func TestRunEchoAndClientInfo(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	connectedAt := time.Date(2024, 3, 5, 10, 15, 0, 0, time.Local)
	client, done := f.start(t, DefaultReadBufferSize, connectedAt)

	assert.Equal(t, "Your message: hello", roundTrip(t, client, "hello"))
	assert.Equal(t, "client id: 0, connected since: 03/05/2024 10:15", roundTrip(t, client, "/clientinfo"))

	info, ok := f.reg.Get(f.slot)
	require.True(t, ok)
	assert.Equal(t, f.slot, info.Slot)
	assert.Equal(t, connectedAt, info.ConnectedAt)
	assert.NotEmpty(t, info.TraceID)

	msgs, ok := f.log.Messages(f.slot)
	require.True(t, ok)
	assert.Equal(t, []string{"hello", "/clientinfo"}, msgs)

	require.NoError(t, client.Close())
	waitDone(t, done)

	f.assertCleanedUp(t)
	assert.Equal(t, []event.Kind{
		event.SessionConnected,
		event.SessionMessage,
		event.SessionMessage,
		event.SessionClosed,
	}, f.events.kinds())
	assert.Equal(t, ReasonDisconnected, f.events.last().Reason)
}

func TestRunLogsMessagesInOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	client, done := f.start(t, DefaultReadBufferSize, time.Now())

	for _, m := range []string{"M1", "M2", "M3"} {
		roundTrip(t, client, m)
	}

	msgs, ok := f.log.Messages(f.slot)
	require.True(t, ok)
	assert.Equal(t, []string{"M1", "M2", "M3"}, msgs)

	require.NoError(t, client.Close())
	waitDone(t, done)
	f.assertCleanedUp(t)
}

func TestRunSplitsOversizedMessages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	client, done := f.start(t, 4, time.Now())

	werr := make(chan error, 1)
	go func() {
		_, err := io.WriteString(client, "abcdefgh")
		werr <- err
	}()

	buf := make([]byte, 64)
	var replies []string
	for len(replies) < 2 {
		n, err := client.Read(buf)
		require.NoError(t, err)
		replies = append(replies, string(buf[:n]))
	}
	require.NoError(t, <-werr)

	assert.Equal(t, []string{"Your message: abcd", "Your message: efgh"}, replies)
	msgs, _ := f.log.Messages(f.slot)
	assert.Equal(t, []string{"abcd", "efgh"}, msgs)

	require.NoError(t, client.Close())
	waitDone(t, done)
	f.assertCleanedUp(t)
}

// faultyConn fails reads or writes on demand.
type faultyConn struct {
	net.Conn
	readErr  error
	writeErr error
	payload  string
	served   bool

	mu     sync.Mutex
	closed int
}

func (c *faultyConn) Read(b []byte) (int, error) {
	if !c.served && c.payload != "" {
		c.served = true
		return copy(b, c.payload), nil
	}
	return 0, c.readErr
}

func (c *faultyConn) Write(b []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return len(b), nil
}

func (c *faultyConn) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *faultyConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5555} }

func TestRunReadFailureCleansUp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn := &faultyConn{payload: "hi", readErr: errors.New("connection reset by peer")}

	New(f.deps(0), f.slot, conn, time.Now()).Run()

	assert.Equal(t, 1, conn.closed)
	f.assertCleanedUp(t)
	ev := f.events.last()
	assert.Equal(t, event.SessionClosed, ev.Kind)
	assert.Equal(t, ReasonIOFailure, ev.Reason)
	assert.Equal(t, "127.0.0.1:5555", ev.Remote)
}

func TestRunWriteFailureCleansUp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conn := &faultyConn{payload: "hi", readErr: io.EOF, writeErr: errors.New("broken pipe")}

	New(f.deps(0), f.slot, conn, time.Now()).Run()

	assert.Equal(t, 1, conn.closed)
	f.assertCleanedUp(t)
	assert.Equal(t, ReasonIOFailure, f.events.last().Reason)
}

type panickyStore struct {
	cleared []int
}

func (s *panickyStore) Append(int, string) { panic("boom") }
func (s *panickyStore) Clear(slot int)     { s.cleared = append(s.cleared, slot) }

func TestRunRecoversPanicAndReleasesSlot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	store := &panickyStore{}
	deps := f.deps(0)
	deps.Messages = store
	conn := &faultyConn{payload: "hi", readErr: io.EOF}

	require.NotPanics(t, func() { New(deps, f.slot, conn, time.Now()).Run() })

	assert.Equal(t, []int{f.slot}, store.cleared)
	assert.Equal(t, 1, conn.closed)
	assert.Zero(t, f.pool.InUse())
	assert.Equal(t, ReasonIOFailure, f.events.last().Reason)
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	s := New(Deps{Slots: slotpool.New(1), Messages: msglog.New()}, 0, server, time.Now())
	assert.Equal(t, DefaultReadBufferSize, s.bufSize)
	assert.NotNil(t, s.registry)
	assert.IsType(t, event.Nop{}, s.events)
	assert.Equal(t, 0, s.Slot())
	assert.Equal(t, "pipe", s.Info().Remote)
}
