package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datetime_nexus/internal/datetime"
	"datetime_nexus/internal/shared/config"
	"datetime_nexus/internal/shared/types"
)

// recordingReporter collects served events for assertions.
type recordingReporter struct {
	mu     sync.Mutex
	events []*ServedEvent
	ch     chan *ServedEvent
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{ch: make(chan *ServedEvent, 16)}
}

func (r *recordingReporter) ReportServed(ev *ServedEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.ch <- ev:
	default:
	}
}

func (r *recordingReporter) wait(t *testing.T) *ServedEvent {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no served event")
		return nil
	}
}

// scriptedListener hands out queued accept results until closed.
type scriptedListener struct {
	results   chan acceptResult
	closed    chan struct{}
	closeOnce sync.Once
}

type acceptResult struct {
	conn net.Conn
	err  error
}

func newScriptedListener() *scriptedListener {
	return &scriptedListener{
		results: make(chan acceptResult, 8),
		closed:  make(chan struct{}),
	}
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	select {
	case r := <-l.results:
		return r.conn, r.err
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *scriptedListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *scriptedListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9090}
}

func testConfig() *types.Config {
	cfg := config.Default()
	cfg.Port = 0
	return cfg
}

// startServer listens on an ephemeral port and runs Serve in the background.
func startServer(t *testing.T, cfg *types.Config, reporter Reporter) (*Server, <-chan error) {
	t.Helper()
	s := New(cfg, reporter)
	_, err := s.Listen()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()
	t.Cleanup(s.Stop)
	return s, errCh
}

func fetch(t *testing.T, addr string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(data)
}

func waitServe(t *testing.T, errCh <-chan error) {
	t.Helper()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestServe_WritesTimestampAndCloses(t *testing.T) {
	fixed := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.Local)
	reporter := newRecordingReporter()
	s := New(testConfig(), reporter)
	s.now = func() time.Time { return fixed }
	_, err := s.Listen()
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()
	defer s.Stop()

	got := fetch(t, s.Addr().String())
	assert.Equal(t, "2025-01-01 12:00:00", got)

	ev := reporter.wait(t)
	assert.Equal(t, got, ev.Payload)
	assert.Equal(t, len(got), ev.Bytes)
	assert.NoError(t, ev.Err)
	assert.NotEmpty(t, ev.TraceID)
	assert.True(t, strings.HasPrefix(ev.ClientIP, "127.0.0.1:"))

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Accepted)
	assert.Equal(t, uint64(1), stats.Served)
	assert.Equal(t, uint64(len(got)), stats.BytesWritten)
	require.NotNil(t, stats.Listener)
	assert.Equal(t, "127.0.0.1", stats.Listener.Address)
}

func TestServe_SequentialTimestampsNonDecreasing(t *testing.T) {
	s, _ := startServer(t, testConfig(), nil)

	first := fetch(t, s.Addr().String())
	second := fetch(t, s.Addr().String())
	require.True(t, datetime.Valid(first), "payload %q", first)
	require.True(t, datetime.Valid(second), "payload %q", second)

	t1, err := datetime.Parse(first)
	require.NoError(t, err)
	t2, err := datetime.Parse(second)
	require.NoError(t, err)
	assert.False(t, t2.Before(t1), "%s then %s", first, second)
}

func TestStop_RefusesNewConnections(t *testing.T) {
	s, errCh := startServer(t, testConfig(), nil)
	addr := s.Addr().String()
	_ = fetch(t, addr)

	start := time.Now()
	s.Stop()
	waitServe(t, errCh)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, s.Stats().Stopped)

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}

	_, err := net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)

	// idempotent
	s.Stop()
}

func TestStop_RestartOnSamePort(t *testing.T) {
	s, errCh := startServer(t, testConfig(), nil)
	addr := s.Addr().(*net.TCPAddr)
	_ = fetch(t, addr.String())
	s.Stop()
	waitServe(t, errCh)

	cfg := testConfig()
	cfg.Port = addr.Port
	restarted, _ := startServer(t, cfg, nil)
	assert.True(t, datetime.Valid(fetch(t, restarted.Addr().String())))
}

func TestListen_PortInUse(t *testing.T) {
	s, _ := startServer(t, testConfig(), nil)

	cfg := testConfig()
	cfg.Port = s.Addr().(*net.TCPAddr).Port
	_, err := New(cfg, nil).Listen()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server failed to listen")
}

func TestListen_AfterStop(t *testing.T) {
	s := New(testConfig(), nil)
	s.Stop()
	_, err := s.Listen()
	assert.ErrorIs(t, err, net.ErrClosed)
}

func TestServe_BeforeListen(t *testing.T) {
	s := New(testConfig(), nil)
	assert.ErrorIs(t, s.Serve(), ErrNotListening)
	assert.Nil(t, s.Addr())
}

func TestServe_SurvivesAcceptAndWriteErrors(t *testing.T) {
	reporter := newRecordingReporter()
	s := New(testConfig(), reporter)
	ln := newScriptedListener()
	s.listener = ln

	// transient accept failure
	ln.results <- acceptResult{err: errors.New("too many open files")}

	// peer already gone, the write fails
	broken, brokenPeer := net.Pipe()
	brokenPeer.Close()
	ln.results <- acceptResult{conn: broken}

	// healthy connection
	good, goodPeer := net.Pipe()
	ln.results <- acceptResult{conn: good}
	payloadCh := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(goodPeer)
		payloadCh <- string(data)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	failed := reporter.wait(t)
	assert.Error(t, failed.Err)
	ok := reporter.wait(t)
	assert.NoError(t, ok.Err)
	assert.True(t, datetime.Valid(<-payloadCh))

	s.Stop()
	waitServe(t, errCh)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.AcceptErrors)
	assert.Equal(t, uint64(2), stats.Accepted)
	assert.Equal(t, uint64(1), stats.WriteErrors)
	assert.Equal(t, uint64(1), stats.Served)
}

func TestNextDelay(t *testing.T) {
	assert.Equal(t, minAcceptDelay, nextDelay(0))
	assert.Equal(t, 2*minAcceptDelay, nextDelay(minAcceptDelay))
	assert.Equal(t, maxAcceptDelay, nextDelay(maxAcceptDelay))
}

func TestListenAndServe_ReturnsBindError(t *testing.T) {
	s, _ := startServer(t, testConfig(), nil)

	cfg := testConfig()
	cfg.Port = s.Addr().(*net.TCPAddr).Port
	err := New(cfg, nil).ListenAndServe()
	require.Error(t, err)
}
