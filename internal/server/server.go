package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"datetime_nexus/internal/datetime"
	"datetime_nexus/internal/shared"
	"datetime_nexus/internal/shared/logger"
	"datetime_nexus/internal/shared/types"
	"datetime_nexus/internal/sys/sockopt"
)

// ErrNotListening is returned by Serve when Listen has not succeeded yet.
var ErrNotListening = errors.New("server is not listening")

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ServedEvent describes one finished connection.
type ServedEvent struct {
	Timestamp time.Time
	ClientIP  string
	TraceID   string
	Payload   string
	Bytes     int
	Err       error
}

// Reporter receives an event after every connection the server closes.
// Implementations must not block.
type Reporter interface {
	ReportServed(ev *ServedEvent)
}

// Server answers each accepted connection with the current local time and
// closes it. Connections are handled one at a time.
type Server struct {
	cfg      *types.Config
	reporter Reporter
	logger   zerolog.Logger
	now      func() time.Time

	mu           sync.Mutex // guards listener and listenerInfo
	listener     net.Listener
	listenerInfo *types.ListenerInfo

	stopping atomic.Bool
	stopOnce sync.Once
	done     chan struct{}

	accepted     atomic.Uint64
	served       atomic.Uint64
	writeErrors  atomic.Uint64
	acceptErrors atomic.Uint64
	bytesWritten atomic.Uint64
}

// New builds a server; reporter may be nil.
func New(cfg *types.Config, reporter Reporter) *Server {
	return &Server{
		cfg:      cfg,
		reporter: reporter,
		logger:   logger.WithComponent("server"),
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Listen binds the endpoint but does not accept yet. It returns the bound
// address, which differs from the configured one when port 0 was requested.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr(), nil
	}
	if s.stopping.Load() {
		return nil, net.ErrClosed
	}
	address := s.cfg.Address()
	listener, err := sockopt.Listen(context.Background(), address, s.cfg.Backlog)
	if err != nil {
		return nil, fmt.Errorf("server failed to listen on %s: %w", address, err)
	}
	s.listener = listener

	tcpAddr := listener.Addr().(*net.TCPAddr)
	s.listenerInfo = &types.ListenerInfo{
		Address: tcpAddr.IP.String(),
		Port:    tcpAddr.Port,
	}
	s.logger.Info().
		Str("listen_addr", listener.Addr().String()).
		Int("backlog", sockopt.NormalizeBacklog(s.cfg.Backlog)).
		Msgf("Server listening on %s ...", listener.Addr())
	return listener.Addr(), nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	listener := s.getListener()
	if listener == nil {
		return nil
	}
	return listener.Addr()
}

func (s *Server) getListener() net.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener
}

// Done is closed when Stop is called.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Serve runs the accept loop until Stop. It returns nil on shutdown.
func (s *Server) Serve() error {
	listener := s.getListener()
	if listener == nil {
		return ErrNotListening
	}

	var delay time.Duration
	for !s.stopping.Load() {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.stopping.Load() {
				s.logger.Info().Msg("Listener closed, accept loop exiting.")
				return nil
			}
			s.acceptErrors.Add(1)
			delay = nextDelay(delay)
			s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Failed to accept connection")
			select {
			case <-time.After(delay):
			case <-s.done:
			}
			continue
		}
		delay = 0
		s.accepted.Add(1)
		s.handleConnection(conn)
	}
	return nil
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe() error {
	if _, err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop sets the shutdown flag and closes the listener, which unblocks a
// pending Accept. A connection already being written is left to finish.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		if listener := s.getListener(); listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn().Err(err).Msg("Error closing listener")
			}
		}
		close(s.done)
	})
}

// Stopped reports whether Stop has been called.
func (s *Server) Stopped() bool {
	return s.stopping.Load()
}

// GetListenerInfo returns the bound endpoint, or nil before Listen.
func (s *Server) GetListenerInfo() *types.ListenerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenerInfo
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() types.ServerStats {
	return types.ServerStats{
		Listener:     s.GetListenerInfo(),
		Accepted:     s.accepted.Load(),
		Served:       s.served.Load(),
		WriteErrors:  s.writeErrors.Load(),
		AcceptErrors: s.acceptErrors.Load(),
		BytesWritten: s.bytesWritten.Load(),
		Stopped:      s.stopping.Load(),
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	traceID := uuid.NewString()
	clientIP := conn.RemoteAddr().String()
	l := s.logger.With().Str("trace_id", traceID).Str("client_ip", clientIP).Logger()
	l.Info().Msgf("Connected by %s", clientIP)

	now := s.now()
	payload := datetime.Format(now)
	counted := shared.NewCountedConn(conn, &s.bytesWritten, nil)

	if d := s.cfg.WriteDeadline(); d > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(d))
	}
	n, err := io.WriteString(counted, payload)
	if err != nil {
		s.writeErrors.Add(1)
		l.Warn().Err(err).Int("written", n).Msg("Failed to send timestamp")
	} else {
		s.served.Add(1)
		l.Debug().Str("payload", payload).Msg("Timestamp sent")
	}
	if cerr := conn.Close(); cerr != nil && err == nil {
		l.Debug().Err(cerr).Msg("Error closing client connection")
	}

	if s.reporter != nil {
		s.reporter.ReportServed(&ServedEvent{
			Timestamp: now,
			ClientIP:  clientIP,
			TraceID:   traceID,
			Payload:   payload,
			Bytes:     n,
			Err:       err,
		})
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}
	d *= 2
	if d > maxAcceptDelay {
		return maxAcceptDelay
	}
	return d
}
