package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"datetime_nexus/internal/shared/logger"
	"datetime_nexus/internal/shared/types"
)

// StatsProvider supplies the counters served at /status.
type StatsProvider interface {
	Stats() types.ServerStats
}

// loggingListener logs accepted connections at debug level.
type loggingListener struct {
	net.Listener
}

func (l loggingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		logger.Debug().Msgf("[WebServer] Connection accepted from: %s", conn.RemoteAddr())
	}
	return conn, err
}

// NewHandler routes /status and /ws.
func NewHandler(hub *Hub, stats StatsProvider) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats.Stats()); err != nil {
			logger.Warn().Err(err).Msg("Failed to encode status")
		}
	})
	return mux
}

// StartServer listens on host:port and serves the status feed in the
// background. The returned server is stopped with Shutdown.
func StartServer(wg *sync.WaitGroup, host string, port int, hub *Hub, stats StatsProvider) (*http.Server, error) {
	if port <= 0 {
		return nil, errors.New("web_port is 0 or not set")
	}
	addr := types.JoinHostPort(host, port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start status feed on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           NewHandler(hub, stats),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info().Msgf("Status feed is listening on http://%s", listener.Addr())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(loggingListener{Listener: listener}); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Status feed error")
		}
		logger.Info().Msg("Status feed stopped.")
	}()
	return srv, nil
}
