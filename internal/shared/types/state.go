package types

import (
	"net"
	"strconv"
)

// ListenerInfo holds the runtime listening info of the server endpoint.
type ListenerInfo struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// ServerStats is a point-in-time snapshot of the accept loop counters.
type ServerStats struct {
	Listener     *ListenerInfo `json:"listener,omitempty"`
	Accepted     uint64        `json:"accepted"`
	Served       uint64        `json:"served"`
	WriteErrors  uint64        `json:"write_errors"`
	AcceptErrors uint64        `json:"accept_errors"`
	BytesWritten uint64        `json:"bytes_written"`
	Stopped      bool          `json:"stopped"`
}

// JoinHostPort is net.JoinHostPort for an integer port.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
