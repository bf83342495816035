package shared

import (
	"net"
	"sync/atomic"
)

// CountedConn wraps a net.Conn and adds every byte moved to shared counters.
// Either counter may be nil.
type CountedConn struct {
	net.Conn
	written *atomic.Uint64
	read    *atomic.Uint64
}

func NewCountedConn(conn net.Conn, written, read *atomic.Uint64) *CountedConn {
	return &CountedConn{
		Conn:    conn,
		written: written,
		read:    read,
	}
}

func (c *CountedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 && c.read != nil {
		c.read.Add(uint64(n))
	}
	return n, err
}

func (c *CountedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 && c.written != nil {
		c.written.Add(uint64(n))
	}
	return n, err
}
