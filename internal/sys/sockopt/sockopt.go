// Package sockopt opens the server's listening socket.
//
// On unix the socket is created by hand so SO_REUSEADDR is set before bind
// and the pending-connection backlog is the configured value rather than the
// kernel's somaxconn.
package sockopt

import (
	"context"
	"fmt"
	"net"
)

// NormalizeBacklog returns backlog raised to the minimum of 1.
func NormalizeBacklog(backlog int) int {
	if backlog < 1 {
		return 1
	}
	return backlog
}

// resolveTCPAddr resolves host:port for listening, preferring IPv4.
// An empty host means every IPv4 interface.
func resolveTCPAddr(ctx context.Context, address string) (*net.TCPAddr, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := net.DefaultResolver.LookupPort(ctx, "tcp", portStr)
	if err != nil {
		return nil, err
	}
	if host == "" {
		return &net.TCPAddr{IP: net.IPv4zero, Port: port}, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return &net.TCPAddr{IP: ip, Port: port}, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for host %q", host)
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return &net.TCPAddr{IP: a.IP, Port: port, Zone: a.Zone}, nil
		}
	}
	return &net.TCPAddr{IP: addrs[0].IP, Port: port, Zone: addrs[0].Zone}, nil
}

func opError(addr net.Addr, err error) error {
	return &net.OpError{Op: "listen", Net: "tcp", Addr: addr, Err: err}
}
