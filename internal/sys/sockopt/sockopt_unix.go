//go:build unix

package sockopt

import (
	"context"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Listen binds a TCP socket to address with SO_REUSEADDR and starts listening
// with the given backlog.
func Listen(ctx context.Context, address string, backlog int) (net.Listener, error) {
	addr, err := resolveTCPAddr(ctx, address)
	if err != nil {
		return nil, opError(nil, err)
	}

	family, sa, err := sockaddr(addr)
	if err != nil {
		return nil, opError(addr, err)
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, opError(addr, os.NewSyscallError("socket", err))
	}
	unix.CloseOnExec(fd)

	if err := setReuseAddr(fd); err != nil {
		unix.Close(fd)
		return nil, opError(addr, err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, opError(addr, os.NewSyscallError("bind", err))
	}
	if err := unix.Listen(fd, NormalizeBacklog(backlog)); err != nil {
		unix.Close(fd)
		return nil, opError(addr, os.NewSyscallError("listen", err))
	}

	// net.FileListener dups the descriptor into the runtime poller, so the
	// original is closed either way.
	file := os.NewFile(uintptr(fd), "tcp-listener:"+address)
	defer file.Close()
	ln, err := net.FileListener(file)
	if err != nil {
		return nil, opError(addr, err)
	}
	return ln, nil
}

func setReuseAddr(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return os.NewSyscallError("setsockopt SO_REUSEADDR", err)
	}
	return nil
}

func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa, nil
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip6)
		if addr.Zone != "" {
			if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
				sa.ZoneId = uint32(ifi.Index)
			}
		}
		return unix.AF_INET6, sa, nil
	}
	return 0, nil, unix.EAFNOSUPPORT
}
