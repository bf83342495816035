//go:build !unix

package sockopt

import (
	"context"
	"net"
)

// Listen falls back to the runtime listener. The backlog is left to the
// platform and SO_REUSEADDR is not set, since on Windows it lets another
// process steal the port.
func Listen(ctx context.Context, address string, backlog int) (net.Listener, error) {
	addr, err := resolveTCPAddr(ctx, address)
	if err != nil {
		return nil, opError(nil, err)
	}
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr.String())
}
