//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd)

package server

import (
	"context"
	"fmt"
	"net"
)

// Listen opens an IPv4 TCP listener on address. The backlog cannot be
// controlled on this platform and is left to the runtime.
func Listen(ctx context.Context, address string, backlog int) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp4", address)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	return ln, nil
}
