//go:build !unix

package server

import (
	"context"
	"net"
)

// listen falls back to the net package, which sets SO_REUSEADDR itself. The
// backlog cannot be chosen here; the system default is used.
func listen(addr string, _ int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp", addr)
}
