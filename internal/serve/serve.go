// Package serve implements the connection supervisor: a TCP accept loop
// that hands each connection to its own worker goroutine, isolated from
// its siblings by a recovered panic boundary. The supervisor itself is
// transport-agnostic; internal/serve's pageserver.go and safekeeper.go
// wire it to the pageserver and safekeeper listen endpoints.
package serve

import (
	"context"
	"net"

	"github.com/zenithdb/pageserver/internal/nlog"
)

// ConnHandler drives one accepted connection end to end. It must not
// return until the session is finished; the supervisor closes the
// connection once it returns regardless of error.
type ConnHandler func(ctx context.Context, conn net.Conn)

// Supervise runs ln's accept loop until ctx is cancelled or Accept fails
// for a reason other than the listener having been closed by us. Every
// accepted connection is dispatched to its own goroutine running handle,
// wrapped in a recover so one connection's panic can never take down the
// listener or any sibling connection. Neither the per-connection
// goroutine-plus-recover shape nor the TCP_NODELAY call below has a
// direct analogue elsewhere in this codebase; both are this package's
// own design, chosen because a long-lived CopyBoth session is exactly
// the kind of per-connection state a panic in one session must not be
// allowed to take down its siblings with.
func Supervise(ctx context.Context, ln net.Listener, handle ConnHandler) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		go runWorker(ctx, conn, handle)
	}
}

func runWorker(ctx context.Context, conn net.Conn, handle ConnHandler) {
	remote := conn.RemoteAddr()
	defer func() {
		if r := recover(); r != nil {
			nlog.Errorf("serve: connection worker for %s panicked: %v", remote, r)
		}
		conn.Close()
	}()
	handle(ctx, conn)
}
