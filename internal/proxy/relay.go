package proxy

import (
	"io"
	"net"
	"sync"
	"time"
)

// relay shuttles bytes in both directions between client and backend until
// both directions have finished, then returns so the caller can close both
// ends. Mirrors the donor's copyData pair of goroutines under a
// sync.WaitGroup, extended with a half-close: the side that sees a clean
// EOF from its source signals CloseWrite on its destination instead of
// tearing the whole connection down, so the other direction can keep
// draining whatever the backend or client still has in flight.
func (s *Server) relay(client, backend net.Conn, idleTimeout time.Duration) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		copyHalf(backend, client, idleTimeout)
	}()
	go func() {
		defer wg.Done()
		copyHalf(client, backend, idleTimeout)
	}()

	wg.Wait()
}

// halfCloser is satisfied by *net.TCPConn; relaying over any other
// net.Conn implementation (e.g. in tests) just skips the half-close step
// and relies on the eventual full Close from handleConn.
type halfCloser interface {
	CloseWrite() error
}

// copyHalf copies from src to dst, resetting both deadlines before every
// read so a direction with no bytes for idleTimeout stops copying rather
// than blocking forever; nothing is closed at that point, and both sockets
// are closed by handleConn once the other direction has stopped too. A
// clean EOF from src half-closes dst; any other read or write error ends
// this direction immediately.
func copyHalf(dst, src net.Conn, idleTimeout time.Duration) {
	buf := make([]byte, 32*1024)
	for {
		if idleTimeout > 0 {
			deadline := time.Now().Add(idleTimeout)
			_ = src.SetReadDeadline(deadline)
			_ = dst.SetWriteDeadline(deadline)
		}

		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				if hc, ok := dst.(halfCloser); ok {
					_ = hc.CloseWrite()
				}
			}
			return
		}
	}
}
