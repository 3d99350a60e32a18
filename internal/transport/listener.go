package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/relabs-tech/motor_observer/internal/frame"
)

// Listener is the receive side: it decodes frames arriving on a UDP port.
type Listener struct {
	conn    net.PacketConn
	timeout time.Duration
}

// Listen binds address, e.g. ":7755".
func Listen(address string) (*Listener, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, fmt.Errorf("error binding address to socket: %w", err)
	}
	return NewListener(conn), nil
}

// NewListener wraps an existing packet connection.
func NewListener(conn net.PacketConn) *Listener {
	return &Listener{conn: conn, timeout: 250 * time.Millisecond}
}

func (l *Listener) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// Run reads datagrams until ctx is cancelled and calls handle for each
// valid frame. Malformed datagrams are logged and skipped.
func (l *Listener) Run(ctx context.Context, handle func(frame.StateFrame, time.Time)) error {
	// Larger than a frame so oversized datagrams are detected instead of
	// truncated into a valid-looking frame.
	buf := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := l.conn.SetReadDeadline(time.Now().Add(l.timeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receive data error: %w", err)
		}

		f, err := frame.Decode(buf[:n])
		if err != nil {
			log.Printf("listener: dropping datagram from %v: %v", addr, err)
			continue
		}
		handle(f, time.Now())
	}
}

func (l *Listener) Close() error {
	return l.conn.Close()
}
