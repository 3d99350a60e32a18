// Package transport moves encoded frames between the bridge and the motor
// receiver.
package transport

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
)

// ErrUnavailable is returned when a send is skipped because the socket is
// missing or closed. It is never fatal.
var ErrUnavailable = errors.New("transport unavailable")

// Sender delivers one datagram-sized payload.
type Sender interface {
	Send(payload []byte) error
}

// UDPStats counts datagrams.
type UDPStats struct {
	Sent    uint64 `json:"sent"`
	Skipped uint64 `json:"skipped"`
	Failed  uint64 `json:"failed"`
}

// UDP is a fire-and-forget sender bound to an ephemeral local port with a
// fixed destination. Sends from the broadcaster and the replayer are
// serialized.
type UDP struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	address string
	closed  bool
	stats   UDPStats
}

// DialUDP opens the outbound socket towards host:port.
func DialUDP(host string, port int) (*UDP, error) {
	address := net.JoinHostPort(host, fmt.Sprint(port))
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create UDP socket: %w", err)
	}
	log.Printf("transport: data target set to %s", address)
	return &UDP{conn: conn, address: address}, nil
}

// Send writes payload as one datagram. A closed socket skips the send.
func (u *UDP) Send(payload []byte) error {
	if u == nil {
		return ErrUnavailable
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil || u.closed {
		u.stats.Skipped++
		log.Printf("transport: socket closed, skipping send to %s", u.address)
		return ErrUnavailable
	}
	if _, err := u.conn.Write(payload); err != nil {
		u.stats.Failed++
		return fmt.Errorf("udp send to %s: %w", u.address, err)
	}
	u.stats.Sent++
	return nil
}

// Address is the destination host:port.
func (u *UDP) Address() string { return u.address }

// LocalAddr is the ephemeral local endpoint.
func (u *UDP) LocalAddr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

func (u *UDP) Stats() UDPStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

// Close releases the socket. Further sends are skipped.
func (u *UDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed || u.conn == nil {
		u.closed = true
		return nil
	}
	u.closed = true
	return u.conn.Close()
}

// Fanout sends every payload to all its senders.
type Fanout []Sender

func (f Fanout) Send(payload []byte) error {
	var errs []error
	for _, s := range f {
		if err := s.Send(payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
