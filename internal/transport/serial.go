package transport

import (
	"fmt"
	"io"
	"log"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

// Serial mirrors frames to a motor driver attached over a serial line,
// for boards that are not on the network.
type Serial struct {
	mu     sync.Mutex
	port   io.WriteCloser
	name   string
	closed bool
}

// OpenSerial opens portName at baud, 8N1.
func OpenSerial(portName string, baud int) (*Serial, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	log.Printf("transport: serial mirror opened on %s at %d baud", portName, baud)
	return NewSerial(portName, port), nil
}

// NewSerial wraps an already open port.
func NewSerial(name string, port io.WriteCloser) *Serial {
	return &Serial{port: port, name: name}
}

func (s *Serial) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil || s.closed {
		return ErrUnavailable
	}
	n, err := s.port.Write(payload)
	if err != nil {
		return fmt.Errorf("serial write to %s: %w", s.name, err)
	}
	if n != len(payload) {
		return fmt.Errorf("serial write to %s: short write %d/%d", s.name, n, len(payload))
	}
	return nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.port == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.port.Close()
}
