package server

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Sender delivers reply payloads back to client addresses over the server's
// own UDP socket, so replies originate from the port clients sent to.
// Fire and forget: no acknowledgment, no retry.
type Sender struct {
	logger *slog.Logger

	mu   sync.RWMutex
	conn *net.UDPConn

	sent   uint64
	failed uint64
}

// NewSender creates a sender; Bind attaches the socket once the server is up
func NewSender(logger *slog.Logger) *Sender {
	return &Sender{
		logger: logger,
	}
}

// Bind attaches the listening socket replies are written through
func (s *Sender) Bind(conn *net.UDPConn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// Send writes one reply datagram to addr. Failures are logged and counted,
// never propagated into session cleanup.
func (s *Sender) Send(addr *net.UDPAddr, payload []byte) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("sender not bound to a socket")
	}

	if _, err := conn.WriteToUDP(payload, addr); err != nil {
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()

		s.logger.Warn("Failed to send reply",
			slog.String("client", addr.String()),
			slog.Int("payload_size", len(payload)),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.mu.Lock()
	s.sent++
	s.mu.Unlock()

	s.logger.Debug("Reply sent",
		slog.String("client", addr.String()),
		slog.Int("payload_size", len(payload)),
	)

	return nil
}

// Stats reports lifetime sender counters
func (s *Sender) Stats() SenderStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SenderStats{
		Sent:   s.sent,
		Failed: s.failed,
	}
}

// SenderStats represents sender lifetime counters
type SenderStats struct {
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}
