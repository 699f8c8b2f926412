package server

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Bkbest/calendar-agent/internal/config"
	"github.com/Bkbest/calendar-agent/internal/metrics"
	"github.com/Bkbest/calendar-agent/internal/session"
)

const (
	// numProcessors is the number of packet processor goroutines. Each owns
	// one shard channel.
	numProcessors = 4
	// processorQueueSize bounds each shard channel.
	processorQueueSize = 256
)

// UDPServer receives audio datagrams from clients and routes each payload
// into its sender's session. The receive loop never blocks on downstream
// work: payloads go through buffered shard channels to processor goroutines,
// and the only session operation on the hot path is a map lookup plus an
// append under that one client's lock.
//
// Packets carry no sequence numbers, so receipt order is the buffer order.
// Shards are keyed by client address: all packets from one client land on
// the same processor, which appends them in the order the receive loop
// handed them over.
type UDPServer struct {
	conn     *net.UDPConn
	config   *config.ServerConfig
	logger   *slog.Logger
	registry *session.Registry
	metrics  *metrics.Metrics
	flush    session.FlushFunc

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	recvWG sync.WaitGroup

	// Packet processing, one shard channel per processor
	packetChans []chan *incomingPacket

	// Counters, guarded by mu
	packetsReceived uint64
	packetsBuffered uint64
	emptyDatagrams  uint64
	forcedFlushes   uint64
	droppedPackets  uint64
	mu              sync.RWMutex
}

// incomingPacket represents a received UDP datagram with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// NewUDPServer creates a new UDP server instance. The flush callback is
// invoked for sessions that hit a forced-flush cap mid-append; it must not
// block.
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, registry *session.Registry, m *metrics.Metrics, flush session.FlushFunc) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	packetChans := make([]chan *incomingPacket, numProcessors)
	for i := range packetChans {
		packetChans[i] = make(chan *incomingPacket, processorQueueSize)
	}

	return &UDPServer{
		config:      cfg,
		logger:      logger,
		registry:    registry,
		metrics:     m,
		flush:       flush,
		ctx:         ctx,
		cancel:      cancel,
		packetChans: packetChans,
	}
}

// Start begins listening for UDP datagrams
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", addr.String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	for i := range s.packetChans {
		s.wg.Add(1)
		go s.packetProcessor(i)
	}

	s.recvWG.Add(1)
	go s.receiveLoop()

	return nil
}

// Stop gracefully stops the UDP server
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	// The receive loop may be mid-send when the socket closes; the shard
	// channels can only be closed once it has exited.
	s.recvWG.Wait()
	for _, ch := range s.packetChans {
		close(ch)
	}

	s.wg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_buffered", stats.PacketsBuffered),
		slog.Uint64("empty_datagrams", stats.EmptyDatagrams),
		slog.Uint64("forced_flushes", stats.ForcedFlushes),
	)

	return nil
}

// Conn exposes the bound socket so replies can be sent from the same
// local address clients targeted.
func (s *UDPServer) Conn() *net.UDPConn {
	return s.conn
}

// shardFor maps a client address to its processor so all packets from one
// client are appended by a single goroutine, preserving receipt order.
func shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % numProcessors)
}

// receiveLoop is the main datagram receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.recvWG.Done()

	buffer := make([]byte, s.config.MaxPacketSize)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
			// Continue to receive packets
		}

		// Set read deadline to check for context cancellation periodically
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		s.metrics.RecordPacketReceived()

		if n == 0 {
			s.mu.Lock()
			s.emptyDatagrams++
			s.mu.Unlock()
			s.metrics.RecordEmptyDatagram()

			s.logger.Debug("Dropping empty datagram",
				slog.String("remote_addr", remoteAddr.String()),
			)
			continue
		}

		// Copy out of the reused read buffer
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		packet := &incomingPacket{
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		select {
		case s.packetChans[shardFor(packet.remoteAddr.String())] <- packet:
			// Packet queued successfully
		default:
			s.mu.Lock()
			s.droppedPackets++
			s.mu.Unlock()

			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

// packetProcessor routes packets from its shard channel into sessions
func (s *UDPServer) packetProcessor(workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Packet processor started", slog.Int("worker_id", workerID))

	for packet := range s.packetChans[workerID] {
		s.handlePacket(packet)
	}

	s.logger.Debug("Packet processor stopped", slog.Int("worker_id", workerID))
}

// handlePacket appends one payload to its sender's session. When the append
// pushes the session over a size or age cap, the session is claimed and
// flushed immediately instead of waiting for the inactivity sweep.
func (s *UDPServer) handlePacket(packet *incomingPacket) {
	sess, forced := s.registry.Append(packet.remoteAddr, packet.data, packet.timestamp)

	s.mu.Lock()
	s.packetsBuffered++
	s.mu.Unlock()
	s.metrics.RecordPacketBuffered()
	s.metrics.SetActiveSessions(s.registry.Len())

	if sess.ChunkCount() == 1 {
		s.metrics.RecordSessionCreated()
		if sess.Generation > 1 {
			s.metrics.RecordSessionSuperseded()
		}
	}

	s.logger.Debug("Packet buffered",
		slog.String("client", sess.Key),
		slog.Uint64("generation", sess.Generation),
		slog.Int("packet_size", len(packet.data)),
		slog.Int("buffered_bytes", sess.TotalBytes()),
	)

	if !forced {
		return
	}

	reason, ok := s.registry.Claim(sess, packet.timestamp)
	if !ok {
		// Another actor claimed it first
		return
	}

	s.mu.Lock()
	s.forcedFlushes++
	s.mu.Unlock()

	s.logger.Info("Session hit forced-flush cap",
		slog.String("client", sess.Key),
		slog.Uint64("generation", sess.Generation),
		slog.String("reason", string(reason)),
		slog.Int("buffered_bytes", sess.TotalBytes()),
	)

	s.flush(sess, reason)
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var queued, capacity uint64
	for _, ch := range s.packetChans {
		queued += uint64(len(ch))
		capacity += uint64(cap(ch))
	}

	return ServerStatistics{
		PacketsReceived: s.packetsReceived,
		PacketsBuffered: s.packetsBuffered,
		EmptyDatagrams:  s.emptyDatagrams,
		ForcedFlushes:   s.forcedFlushes,
		DroppedPackets:  s.droppedPackets,
		ActiveSessions:  uint64(s.registry.Len()),
		QueueSize:       queued,
		QueueCapacity:   capacity,
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	PacketsReceived uint64 `json:"packets_received"`
	PacketsBuffered uint64 `json:"packets_buffered"`
	EmptyDatagrams  uint64 `json:"empty_datagrams"`
	ForcedFlushes   uint64 `json:"forced_flushes"`
	DroppedPackets  uint64 `json:"dropped_packets"`
	ActiveSessions  uint64 `json:"active_sessions"`
	QueueSize       uint64 `json:"queue_size"`
	QueueCapacity   uint64 `json:"queue_capacity"`
}
