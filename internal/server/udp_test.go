package server

import (
	"encoding/binary"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Bkbest/calendar-agent/internal/config"
	"github.com/Bkbest/calendar-agent/internal/metrics"
	"github.com/Bkbest/calendar-agent/internal/session"
)

// Prometheus collectors register globally, so the test binary shares one set.
var testMetrics = metrics.NewMetrics()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		UDPPort:       0, // OS-assigned port
		BindAddress:   "127.0.0.1",
		BufferSize:    1 << 20,
		MaxPacketSize: 65535,
	}
}

type flushCollector struct {
	mu       sync.Mutex
	sessions []*session.Session
	reasons  []session.FlushReason
}

func (f *flushCollector) flush(sess *session.Session, reason session.FlushReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sess)
	f.reasons = append(f.reasons, reason)
}

func (f *flushCollector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func newTestRegistry(limits session.Limits) *session.Registry {
	return session.NewRegistry(limits, testLogger())
}

func dialServer(t *testing.T, srv *UDPServer) *net.UDPConn {
	t.Helper()

	conn, err := net.DialUDP("udp", nil, srv.Conn().LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("failed to dial server: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestServerBuffersDatagramsIntoOneSession(t *testing.T) {
	reg := newTestRegistry(session.Limits{
		InactivityTimeout:    2 * time.Second,
		MaxBufferBytes:       1 << 20,
		MaxUtteranceDuration: 60 * time.Second,
	})
	col := &flushCollector{}

	srv := NewUDPServer(testServerConfig(), testLogger(), reg, testMetrics, col.flush)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer srv.Stop()

	client := dialServer(t, srv)
	defer client.Close()

	for i := 0; i < 3; i++ {
		if _, err := client.Write(make([]byte, 100)); err != nil {
			t.Fatalf("failed to send packet: %v", err)
		}
	}

	waitFor(t, "3 buffered packets", func() bool {
		return srv.GetStatistics().PacketsBuffered == 3
	})

	if got := reg.Len(); got != 1 {
		t.Fatalf("expected 1 session, got %d", got)
	}

	sess := reg.Snapshot()[0]
	if sess.ChunkCount() != 3 {
		t.Errorf("expected 3 chunks, got %d", sess.ChunkCount())
	}
	if sess.TotalBytes() != 300 {
		t.Errorf("expected 300 buffered bytes, got %d", sess.TotalBytes())
	}
}

func TestServerDropsEmptyDatagrams(t *testing.T) {
	reg := newTestRegistry(session.Limits{
		InactivityTimeout:    2 * time.Second,
		MaxBufferBytes:       1 << 20,
		MaxUtteranceDuration: 60 * time.Second,
	})
	col := &flushCollector{}

	srv := NewUDPServer(testServerConfig(), testLogger(), reg, testMetrics, col.flush)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer srv.Stop()

	client := dialServer(t, srv)
	defer client.Close()

	if _, err := client.Write([]byte{}); err != nil {
		t.Fatalf("failed to send empty datagram: %v", err)
	}
	if _, err := client.Write([]byte("real payload")); err != nil {
		t.Fatalf("failed to send packet: %v", err)
	}

	waitFor(t, "empty datagram accounting", func() bool {
		stats := srv.GetStatistics()
		return stats.EmptyDatagrams == 1 && stats.PacketsBuffered == 1
	})

	// The empty datagram must not have created a session on its own.
	if got := reg.Len(); got != 1 {
		t.Errorf("expected 1 session, got %d", got)
	}
}

func TestServerForcesFlushOnBufferCap(t *testing.T) {
	reg := newTestRegistry(session.Limits{
		InactivityTimeout:    2 * time.Second,
		MaxBufferBytes:       256,
		MaxUtteranceDuration: 60 * time.Second,
	})
	col := &flushCollector{}

	srv := NewUDPServer(testServerConfig(), testLogger(), reg, testMetrics, col.flush)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer srv.Stop()

	client := dialServer(t, srv)
	defer client.Close()

	// Two 200-byte packets push the session past the 256-byte cap.
	client.Write(make([]byte, 200))
	client.Write(make([]byte, 200))

	waitFor(t, "forced flush", func() bool { return col.count() == 1 })

	col.mu.Lock()
	reason := col.reasons[0]
	col.mu.Unlock()

	if reason != session.FlushBufferFull {
		t.Errorf("expected buffer_full reason, got %s", reason)
	}

	if srv.GetStatistics().ForcedFlushes != 1 {
		t.Errorf("expected 1 forced flush in stats, got %d", srv.GetStatistics().ForcedFlushes)
	}
}

func TestServerIsolatesClients(t *testing.T) {
	reg := newTestRegistry(session.Limits{
		InactivityTimeout:    2 * time.Second,
		MaxBufferBytes:       1 << 20,
		MaxUtteranceDuration: 60 * time.Second,
	})
	col := &flushCollector{}

	srv := NewUDPServer(testServerConfig(), testLogger(), reg, testMetrics, col.flush)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer srv.Stop()

	clientA := dialServer(t, srv)
	defer clientA.Close()
	clientB := dialServer(t, srv)
	defer clientB.Close()

	clientA.Write([]byte("from A"))
	clientB.Write([]byte("from B"))

	waitFor(t, "2 sessions", func() bool { return reg.Len() == 2 })

	for _, sess := range reg.Snapshot() {
		if sess.ChunkCount() != 1 {
			t.Errorf("session %s: expected 1 chunk, got %d", sess.Key, sess.ChunkCount())
		}
	}
}

func TestServerPreservesSameClientPacketOrder(t *testing.T) {
	reg := newTestRegistry(session.Limits{
		InactivityTimeout:    2 * time.Second,
		MaxBufferBytes:       1 << 20,
		MaxUtteranceDuration: 60 * time.Second,
	})
	col := &flushCollector{}

	srv := NewUDPServer(testServerConfig(), testLogger(), reg, testMetrics, col.flush)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer srv.Stop()

	const numClients = 3
	const packetsPerClient = 200

	clients := make([]*net.UDPConn, numClients)
	for i := range clients {
		clients[i] = dialServer(t, srv)
		defer clients[i].Close()
	}

	// Interleave numbered packets across clients so concurrent processors
	// would reorder them if same-client routing were not serialized.
	payload := make([]byte, 4)
	for seq := 0; seq < packetsPerClient; seq++ {
		binary.BigEndian.PutUint16(payload[0:2], uint16(seq))
		for _, client := range clients {
			if _, err := client.Write(payload); err != nil {
				t.Fatalf("failed to send packet %d: %v", seq, err)
			}
		}
	}

	waitFor(t, "all packets buffered", func() bool {
		return srv.GetStatistics().PacketsBuffered == numClients*packetsPerClient
	})

	for _, client := range clients {
		sess, ok := reg.Get(client.LocalAddr().String())
		if !ok {
			t.Fatalf("no session for client %s", client.LocalAddr())
		}

		if _, ok := reg.Claim(sess, time.Now().Add(5*time.Second)); !ok {
			t.Fatalf("failed to claim session %s", sess.Key)
		}

		chunks := sess.TakeChunks()
		if len(chunks) != packetsPerClient {
			t.Fatalf("client %s: expected %d chunks, got %d", sess.Key, packetsPerClient, len(chunks))
		}

		for i, chunk := range chunks {
			if got := int(binary.BigEndian.Uint16(chunk[0:2])); got != i {
				t.Fatalf("client %s: position %d holds packet %d, appended out of receipt order", sess.Key, i, got)
			}
		}
	}
}

func TestStopWhileClientStreaming(t *testing.T) {
	reg := newTestRegistry(session.Limits{
		InactivityTimeout:    2 * time.Second,
		MaxBufferBytes:       1 << 20,
		MaxUtteranceDuration: 60 * time.Second,
	})
	col := &flushCollector{}

	srv := NewUDPServer(testServerConfig(), testLogger(), reg, testMetrics, col.flush)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	client := dialServer(t, srv)
	defer client.Close()

	// Keep datagrams in flight while the server shuts down. Stop must let
	// the receive loop finish its in-progress handoff before closing the
	// processing channels, or this panics.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		payload := make([]byte, 64)
		for {
			select {
			case <-done:
				return
			default:
				client.Write(payload)
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	if err := srv.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	close(done)
	wg.Wait()
}

func TestSenderRepliesOverServerSocket(t *testing.T) {
	reg := newTestRegistry(session.Limits{
		InactivityTimeout:    2 * time.Second,
		MaxBufferBytes:       1 << 20,
		MaxUtteranceDuration: 60 * time.Second,
	})
	col := &flushCollector{}

	srv := NewUDPServer(testServerConfig(), testLogger(), reg, testMetrics, col.flush)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer srv.Stop()

	sender := NewSender(testLogger())
	sender.Bind(srv.Conn())

	client := dialServer(t, srv)
	defer client.Close()

	client.Write([]byte("hello"))
	waitFor(t, "session creation", func() bool { return reg.Len() == 1 })

	sess := reg.Snapshot()[0]
	if err := sender.Send(sess.Addr, []byte("reply payload")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("client never received reply: %v", err)
	}

	if got := string(buf[:n]); got != "reply payload" {
		t.Errorf("unexpected reply: %q", got)
	}

	if stats := sender.Stats(); stats.Sent != 1 {
		t.Errorf("expected 1 sent, got %d", stats.Sent)
	}
}

func TestSenderUnbound(t *testing.T) {
	sender := NewSender(testLogger())

	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}
	if err := sender.Send(addr, []byte("x")); err == nil {
		t.Error("expected error from unbound sender")
	}
}
