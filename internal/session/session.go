package session

import (
	"net"
	"sync"
	"time"
)

// State represents the lifecycle state of a client session.
type State int32

const (
	// StateActive means the session accepts packet appends.
	StateActive State = iota
	// StateFlushing means the session has been claimed for processing and
	// its buffer is sealed.
	StateFlushing
	// StateClosed means the session has been removed from the registry.
	StateClosed
)

// String returns the human-readable state name
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// FlushReason identifies why a session was claimed for flushing.
type FlushReason string

const (
	FlushInactivity  FlushReason = "inactivity"
	FlushBufferFull  FlushReason = "buffer_full"
	FlushMaxDuration FlushReason = "max_duration"
)

// Session buffers one client's in-flight utterance. The identity key is the
// client's ip:port; Generation distinguishes successive utterances from the
// same address so a stale claim can never touch a newer buffer.
//
// All mutable fields are guarded by mu. Ownership of the chunk list follows
// the state: the listener appends while StateActive, the dispatcher consumes
// once StateFlushing. The claim transition under mu is the ownership handoff.
type Session struct {
	Key        string
	Addr       *net.UDPAddr
	Generation uint64
	StartTime  time.Time

	mu           sync.Mutex
	state        State
	chunks       [][]byte
	totalBytes   int
	lastActivity time.Time
}

func newSession(addr *net.UDPAddr, generation uint64, now time.Time) *Session {
	return &Session{
		Key:          addr.String(),
		Addr:         addr,
		Generation:   generation,
		StartTime:    now,
		state:        StateActive,
		chunks:       make([][]byte, 0, 16),
		lastActivity: now,
	}
}

// Append adds one datagram payload to the buffer and resets the inactivity
// clock. It reports false when the session is no longer active, in which
// case the caller must start a fresh generation instead.
func (s *Session) Append(payload []byte, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return false
	}

	s.chunks = append(s.chunks, payload)
	s.totalBytes += len(payload)
	s.lastActivity = now
	return true
}

// tryClaim atomically checks flush eligibility against the given limits and,
// if eligible, transitions the session to StateFlushing. Exactly one caller
// can win the claim for a given generation.
func (s *Session) tryClaim(now time.Time, limits Limits) (FlushReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive || len(s.chunks) == 0 {
		return "", false
	}

	var reason FlushReason
	switch {
	case s.totalBytes >= limits.MaxBufferBytes:
		reason = FlushBufferFull
	case now.Sub(s.StartTime) >= limits.MaxUtteranceDuration:
		reason = FlushMaxDuration
	case now.Sub(s.lastActivity) >= limits.InactivityTimeout:
		reason = FlushInactivity
	default:
		return "", false
	}

	s.state = StateFlushing
	return reason, true
}

// TakeChunks hands the sealed chunk list to the caller. Valid only after a
// successful claim; the session keeps no reference to the returned slices.
func (s *Session) TakeChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := s.chunks
	s.chunks = nil
	return chunks
}

// close marks the session closed. Called by the registry on removal.
func (s *Session) close() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns the arrival time of the most recent packet
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// TotalBytes returns the number of payload bytes buffered so far
func (s *Session) TotalBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalBytes
}

// ChunkCount returns the number of buffered packets
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Info returns a snapshot of the session for monitoring APIs
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		Key:           s.Key,
		Generation:    s.Generation,
		State:         s.state.String(),
		Chunks:        len(s.chunks),
		BufferedBytes: s.totalBytes,
		StartTime:     s.StartTime,
		LastActivity:  s.lastActivity,
		Age:           time.Since(s.StartTime),
	}
}

// Info represents session information for monitoring and APIs
type Info struct {
	Key           string        `json:"key"`
	Generation    uint64        `json:"generation"`
	State         string        `json:"state"`
	Chunks        int           `json:"chunks"`
	BufferedBytes int           `json:"buffered_bytes"`
	StartTime     time.Time     `json:"start_time"`
	LastActivity  time.Time     `json:"last_activity"`
	Age           time.Duration `json:"age"`
}
