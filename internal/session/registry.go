package session

import (
	"log/slog"
	"net"
	"sync"
	"time"
)

// Limits bounds a session's lifetime and buffer growth.
type Limits struct {
	InactivityTimeout    time.Duration
	MaxBufferBytes       int
	MaxUtteranceDuration time.Duration
}

// Registry owns the address-to-session mapping. The registry mutex guards
// only the map and the per-address generation counters; all buffer mutation
// happens under the individual session locks, so packets from unrelated
// clients never contend.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// generations keeps one counter per address ever seen, surviving session
	// removal so a stale Remove(key, gen) can never delete a newer utterance.
	// The map grows with the number of distinct client addresses, a few tens
	// of bytes each; it is not aged out because a counter reset would let a
	// recycled ephemeral port collide with an in-flight generation.
	generations map[string]uint64

	limits Limits
	logger *slog.Logger

	// Lifetime counters, guarded by mu
	created    uint64
	superseded uint64
	removed    uint64
}

// NewRegistry creates an empty session registry
func NewRegistry(limits Limits, logger *slog.Logger) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		generations: make(map[string]uint64),
		limits:      limits,
		logger:      logger,
	}
}

// Append routes one datagram payload to the session for addr, creating a
// fresh-generation session when the address is unseen or its current session
// is already flushing or closed. It returns the session the payload landed
// in and whether the session now exceeds a forced-flush cap.
func (r *Registry) Append(addr *net.UDPAddr, payload []byte, now time.Time) (*Session, bool) {
	key := addr.String()

	for {
		sess := r.getOrCreate(key, addr, now)
		if sess.Append(payload, now) {
			return sess, r.exceedsCaps(sess, now)
		}

		// The session was claimed between lookup and append. The old buffer
		// is sealed; this packet starts a new utterance.
		r.supersede(key, sess)
	}
}

// getOrCreate returns the live session for key, creating one with the next
// generation when absent.
func (r *Registry) getOrCreate(key string, addr *net.UDPAddr, now time.Time) *Session {
	r.mu.RLock()
	sess, ok := r.sessions[key]
	r.mu.RUnlock()
	if ok {
		return sess
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[key]; ok {
		return sess
	}

	r.generations[key]++
	sess = newSession(addr, r.generations[key], now)
	r.sessions[key] = sess
	r.created++

	r.logger.Debug("New session started",
		slog.String("client", key),
		slog.Uint64("generation", sess.Generation),
	)

	return sess
}

// supersede detaches a no-longer-active session from the map so the next
// getOrCreate starts a fresh generation. The detached session stays owned by
// whoever claimed it; its removal bookkeeping happens via Remove.
func (r *Registry) supersede(key string, old *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[key]; ok && cur == old {
		delete(r.sessions, key)
		r.superseded++

		r.logger.Debug("Session superseded by new utterance",
			slog.String("client", key),
			slog.Uint64("generation", old.Generation),
		)
	}
}

func (r *Registry) exceedsCaps(sess *Session, now time.Time) bool {
	return sess.TotalBytes() >= r.limits.MaxBufferBytes ||
		now.Sub(sess.StartTime) >= r.limits.MaxUtteranceDuration
}

// Claim attempts the exactly-once ACTIVE to FLUSHING transition for sess.
// Safe to race with concurrent appends and other claimers; only one caller
// wins per generation.
func (r *Registry) Claim(sess *Session, now time.Time) (FlushReason, bool) {
	return sess.tryClaim(now, r.limits)
}

// Remove deletes the session for key, but only while it still holds the
// given generation. A stale removal against a newer generation is a no-op.
func (r *Registry) Remove(key string, generation uint64) bool {
	r.mu.Lock()

	sess, ok := r.sessions[key]
	if !ok || sess.Generation != generation {
		r.mu.Unlock()
		return false
	}

	delete(r.sessions, key)
	r.removed++
	r.mu.Unlock()

	sess.close()

	r.logger.Debug("Session removed",
		slog.String("client", key),
		slog.Uint64("generation", generation),
	)

	return true
}

// Get retrieves the live session for key
func (r *Registry) Get(key string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[key]
	return sess, ok
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the current set of live sessions for sweeping and
// monitoring. The slice is a copy; the sessions are shared.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}

	return sessions
}

// Stats reports lifetime registry counters
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RegistryStats{
		Active:     len(r.sessions),
		Created:    r.created,
		Superseded: r.superseded,
		Removed:    r.removed,
	}
}

// RegistryStats represents registry lifetime counters
type RegistryStats struct {
	Active     int    `json:"active"`
	Created    uint64 `json:"created"`
	Superseded uint64 `json:"superseded"`
	Removed    uint64 `json:"removed"`
}
