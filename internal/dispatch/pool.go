package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/Bkbest/calendar-agent/internal/agent"
	"github.com/Bkbest/calendar-agent/internal/audio"
	"github.com/Bkbest/calendar-agent/internal/metrics"
	"github.com/Bkbest/calendar-agent/internal/session"
	"github.com/Bkbest/calendar-agent/internal/transcription"
)

// Queue policies for a full dispatch queue.
const (
	PolicyDropOldest = "drop_oldest"
	PolicyReject     = "reject"
)

// Error reply policies for a failed pipeline.
const (
	ErrorReplyNotify = "notify"
	ErrorReplySilent = "silent"
)

// Transcriber converts one assembled utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req *transcription.Request) (*transcription.Response, error)
}

// Agent turns a transcript into a reply.
type Agent interface {
	Invoke(ctx context.Context, req *agent.Request) (*agent.Response, error)
}

// Responder delivers the final reply bytes back to the client address.
type Responder interface {
	Send(addr *net.UDPAddr, payload []byte) error
}

// Config contains dispatcher configuration
type Config struct {
	Workers     int
	QueueSize   int
	QueuePolicy string
	ErrorReply  string
	SampleRate  int
}

// job is one claimed session awaiting a worker.
type job struct {
	sess       *session.Session
	reason     session.FlushReason
	enqueuedAt time.Time
}

// Pool runs the flush pipeline: assemble audio, transcribe, invoke the
// agent, reply. A bounded queue in front of the workers absorbs bursts;
// when it overflows, the configured policy drops the oldest utterance or
// rejects the newest. Every outcome, including a drop, removes the session
// from the registry.
type Pool struct {
	config      Config
	registry    *session.Registry
	transcriber Transcriber
	agent       Agent
	responder   Responder
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu   sync.Mutex
	cond *sync.Cond
	jobs *queue.Queue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Lifetime counters, guarded by mu
	dispatched uint64
	dropped    uint64
	succeeded  uint64
	failed     uint64
}

// NewPool creates a dispatcher pool
func NewPool(config Config, registry *session.Registry, transcriber Transcriber, ag Agent, responder Responder, m *metrics.Metrics, logger *slog.Logger) *Pool {
	if config.Workers <= 0 {
		config.Workers = 10
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.QueuePolicy == "" {
		config.QueuePolicy = PolicyDropOldest
	}
	if config.ErrorReply == "" {
		config.ErrorReply = ErrorReplyNotify
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		config:      config,
		registry:    registry,
		transcriber: transcriber,
		agent:       ag,
		responder:   responder,
		metrics:     m,
		logger:      logger,
		jobs:        queue.New(),
		ctx:         ctx,
		cancel:      cancel,
	}
	p.cond = sync.NewCond(&p.mu)

	return p
}

// Start launches the worker goroutines
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("Dispatcher started",
		slog.Int("workers", p.config.Workers),
		slog.Int("queue_size", p.config.QueueSize),
		slog.String("queue_policy", p.config.QueuePolicy),
	)
}

// Stop drains the workers and discards queued utterances. Discarded jobs
// still remove their sessions so the registry ends clean.
func (p *Pool) Stop() {
	p.cancel()

	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	for p.jobs.Length() > 0 {
		j := p.jobs.Remove().(*job)
		p.dropped++
		p.removeSession(j.sess)
	}
	p.mu.Unlock()

	p.metrics.SetQueueDepth(0)

	p.logger.Info("Dispatcher stopped")
}

// Flush enqueues a claimed session for processing. Never blocks: a full
// queue triggers the overflow policy instead.
func (p *Pool) Flush(sess *session.Session, reason session.FlushReason) {
	now := time.Now()

	p.metrics.RecordSessionFlushed(string(reason), sess.TotalBytes(), now.Sub(sess.StartTime).Seconds())

	p.mu.Lock()

	if p.jobs.Length() >= p.config.QueueSize {
		if p.config.QueuePolicy == PolicyReject {
			p.dropped++
			p.mu.Unlock()

			p.metrics.RecordFlushDropped()
			p.removeSession(sess)

			p.logger.Warn("Dispatch queue full, utterance rejected",
				slog.String("client", sess.Key),
				slog.Uint64("generation", sess.Generation),
			)
			return
		}

		// drop_oldest: evict the head to make room
		evicted := p.jobs.Remove().(*job)
		p.dropped++

		p.metrics.RecordFlushDropped()
		p.removeSession(evicted.sess)

		p.logger.Warn("Dispatch queue full, oldest utterance dropped",
			slog.String("client", evicted.sess.Key),
			slog.Uint64("generation", evicted.sess.Generation),
		)
	}

	p.jobs.Add(&job{sess: sess, reason: reason, enqueuedAt: now})
	p.dispatched++
	depth := p.jobs.Length()

	p.cond.Signal()
	p.mu.Unlock()

	p.metrics.SetQueueDepth(depth)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.jobs.Length() == 0 && p.ctx.Err() == nil {
			p.cond.Wait()
		}

		if p.ctx.Err() != nil {
			p.mu.Unlock()
			return
		}

		j := p.jobs.Remove().(*job)
		depth := p.jobs.Length()
		p.mu.Unlock()

		p.metrics.SetQueueDepth(depth)
		p.process(j)
	}
}

// process runs the full pipeline for one utterance. The session is removed
// from the registry on every path out.
func (p *Pool) process(j *job) {
	sess := j.sess
	defer p.removeSession(sess)

	queueWait := time.Since(j.enqueuedAt)
	chunks := sess.TakeChunks()

	assembled, format, err := audio.Assemble(chunks, p.config.SampleRate)
	if err != nil {
		p.fail(sess, "audio", err)
		return
	}

	requestID := uuid.NewString()
	threadID := NewThreadID()

	p.logger.Info("Processing utterance",
		slog.String("client", sess.Key),
		slog.Uint64("generation", sess.Generation),
		slog.String("reason", string(j.reason)),
		slog.String("format", string(format)),
		slog.Int("bytes", len(assembled)),
		slog.String("request_id", requestID),
		slog.String("thread_id", threadID),
	)

	start := time.Now()
	p.metrics.RecordTranscriptionRequest()

	tr, err := p.transcriber.Transcribe(p.ctx, &transcription.Request{
		RequestID: requestID,
		SessionID: sess.Key,
		AudioData: assembled,
		Format:    string(format),
	})
	if err != nil {
		p.metrics.RecordTranscriptionFailure(time.Since(start).Seconds())
		p.fail(sess, "transcription", err)
		return
	}
	p.metrics.RecordTranscriptionSuccess(time.Since(start).Seconds())

	if tr.Text == "" {
		p.fail(sess, "transcription", fmt.Errorf("empty transcript"))
		return
	}

	start = time.Now()
	p.metrics.RecordAgentRequest()

	reply, err := p.agent.Invoke(p.ctx, &agent.Request{
		Input:    tr.Text,
		ThreadID: threadID,
	})
	if err != nil {
		p.metrics.RecordAgentFailure(time.Since(start).Seconds())
		p.fail(sess, "agent", err)
		return
	}
	p.metrics.RecordAgentSuccess(time.Since(start).Seconds())

	if err := p.responder.Send(sess.Addr, []byte(reply.Reply)); err != nil {
		p.metrics.RecordReplyFailed()
		p.logger.Error("Failed to send reply",
			slog.String("client", sess.Key),
			slog.String("error", err.Error()),
		)
	} else {
		p.metrics.RecordReplySent()
	}

	p.mu.Lock()
	p.succeeded++
	p.mu.Unlock()

	p.logger.Info("Utterance completed",
		slog.String("client", sess.Key),
		slog.String("transcript", tr.Text),
		slog.Duration("queue_wait", queueWait),
	)
}

// fail logs a pipeline failure and, under the notify policy, tells the
// client. The reply send is best effort.
func (p *Pool) fail(sess *session.Session, stage string, err error) {
	p.mu.Lock()
	p.failed++
	p.mu.Unlock()

	p.logger.Error("Utterance processing failed",
		slog.String("client", sess.Key),
		slog.Uint64("generation", sess.Generation),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)

	if p.config.ErrorReply != ErrorReplyNotify {
		return
	}

	msg := fmt.Sprintf("ERROR: %s failed", stage)
	if err := p.responder.Send(sess.Addr, []byte(msg)); err != nil {
		p.metrics.RecordReplyFailed()
		return
	}
	p.metrics.RecordReplySent()
}

func (p *Pool) removeSession(sess *session.Session) {
	p.registry.Remove(sess.Key, sess.Generation)
	p.metrics.SetActiveSessions(p.registry.Len())
}

// Stats reports lifetime dispatcher counters
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Workers:    p.config.Workers,
		QueueDepth: p.jobs.Length(),
		Dispatched: p.dispatched,
		Dropped:    p.dropped,
		Succeeded:  p.succeeded,
		Failed:     p.failed,
	}
}

// PoolStats represents dispatcher lifetime counters
type PoolStats struct {
	Workers    int    `json:"workers"`
	QueueDepth int    `json:"queue_depth"`
	Dispatched uint64 `json:"dispatched"`
	Dropped    uint64 `json:"dropped"`
	Succeeded  uint64 `json:"succeeded"`
	Failed     uint64 `json:"failed"`
}
