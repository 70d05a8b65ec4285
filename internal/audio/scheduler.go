package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Scheduler defaults.
const (
	DefaultPollInterval  = time.Millisecond
	DefaultShutdownGrace = 250 * time.Millisecond
)

// Renderer fills an interleaved block. *Synth is the production renderer.
type Renderer interface {
	RenderInterleaved(buf []float32)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	BlockSize            int // frames per block
	Channels             int
	TargetBufferedBlocks int
	PollInterval         time.Duration
	ShutdownGrace        time.Duration
	Logger               *log.Logger
}

// SchedulerStats is a point-in-time view of the render loop.
type SchedulerStats struct {
	Blocks        int64
	WriteErrors   int64
	Buffered      int
	TargetBytes   int
	BlockBytes    int
	LastWriteTime time.Time
}

// Scheduler keeps the sink fed: whenever fewer than the target bytes are
// queued it renders and writes one more block, otherwise it sleeps briefly.
// It never renders further ahead than the target depth.
type Scheduler struct {
	renderer    Renderer
	sink        Sink
	logger      *log.Logger
	poll        time.Duration
	grace       time.Duration
	blockBytes  int
	targetBytes int

	// Render goroutine only.
	mix []float32

	blocks      atomic.Int64
	writeErrors atomic.Int64
	buffered    atomic.Int64
	lastWrite   atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewScheduler wires a renderer to a sink.
func NewScheduler(r Renderer, sink Sink, opts SchedulerOptions) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	samples := opts.BlockSize * opts.Channels
	blockBytes := samples * bytesPerSample
	return &Scheduler{
		renderer:    r,
		sink:        sink,
		logger:      opts.Logger,
		poll:        opts.PollInterval,
		grace:       opts.ShutdownGrace,
		blockBytes:  blockBytes,
		targetBytes: opts.TargetBufferedBlocks * blockBytes,
		mix:         make([]float32, samples),
	}
}

// Start runs the render loop on its own goroutine until ctx is cancelled or
// Close is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.closed {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(s.poll)
	defer timer.Stop()

	for ctx.Err() == nil {
		buffered := s.sink.Buffered()
		s.buffered.Store(int64(buffered))
		if buffered < s.targetBytes {
			if err := s.renderBlock(); err == nil {
				continue
			}
		}

		timer.Reset(s.poll)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) renderBlock() error {
	s.renderer.RenderInterleaved(s.mix)
	if err := s.sink.Write(s.mix); err != nil {
		n := s.writeErrors.Add(1)
		// A dead device fails every block; keep the log readable.
		if n == 1 || n%1000 == 0 {
			s.logger.Error("audio render error", "err", err, "failures", n)
		}
		return err
	}
	s.blocks.Add(1)
	s.lastWrite.Store(time.Now().UnixNano())
	return nil
}

// Stats returns render loop counters.
func (s *Scheduler) Stats() SchedulerStats {
	st := SchedulerStats{
		Blocks:      s.blocks.Load(),
		WriteErrors: s.writeErrors.Load(),
		Buffered:    int(s.buffered.Load()),
		TargetBytes: s.targetBytes,
		BlockBytes:  s.blockBytes,
	}
	if ns := s.lastWrite.Load(); ns != 0 {
		st.LastWriteTime = time.Unix(0, ns)
	}
	return st
}

// Close stops the loop, waiting at most the shutdown grace period, then
// closes the sink whether or not the loop has exited.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(s.grace):
			s.logger.Warn("render loop did not stop in time", "grace", s.grace)
		}
	}
	return s.sink.Close()
}
