package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

// depthSink records the queued depth the scheduler saw before each write.
type depthSink struct {
	*ClockedSink

	mu        sync.Mutex
	maxBefore int
	maxAfter  int
}

func (d *depthSink) Write(samples []float32) error {
	before := d.ClockedSink.Buffered()
	if err := d.ClockedSink.Write(samples); err != nil {
		return err
	}
	after := d.ClockedSink.Buffered()

	d.mu.Lock()
	d.maxBefore = max(d.maxBefore, before)
	d.maxAfter = max(d.maxAfter, after)
	d.mu.Unlock()
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestSchedulerBackpressure(t *testing.T) {
	format := Format{SampleRate: 48000, Channels: 2}
	synth := New(format)
	synth.TriggerVoice(allEffect(), clickPacket(), 1, 1, 0)

	sink := &depthSink{ClockedSink: NewClockedSink(format)}
	sched := NewScheduler(synth, sink, SchedulerOptions{
		BlockSize:            512,
		Channels:             2,
		TargetBufferedBlocks: 3,
		Logger:               quietLogger(),
	})

	sched.Start(context.Background())
	time.Sleep(150 * time.Millisecond)
	if err := sched.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st := sched.Stats()
	blockBytes := 512 * 2 * 4
	if st.BlockBytes != blockBytes || st.TargetBytes != 3*blockBytes {
		t.Fatalf("Unexpected sizes: %+v", st)
	}

	if sink.maxBefore >= st.TargetBytes {
		t.Errorf("Rendered with %d bytes queued, target %d", sink.maxBefore, st.TargetBytes)
	}
	if sink.maxAfter > st.TargetBytes+blockBytes {
		t.Errorf("Queued depth grew to %d bytes, target %d", sink.maxAfter, st.TargetBytes)
	}

	// 150 ms of real time is about 14 blocks; it must at least fill the target
	// and must not run far ahead of the drain rate.
	if st.Blocks < 3 || st.Blocks > 30 {
		t.Errorf("Expected roughly real-time rendering, got %d blocks", st.Blocks)
	}
	if int64(sink.Writes()) != st.Blocks {
		t.Errorf("Sink saw %d writes, scheduler counted %d", sink.Writes(), st.Blocks)
	}
	if got, want := synth.Clock(), st.Blocks*512; got != want {
		t.Errorf("Clock = %d, want %d", got, want)
	}
}

type failingSink struct {
	mu     sync.Mutex
	closed bool
}

func (f *failingSink) Write([]float32) error { return errors.New("device unplugged") }
func (f *failingSink) Buffered() int         { return 0 }
func (f *failingSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestSchedulerSurvivesWriteErrors(t *testing.T) {
	synth := New(Format{SampleRate: 48000, Channels: 2})
	sink := &failingSink{}
	sched := NewScheduler(synth, sink, SchedulerOptions{
		BlockSize:            64,
		Channels:             2,
		TargetBufferedBlocks: 2,
		Logger:               quietLogger(),
	})

	sched.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	if err := sched.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st := sched.Stats()
	if st.WriteErrors < 2 {
		t.Errorf("Expected the loop to keep retrying, got %d errors", st.WriteErrors)
	}
	if st.Blocks != 0 {
		t.Errorf("Expected no successful blocks, got %d", st.Blocks)
	}
	if !sink.closed {
		t.Error("Expected sink closed")
	}
}

type stuckRenderer struct {
	release chan struct{}
	once    sync.Once
	entered chan struct{}
}

func (r *stuckRenderer) RenderInterleaved([]float32) {
	r.once.Do(func() { close(r.entered) })
	<-r.release
}

func TestSchedulerCloseIsBounded(t *testing.T) {
	r := &stuckRenderer{release: make(chan struct{}), entered: make(chan struct{})}
	defer close(r.release)

	sink := NewClockedSink(Format{SampleRate: 48000, Channels: 2})
	sched := NewScheduler(r, sink, SchedulerOptions{
		BlockSize:            64,
		Channels:             2,
		TargetBufferedBlocks: 1,
		ShutdownGrace:        50 * time.Millisecond,
		Logger:               quietLogger(),
	})
	sched.Start(context.Background())
	<-r.entered

	start := time.Now()
	if err := sched.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Close blocked for %v", elapsed)
	}
	if err := sink.Write(make([]float32, 4)); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Expected sink closed after timeout, got %v", err)
	}

	if err := sched.Close(); err != nil {
		t.Errorf("Second Close: %v", err)
	}
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	format := Format{SampleRate: 48000, Channels: 1}
	synth := New(format)
	sink := NewClockedSink(format)
	sched := NewScheduler(synth, sink, SchedulerOptions{BlockSize: 128, Channels: 1, TargetBufferedBlocks: 2})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	blocks := sched.Stats().Blocks
	time.Sleep(30 * time.Millisecond)
	if after := sched.Stats().Blocks; after != blocks {
		t.Errorf("Loop kept rendering after cancel: %d -> %d", blocks, after)
	}
	if err := sched.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
