package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"

	"github.com/icco/hapticd/internal/audio"
	"github.com/icco/hapticd/internal/config"
	"github.com/icco/hapticd/internal/dispatch"
	"github.com/icco/hapticd/internal/tui"
)

// loadConfigs reads the engine and mapping files. A missing file at its
// default path falls back to defaults; a missing file named by a flag is an
// error.
func loadConfigs() (config.Engine, config.Mapping, error) {
	engine, err := config.LoadEngine(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !rootCmd.PersistentFlags().Changed("config"):
		logger.Warn("engine config not found, using defaults", "path", configPath)
		engine = config.DefaultEngine()
	case err != nil:
		return config.Engine{}, config.Mapping{}, fmt.Errorf("load config: %w", err)
	}

	mapping, err := config.LoadMapping(mapPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !rootCmd.PersistentFlags().Changed("map"):
		logger.Warn("mapping config not found, no rules loaded", "path", mapPath)
		mapping = config.Mapping{Version: 1}
	case err != nil:
		return config.Engine{}, config.Mapping{}, fmt.Errorf("load config: %w", err)
	}

	logger.Info("config loaded", "sampleRate", engine.SampleRate, "channels", engine.Channels,
		"blockSize", engine.BlockSize, "targetBlocks", engine.TargetBufferedBlocks, "rules", len(mapping.Rules))
	return engine, mapping, nil
}

type engineOptions struct {
	nullOutput bool
	observer   dispatch.Observer
}

// engine is the assembled pipeline: synth, output sink, render scheduler and
// dispatcher.
type engine struct {
	cfg      config.Engine
	synth    *audio.Synth
	sched    *audio.Scheduler
	dispatch *dispatch.Dispatcher
	link     atomic.Pointer[string]
}

func newEngine(opts engineOptions) (*engine, error) {
	cfg, mapping, err := loadConfigs()
	if err != nil {
		return nil, err
	}

	format := audio.FormatFromConfig(cfg)
	synth := audio.New(format)

	var sink audio.Sink
	if opts.nullOutput {
		sink = audio.NewClockedSink(format)
		logger.Info("audio output disabled, rendering in real time to a null sink")
	} else {
		if cfg.Output.DeviceNameContains != "" {
			logger.Warn("device selection not supported, using the default output", "deviceNameContains", cfg.Output.DeviceNameContains)
		}
		sink, err = audio.NewDeviceSink(format, cfg.Output.BufferMs, logger)
		if err != nil {
			return nil, err
		}
	}

	sched := audio.NewScheduler(synth, sink, audio.SchedulerOptions{
		BlockSize:            cfg.BlockSize,
		Channels:             cfg.Channels,
		TargetBufferedBlocks: cfg.TargetBufferedBlocks,
		Logger:               logger,
	})

	dopts := []dispatch.Option{dispatch.WithLogger(logger)}
	if opts.observer != nil {
		dopts = append(dopts, dispatch.WithObserver(opts.observer))
	}

	return &engine{
		cfg:      cfg,
		synth:    synth,
		sched:    sched,
		dispatch: dispatch.New(cfg, mapping, synth, dopts...),
	}, nil
}

func (e *engine) start(ctx context.Context) {
	e.sched.Start(ctx)
}

func (e *engine) setLink(url string) {
	e.link.Store(&url)
}

// drain waits until every scheduled voice has been rendered, plus the time
// the queued output takes to play, or until timeout.
func (e *engine) drain(ctx context.Context, timeout time.Duration) {
	deadline := time.After(timeout)
	for e.synth.ActiveVoices() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case <-ctx.Done():
	case <-deadline:
	case <-time.After(e.latency()):
	}
}

// latency is how far the rendered output runs ahead of the speaker.
func (e *engine) latency() time.Duration {
	frames := e.cfg.BlockSize * e.cfg.TargetBufferedBlocks
	queued := time.Duration(frames) * time.Second / time.Duration(e.cfg.SampleRate)
	return queued + time.Duration(e.cfg.Output.BufferMs)*time.Millisecond
}

func (e *engine) Close() error {
	return e.sched.Close()
}

// Snapshot implements tui.Source.
func (e *engine) Snapshot() tui.Snapshot {
	s := tui.Snapshot{
		SampleRate: e.cfg.SampleRate,
		Clock:      e.synth.Clock(),
		Voices:     e.synth.ActiveVoices(),
		Wind:       e.synth.Wind(),
		Telemetry:  e.synth.Telemetry(),
		Render:     e.sched.Stats(),
		Messages:   e.dispatch.Stats(),
	}
	if l := e.link.Load(); l != nil {
		s.Link = *l
	}
	return s
}
