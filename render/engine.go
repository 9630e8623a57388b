package render

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trackline/trackline"
)

type (
	// Enginer creates reference render engines. It implements
	// trackline.Enginer.
	Enginer struct {
		config Config
	}

	// Engine is the reference render engine. It runs two goroutines: the
	// audio goroutine, which runs the Player and writes its output to the
	// audio sink, and the loader goroutine, which decodes the assets of new
	// snapshots into the sample bank so that the audio goroutine never has
	// to touch the disk.
	Engine struct {
		name   string
		config Config
		source trackline.SnapshotSource
		broker *Broker
		bank   *SampleBank
		player *Player
		output trackline.AudioSink
		log    logrus.FieldLogger

		loadCtx   context.Context
		cancel    context.CancelFunc
		closeOnce sync.Once
		closeErr  error
	}
)

const closeTimeout = 3 * time.Second

func NewEnginer(opts ...Option) *Enginer {
	return &Enginer{config: newConfig(opts)}
}

// Config returns the settings engines are created with.
func (e *Enginer) Config() Config {
	return e.config
}

func (e *Enginer) Engine(name string, source trackline.SnapshotSource) (trackline.Engine, error) {
	return NewEngine(name, source, e.config)
}

// NewEngine creates an engine and starts its goroutines.
func NewEngine(name string, source trackline.SnapshotSource, cfg Config) (*Engine, error) {
	if cfg.SampleRate <= 0 || cfg.BlockSize <= 0 {
		return nil, errors.Wrapf(trackline.ErrInvalidParameter, "render settings: %d Hz, %d frames per block", cfg.SampleRate, cfg.BlockSize)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	var output trackline.AudioSink
	if cfg.Context != nil {
		output = cfg.Context.Output()
	} else {
		output = NewClockSink(cfg.SampleRate)
	}
	broker := NewBroker()
	bank := NewSampleBank(cfg.SampleRate)
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		name:    name,
		config:  cfg,
		source:  source,
		broker:  broker,
		bank:    bank,
		player:  NewPlayer(broker, source, bank, cfg.SampleRate),
		output:  output,
		log:     cfg.Logger.WithField("engine", name),
		loadCtx: ctx,
		cancel:  cancel,
	}
	TrySend[any](broker.ToPlayer, clickGainMsg{gain: cfg.ClickGain})
	go e.audioLoop()
	go e.loaderLoop()
	e.Notify()
	e.log.WithFields(logrus.Fields{"sampleRate": cfg.SampleRate, "blockSize": cfg.BlockSize}).Debug("engine created")
	return e, nil
}

func (e *Engine) audioLoop() {
	defer close(e.broker.FinishedAudio)
	buffer := make([]float32, 2*e.config.BlockSize)
	for {
		select {
		case <-e.broker.CloseAudio:
			return
		default:
			e.player.Process(buffer)
			if err := e.output.WriteAudio(buffer); err != nil {
				e.log.WithError(err).Error("audio output failed, stopping audio")
				TrySend(e.broker.ToObserver, PlayerMsg{Data: Alert{Name: "OutputFailed", Message: err.Error(), Priority: Error}})
				return
			}
		}
	}
}

func (e *Engine) loaderLoop() {
	defer close(e.broker.FinishedLoader)
	for {
		select {
		case <-e.broker.CloseLoader:
			return
		case <-e.broker.ToLoader:
			p := e.source.Snapshot()
			if p == nil {
				continue
			}
			paths := AssetPaths(p)
			if err := e.bank.Preload(e.loadCtx, paths); err != nil {
				if e.loadCtx.Err() != nil {
					return
				}
				e.log.WithError(err).Warn("could not load all assets")
				TrySend(e.broker.ToObserver, PlayerMsg{Data: Alert{Name: "AssetLoad", Message: err.Error(), Priority: Warning}})
			}
			e.bank.Forget(paths)
		}
	}
}

func (e *Engine) send(msg any) error {
	if !TrySend(e.broker.ToPlayer, msg) {
		return errors.Wrap(trackline.ErrEngineFailure, "player message queue is full")
	}
	return nil
}

func (e *Engine) Start() error {
	return e.send(startMsg{})
}

func (e *Engine) Stop() error {
	return e.send(stopMsg{})
}

func (e *Engine) SetTempo(bpm float64) error {
	if err := trackline.ValidateBPM(bpm); err != nil {
		return err
	}
	return e.send(tempoMsg{bpm: bpm})
}

func (e *Engine) SetClickTrack(enabled bool) {
	e.send(clickMsg{enabled: enabled})
}

// Seek moves the playback position to the given beat.
func (e *Engine) Seek(beat float64) error {
	return e.send(seekMsg{beat: beat})
}

// Notify makes the loader pick up the assets of the latest snapshot. The
// player needs no message: it loads the snapshot at every block.
func (e *Engine) Notify() {
	TrySend(e.broker.ToLoader, struct{}{})
}

// Messages returns the position reports and alerts of the player. Messages
// are dropped when nobody reads them.
func (e *Engine) Messages() <-chan PlayerMsg {
	return e.broker.ToObserver
}

// Export renders project to destination. Assets the live player already
// decoded are reused, but the export keeps them in a bank of its own, so
// the loader dropping them for a newer snapshot does not affect it.
func (e *Engine) Export(ctx context.Context, project *trackline.Project, destination string, progress func(float64)) error {
	log := e.log.WithField("destination", destination)
	log.Info("export started")
	start := time.Now()
	bank := e.bank.Subset(AssetPaths(project))
	if err := Export(ctx, bank, project, destination, e.config, progress); err != nil {
		log.WithError(err).Warn("export did not complete")
		return err
	}
	log.WithField("elapsed", time.Since(start)).Info("export finished")
	return nil
}

// Close stops the goroutines and closes the audio output. It waits at most
// a few seconds for the goroutines to finish.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
		TrySend(e.broker.CloseAudio, struct{}{})
		TrySend(e.broker.CloseLoader, struct{}{})
		if !TimeoutWait(e.broker.FinishedAudio, closeTimeout) {
			e.closeErr = errors.Wrap(trackline.ErrEngineFailure, "audio goroutine did not finish")
		}
		if !TimeoutWait(e.broker.FinishedLoader, closeTimeout) && e.closeErr == nil {
			e.closeErr = errors.Wrap(trackline.ErrEngineFailure, "loader goroutine did not finish")
		}
		if err := e.output.Close(); err != nil && e.closeErr == nil {
			e.closeErr = errors.Wrap(err, "could not close audio output")
		}
		e.log.Debug("engine closed")
	})
	return e.closeErr
}
