// Package trigger turns raw OS input events into semantic push-to-talk
// signals. It subscribes to the global keyboard/mouse hook, classifies events
// against the configured gesture buttons and the Right Option key, and emits
// at most one Down per physical press and exactly one Up per release.
package trigger

import (
	"errors"
	"time"

	hook "github.com/robotn/gohook"

	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/internal/logbuf"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

// ErrPermissionDenied indicates the OS rejected the input-event subscription
// (missing input monitoring / accessibility permission).
var ErrPermissionDenied = errors.New("input event subscription denied")

// enableTimeout bounds how long Start waits for gohook to confirm the native
// hook is installed.
const enableTimeout = 5 * time.Second

// Source identifies which physical trigger produced a signal.
type Source string

const (
	SourceGestureButton Source = "gesture_button"
	SourceRightOption   Source = "right_option"
)

// Kind distinguishes press from release.
type Kind int

const (
	Down Kind = iota
	Up
)

func (k Kind) String() string {
	if k == Down {
		return "down"
	}
	return "up"
}

// Signal is one semantic trigger event. Immutable; created here, consumed
// once by the orchestrator.
type Signal struct {
	Kind   Kind
	Source Source
	At     time.Time
}

// Listener subscribes to OS input events and emits Signals. Signals are
// delivered through a buffered channel so a slow consumer never stalls the
// OS event loop; excess signals are dropped with a warning.
type Listener struct {
	cfg        config.TriggerConfig
	logger     *logger.Logger
	ring       *logbuf.Ring
	signals    chan Signal
	classifier *classifier
	started    bool
}

// NewListener creates a trigger listener. Start must be called before any
// signals are delivered.
func NewListener(cfg config.TriggerConfig, log *logger.Logger, ring *logbuf.Ring) *Listener {
	return &Listener{
		cfg:        cfg,
		logger:     log.Named("trigger"),
		ring:       ring,
		signals:    make(chan Signal, cfg.QueueSize),
		classifier: newClassifier(cfg),
	}
}

// Signals returns the channel the orchestrator consumes.
func (l *Listener) Signals() <-chan Signal {
	return l.signals
}

// Start establishes the OS input subscription and begins emitting signals.
// On permission failure the listener logs a fatal-for-subsystem error and the
// rest of the engine keeps running without trigger input.
func (l *Listener) Start() error {
	if l.started {
		return errors.New("listener already started")
	}

	events := hook.Start()
	if !awaitHookEnable(events, enableTimeout) {
		hook.End()
		l.logger.Error("no events from OS input hook - check input monitoring permission")
		l.ring.Errorf("input monitoring unavailable - check permissions")
		return ErrPermissionDenied
	}
	l.started = true

	l.logger.Info("input monitoring started",
		logger.Any("mouse_buttons", l.cfg.MouseButtons),
		logger.Int("gesture_keycode", l.cfg.GestureKeycode),
		logger.Int("right_option_rawcode", l.cfg.RightOptionRawcode))
	l.ring.Infof("input monitoring started - hold trigger to record")

	go l.run(events)
	return nil
}

// Stop tears down the OS input subscription.
func (l *Listener) Stop() {
	if !l.started {
		return
	}
	hook.End()
	l.started = false
}

// awaitHookEnable waits for the first event on a fresh hook channel. gohook
// never reports subscription errors directly; a healthy hook emits a
// HookEnabled event almost immediately, while a refused one stays silent.
func awaitHookEnable(events <-chan hook.Event, timeout time.Duration) bool {
	select {
	case _, ok := <-events:
		return ok
	case <-time.After(timeout):
		return false
	}
}

func (l *Listener) run(events <-chan hook.Event) {
	for ev := range events {
		sig, ok := l.classifier.classify(ev)
		if !ok {
			continue
		}

		select {
		case l.signals <- sig:
			l.logger.Debug("trigger signal",
				logger.String("kind", sig.Kind.String()),
				logger.String("source", string(sig.Source)))
		default:
			l.logger.Warn("trigger queue full, dropping signal",
				logger.String("kind", sig.Kind.String()))
		}
	}
	l.logger.Info("input event stream closed")
}
