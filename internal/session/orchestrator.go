package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/piotrostr/ezwhisper/internal/audio"
	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/internal/logbuf"
	"github.com/piotrostr/ezwhisper/internal/status"
	"github.com/piotrostr/ezwhisper/internal/storage/sqlite"
	"github.com/piotrostr/ezwhisper/internal/transcription"
	"github.com/piotrostr/ezwhisper/internal/trigger"
	"github.com/piotrostr/ezwhisper/internal/websocket"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

// AudioCapturer starts microphone capture for a session
type AudioCapturer interface {
	Start(deviceIndex *int) (AudioCapture, error)
}

// AudioCapture is an in-progress recording
type AudioCapture interface {
	Stop() audio.Buffer
}

// Pipeline turns a recording into final text
type Pipeline interface {
	Run(ctx context.Context, buf audio.Buffer, snap config.Snapshot) (transcription.Result, error)
}

// Injector places final text into the focused application
type Injector interface {
	Inject(text string, autoEnter bool) error
}

// ConfigSource provides the settings a session binds at its start
type ConfigSource interface {
	Snapshot() config.Snapshot
}

// HistoryStore persists completed sessions. Optional.
type HistoryStore interface {
	StoreSession(record *sqlite.SessionRecord) error
}

// StatusPublisher receives engine state transitions
type StatusPublisher interface {
	Publish(s status.AppStatus)
}

// Broadcaster pushes events to UI clients. Optional.
type Broadcaster interface {
	Broadcast(message *websocket.Message)
}

// Session is one hold-to-talk cycle. Its settings are fixed at the
// moment recording starts; config changes mid-session do not apply.
type Session struct {
	ID        string
	StartedAt time.Time
	Snapshot  config.Snapshot
	capture   AudioCapture
}

type pipelineResult struct {
	session  *Session
	duration time.Duration
	result   transcription.Result
	err      error
}

// Orchestrator drives the record/transcribe/inject cycle. All state
// transitions happen on the Run goroutine; trigger signals and
// pipeline completions are delivered to it over channels.
type Orchestrator struct {
	signals   <-chan trigger.Signal
	capturer  AudioCapturer
	pipeline  Pipeline
	injector  Injector
	cfg       ConfigSource
	history   HistoryStore
	statusPub StatusPublisher
	events    Broadcaster
	ring      *logbuf.Ring
	logger    *logger.Logger

	state   status.AppStatus
	current *Session
	results chan pipelineResult
}

// Options carries the optional collaborators of an Orchestrator
type Options struct {
	History HistoryStore
	Events  Broadcaster
}

// NewOrchestrator creates a session orchestrator
func NewOrchestrator(
	signals <-chan trigger.Signal,
	capturer AudioCapturer,
	pipeline Pipeline,
	injector Injector,
	cfg ConfigSource,
	statusPub StatusPublisher,
	ring *logbuf.Ring,
	log *logger.Logger,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		signals:   signals,
		capturer:  capturer,
		pipeline:  pipeline,
		injector:  injector,
		cfg:       cfg,
		history:   opts.History,
		statusPub: statusPub,
		events:    opts.Events,
		ring:      ring,
		logger:    log.Named("session"),
		state:     status.StatusIdle,
		results:   make(chan pipelineResult, 1),
	}
}

// Run processes trigger signals until ctx is cancelled. It is the only
// goroutine that touches orchestrator state.
func (o *Orchestrator) Run(ctx context.Context) {
	o.statusPub.Publish(status.StatusIdle)

	for {
		select {
		case sig, ok := <-o.signals:
			if !ok {
				return
			}
			o.handleSignal(ctx, sig)

		case res := <-o.results:
			o.completeSession(res)

		case <-ctx.Done():
			if o.current != nil && o.state == status.StatusRecording {
				o.current.capture.Stop()
				o.current = nil
			}
			return
		}
	}
}

func (o *Orchestrator) handleSignal(ctx context.Context, sig trigger.Signal) {
	switch o.state {
	case status.StatusIdle:
		if sig.Kind == trigger.Down {
			o.startSession()
		}
		// Release without a preceding press carries no intent.

	case status.StatusRecording:
		if sig.Kind == trigger.Up {
			o.sealSession(ctx)
		}
		// Repeated Down while already recording is noise from the hook.

	case status.StatusTranscribing:
		// The trigger is dead until the active session completes.
		o.logger.Debug("Ignoring signal while transcribing",
			logger.String("kind", sig.Kind.String()))
	}
}

func (o *Orchestrator) startSession() {
	snap := o.cfg.Snapshot()

	capture, err := o.capturer.Start(snap.DeviceIndex)
	if err != nil {
		o.logger.Error("Failed to start recording", logger.Error(err))
		o.ring.Errorf("failed to start recording: %v", err)
		return
	}

	o.current = &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Snapshot:  snap,
		capture:   capture,
	}
	o.setState(status.StatusRecording)
	o.logger.Info("Recording started", logger.String("session_id", o.current.ID))
	o.ring.Infof("recording...")
}

func (o *Orchestrator) sealSession(ctx context.Context) {
	sess := o.current
	buf := sess.capture.Stop()
	duration := buf.Duration()

	o.setState(status.StatusTranscribing)
	o.logger.Info("Recording stopped",
		logger.String("session_id", sess.ID),
		logger.Duration("duration", duration))
	o.ring.Infof("transcribing...")

	go func() {
		result, err := o.pipeline.Run(ctx, buf, sess.Snapshot)
		o.results <- pipelineResult{session: sess, duration: duration, result: result, err: err}
	}()
}

func (o *Orchestrator) completeSession(res pipelineResult) {
	sess := res.session

	switch {
	case res.err != nil:
		o.logger.Error("Transcription failed",
			logger.Error(res.err),
			logger.String("session_id", sess.ID))
		o.ring.Errorf("transcription failed: %v", res.err)

	case res.result.FinalText == "":
		o.logger.Warn("Empty transcription", logger.String("session_id", sess.ID))
		o.ring.Warnf("empty transcription")

	default:
		o.logger.Info("Inserting text",
			logger.String("session_id", sess.ID),
			logger.Int("chars", len(res.result.FinalText)))
		o.ring.Infof("inserting: %s", res.result.FinalText)

		injected := true
		if err := o.injector.Inject(res.result.FinalText, sess.Snapshot.AutoEnter); err != nil {
			o.logger.Error("Failed to insert text", logger.Error(err))
			o.ring.Errorf("failed to insert text: %v", err)
			injected = false
		}

		o.recordHistory(sess, res, injected)
	}

	o.current = nil
	o.setState(status.StatusIdle)
	o.ring.Infof("ready")
}

func (o *Orchestrator) recordHistory(sess *Session, res pipelineResult, injected bool) {
	mode := "raw"
	if sess.Snapshot.Translate {
		mode = "translate"
	} else if sess.Snapshot.Cleanup {
		mode = "cleanup"
	}

	if o.history != nil {
		record := &sqlite.SessionRecord{
			ID:         sess.ID,
			CreatedAt:  sess.StartedAt,
			DurationMs: res.duration.Milliseconds(),
			RawText:    res.result.RawText,
			FinalText:  res.result.FinalText,
			Mode:       mode,
			Injected:   injected,
		}
		if err := o.history.StoreSession(record); err != nil {
			o.logger.Error("Failed to store session", logger.Error(err))
		}
	}

	if o.events != nil {
		o.events.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeSessionCompleted,
			Data: map[string]any{
				"id":          sess.ID,
				"timestamp":   sess.StartedAt.UTC().Format(time.RFC3339),
				"duration_ms": res.duration.Milliseconds(),
				"text":        res.result.FinalText,
				"mode":        mode,
				"injected":    injected,
			},
		})
	}
}

func (o *Orchestrator) setState(s status.AppStatus) {
	o.state = s
	o.statusPub.Publish(s)
}
