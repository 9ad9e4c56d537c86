package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/piotrostr/ezwhisper/internal/audio"
	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/internal/logbuf"
	"github.com/piotrostr/ezwhisper/internal/status"
	"github.com/piotrostr/ezwhisper/internal/storage/sqlite"
	"github.com/piotrostr/ezwhisper/internal/transcription"
	"github.com/piotrostr/ezwhisper/internal/trigger"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

type fakeCapture struct {
	buf audio.Buffer
}

func (f *fakeCapture) Stop() audio.Buffer { return f.buf }

type fakeCapturer struct {
	mu     sync.Mutex
	starts int
	err    error
	buf    audio.Buffer
}

func (f *fakeCapturer) Start(deviceIndex *int) (AudioCapture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.err != nil {
		return nil, f.err
	}
	return &fakeCapture{buf: f.buf}, nil
}

func (f *fakeCapturer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type fakePipeline struct {
	result  transcription.Result
	err     error
	release chan struct{} // when non-nil, Run blocks until closed
}

func (f *fakePipeline) Run(ctx context.Context, buf audio.Buffer, snap config.Snapshot) (transcription.Result, error) {
	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

type fakeInjector struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeInjector) Inject(text string, autoEnter bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakeInjector) injected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeConfigSource struct {
	snap config.Snapshot
}

func (f *fakeConfigSource) Snapshot() config.Snapshot { return f.snap }

type statusRecorder struct {
	ch chan status.AppStatus
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{ch: make(chan status.AppStatus, 16)}
}

func (r *statusRecorder) Publish(s status.AppStatus) { r.ch <- s }

func (r *statusRecorder) wait(t *testing.T, want status.AppStatus) {
	t.Helper()
	select {
	case got := <-r.ch:
		if got != want {
			t.Fatalf("expected status %q, got %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for status %q", want)
	}
}

func (r *statusRecorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case got := <-r.ch:
		t.Fatalf("unexpected status transition %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeHistory struct {
	mu      sync.Mutex
	records []*sqlite.SessionRecord
}

func (f *fakeHistory) StoreSession(record *sqlite.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeHistory) stored() []*sqlite.SessionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*sqlite.SessionRecord(nil), f.records...)
}

type harness struct {
	signals  chan trigger.Signal
	capturer *fakeCapturer
	pipeline *fakePipeline
	injector *fakeInjector
	statuses *statusRecorder
	history  *fakeHistory
	ring     *logbuf.Ring
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, configure func(*harness)) *harness {
	t.Helper()
	h := &harness{
		signals: make(chan trigger.Signal, 16),
		capturer: &fakeCapturer{
			buf: audio.Buffer{Samples: make([]int16, 16000), SampleRate: 16000, Channels: 1},
		},
		pipeline: &fakePipeline{result: transcription.Result{RawText: "hello", FinalText: "Hello."}},
		injector: &fakeInjector{},
		statuses: newStatusRecorder(),
		history:  &fakeHistory{},
		ring:     logbuf.NewRing(logbuf.DefaultCapacity),
	}
	if configure != nil {
		configure(h)
	}

	orch := NewOrchestrator(
		h.signals,
		h.capturer,
		h.pipeline,
		h.injector,
		&fakeConfigSource{},
		h.statuses,
		h.ring,
		logger.NewNop(),
		Options{History: h.history},
	)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go orch.Run(ctx)

	// Initial publish on startup.
	h.statuses.wait(t, status.StatusIdle)
	return h
}

func (h *harness) press()   { h.signals <- trigger.Signal{Kind: trigger.Down, At: time.Now()} }
func (h *harness) release() { h.signals <- trigger.Signal{Kind: trigger.Up, At: time.Now()} }

func ringContains(ring *logbuf.Ring, substr string) bool {
	for _, e := range ring.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestFullCycle(t *testing.T) {
	h := newHarness(t, nil)

	h.press()
	h.statuses.wait(t, status.StatusRecording)
	h.release()
	h.statuses.wait(t, status.StatusTranscribing)
	h.statuses.wait(t, status.StatusIdle)

	if got := h.injector.injected(); len(got) != 1 || got[0] != "Hello." {
		t.Fatalf("expected one injection of final text, got %v", got)
	}

	records := h.history.stored()
	if len(records) != 1 {
		t.Fatalf("expected one history record, got %d", len(records))
	}
	if records[0].RawText != "hello" || records[0].FinalText != "Hello." {
		t.Errorf("unexpected record texts: raw=%q final=%q", records[0].RawText, records[0].FinalText)
	}
	if !records[0].Injected {
		t.Error("record should be marked injected")
	}
	if records[0].ID == "" {
		t.Error("record should carry the session ID")
	}

	if !ringContains(h.ring, "recording...") || !ringContains(h.ring, "transcribing...") {
		t.Error("expected progress entries in the log ring")
	}
	if !ringContains(h.ring, "inserting: Hello.") {
		t.Error("expected insertion entry in the log ring")
	}
	if !ringContains(h.ring, "ready") {
		t.Error("expected ready entry in the log ring")
	}
}

func TestTranscriptionFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.pipeline.err = &transcription.UpstreamError{Status: 503, Body: "overloaded"}
	})

	h.press()
	h.statuses.wait(t, status.StatusRecording)
	h.release()
	h.statuses.wait(t, status.StatusTranscribing)
	h.statuses.wait(t, status.StatusIdle)

	if got := h.injector.injected(); len(got) != 0 {
		t.Fatalf("nothing should be injected on failure, got %v", got)
	}
	if len(h.history.stored()) != 0 {
		t.Error("failed sessions should not be recorded")
	}
	if !ringContains(h.ring, "transcription failed") {
		t.Error("expected failure entry in the log ring")
	}

	// The engine is usable again.
	h.press()
	h.statuses.wait(t, status.StatusRecording)
}

// Storage is optional; when disabled, main wires a nil *sqlite.SessionStorage.
// Assigning that typed nil into Options.History yields a non-nil interface,
// so a completed session must still survive it.
func TestNilSessionStorageDoesNotPanic(t *testing.T) {
	var storage *sqlite.SessionStorage

	signals := make(chan trigger.Signal, 16)
	capturer := &fakeCapturer{
		buf: audio.Buffer{Samples: make([]int16, 16000), SampleRate: 16000, Channels: 1},
	}
	injector := &fakeInjector{}
	statuses := newStatusRecorder()

	orch := NewOrchestrator(
		signals,
		capturer,
		&fakePipeline{result: transcription.Result{RawText: "hi", FinalText: "Hi."}},
		injector,
		&fakeConfigSource{},
		statuses,
		logbuf.NewRing(logbuf.DefaultCapacity),
		logger.NewNop(),
		Options{History: storage},
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go orch.Run(ctx)
	statuses.wait(t, status.StatusIdle)

	signals <- trigger.Signal{Kind: trigger.Down, At: time.Now()}
	statuses.wait(t, status.StatusRecording)
	signals <- trigger.Signal{Kind: trigger.Up, At: time.Now()}
	statuses.wait(t, status.StatusTranscribing)
	statuses.wait(t, status.StatusIdle)

	if got := injector.injected(); len(got) != 1 || got[0] != "Hi." {
		t.Fatalf("expected one injection of final text, got %v", got)
	}
}

func TestRepeatedPressWhileRecordingIsIgnored(t *testing.T) {
	h := newHarness(t, nil)

	h.press()
	h.statuses.wait(t, status.StatusRecording)
	h.press()
	h.press()
	h.statuses.expectNone(t)
	h.release()
	h.statuses.wait(t, status.StatusTranscribing)
	h.statuses.wait(t, status.StatusIdle)

	if count := h.capturer.startCount(); count != 1 {
		t.Fatalf("expected a single capture start, got %d", count)
	}
}

func TestOrphanReleaseAtIdleIsIgnored(t *testing.T) {
	h := newHarness(t, nil)

	h.release()
	h.statuses.expectNone(t)

	h.press()
	h.statuses.wait(t, status.StatusRecording)
}

func TestSignalsDuringTranscribingAreIgnored(t *testing.T) {
	releaseCh := make(chan struct{})
	h := newHarness(t, func(h *harness) {
		h.pipeline.release = releaseCh
	})

	h.press()
	h.statuses.wait(t, status.StatusRecording)
	h.release()
	h.statuses.wait(t, status.StatusTranscribing)

	// Trigger activity while the pipeline is in flight.
	h.press()
	h.release()
	h.statuses.expectNone(t)

	close(releaseCh)
	h.statuses.wait(t, status.StatusIdle)

	if count := h.capturer.startCount(); count != 1 {
		t.Fatalf("expected a single capture start, got %d", count)
	}
}

func TestCaptureStartFailureStaysIdle(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.capturer.err = &audio.DeviceUnavailableError{Index: 7, Err: errors.New("no such device")}
	})

	h.press()
	h.statuses.expectNone(t)

	if !ringContains(h.ring, "failed to start recording") {
		t.Error("expected device failure entry in the log ring")
	}
	if got := h.injector.injected(); len(got) != 0 {
		t.Fatalf("nothing should be injected, got %v", got)
	}
}

func TestEmptyTranscriptSkipsInjection(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.pipeline.result = transcription.Result{}
	})

	h.press()
	h.statuses.wait(t, status.StatusRecording)
	h.release()
	h.statuses.wait(t, status.StatusTranscribing)
	h.statuses.wait(t, status.StatusIdle)

	if got := h.injector.injected(); len(got) != 0 {
		t.Fatalf("empty transcript must not be injected, got %v", got)
	}
	if len(h.history.stored()) != 0 {
		t.Error("empty sessions should not be recorded")
	}
	if !ringContains(h.ring, "empty transcription") {
		t.Error("expected empty transcription entry in the log ring")
	}
}

func TestInjectionFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.injector.err = errors.New("clipboard unavailable")
	})

	h.press()
	h.statuses.wait(t, status.StatusRecording)
	h.release()
	h.statuses.wait(t, status.StatusTranscribing)
	h.statuses.wait(t, status.StatusIdle)

	records := h.history.stored()
	if len(records) != 1 {
		t.Fatalf("expected one history record, got %d", len(records))
	}
	if records[0].Injected {
		t.Error("record should be marked not injected")
	}
	if !ringContains(h.ring, "failed to insert text") {
		t.Error("expected insertion failure entry in the log ring")
	}

	// The engine is usable again.
	h.press()
	h.statuses.wait(t, status.StatusRecording)
}
