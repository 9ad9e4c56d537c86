package transcription

import (
	"context"
	"errors"
	"testing"

	"github.com/piotrostr/ezwhisper/internal/audio"
	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/internal/logbuf"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, wavData []byte, apiKey, language string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeRefiner struct {
	cleaned       string
	translated    string
	cleanupErr    error
	translateErr  error
	cleanupCalls  int
	translateCall int
}

func (f *fakeRefiner) Cleanup(ctx context.Context, rawText string) (string, error) {
	f.cleanupCalls++
	return f.cleaned, f.cleanupErr
}

func (f *fakeRefiner) Translate(ctx context.Context, rawText, targetLanguage string) (string, error) {
	f.translateCall++
	return f.translated, f.translateErr
}

func newPipeline(stt Transcriber, refiner TextRefiner) *Pipeline {
	return NewPipeline(stt, refiner, logger.NewNop(), logbuf.NewRing(logbuf.DefaultCapacity))
}

func testBuffer() audio.Buffer {
	return audio.Buffer{Samples: make([]int16, 1600), SampleRate: 16000, Channels: 1}
}

func TestPipelineEmptyBufferIsNoOp(t *testing.T) {
	t.Parallel()
	stt := &fakeTranscriber{text: "should not be called"}
	p := newPipeline(stt, nil)

	res, err := p.Run(context.Background(), audio.Buffer{SampleRate: 16000, Channels: 1}, config.Snapshot{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalText != "" {
		t.Errorf("expected empty result, got %q", res.FinalText)
	}
	if stt.calls != 0 {
		t.Error("transcriber should not be called for an empty buffer")
	}
}

func TestPipelineRawTextWhenNoProcessingEnabled(t *testing.T) {
	t.Parallel()
	stt := &fakeTranscriber{text: "  hello there  "}
	refiner := &fakeRefiner{cleaned: "Hello there."}
	p := newPipeline(stt, refiner)

	res, err := p.Run(context.Background(), testBuffer(), config.Snapshot{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalText != "hello there" {
		t.Errorf("expected trimmed raw text, got %q", res.FinalText)
	}
	if refiner.cleanupCalls != 0 || refiner.translateCall != 0 {
		t.Error("refiner should not be called when processing is disabled")
	}
}

func TestPipelineCleanup(t *testing.T) {
	t.Parallel()
	stt := &fakeTranscriber{text: "hello there"}
	refiner := &fakeRefiner{cleaned: "Hello there."}
	p := newPipeline(stt, refiner)

	res, err := p.Run(context.Background(), testBuffer(), config.Snapshot{Cleanup: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalText != "Hello there." {
		t.Errorf("expected cleaned text, got %q", res.FinalText)
	}
	if res.RawText != "hello there" {
		t.Errorf("expected raw text preserved, got %q", res.RawText)
	}
}

func TestPipelineTranslateTakesPrecedenceOverCleanup(t *testing.T) {
	t.Parallel()
	stt := &fakeTranscriber{text: "hola"}
	refiner := &fakeRefiner{cleaned: "Hola.", translated: "Hello."}
	p := newPipeline(stt, refiner)

	res, err := p.Run(context.Background(), testBuffer(), config.Snapshot{
		Cleanup:        true,
		Translate:      true,
		TargetLanguage: "English",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalText != "Hello." {
		t.Errorf("expected translated text, got %q", res.FinalText)
	}
	if refiner.cleanupCalls != 0 {
		t.Error("cleanup should be skipped when translate is enabled")
	}
	if refiner.translateCall != 1 {
		t.Errorf("expected one translate call, got %d", refiner.translateCall)
	}
}

func TestPipelineCleanupFailureFallsBackToRaw(t *testing.T) {
	t.Parallel()
	stt := &fakeTranscriber{text: "hello there"}
	refiner := &fakeRefiner{cleanupErr: errors.New("provider timeout")}
	p := newPipeline(stt, refiner)

	res, err := p.Run(context.Background(), testBuffer(), config.Snapshot{Cleanup: true})
	if err != nil {
		t.Fatalf("cleanup failure must not fail the pipeline: %v", err)
	}
	if res.FinalText != "hello there" {
		t.Errorf("expected raw text fallback, got %q", res.FinalText)
	}
}

func TestPipelineTranslateFailureFallsBackToRaw(t *testing.T) {
	t.Parallel()
	stt := &fakeTranscriber{text: "hola"}
	refiner := &fakeRefiner{translateErr: errors.New("provider timeout")}
	p := newPipeline(stt, refiner)

	res, err := p.Run(context.Background(), testBuffer(), config.Snapshot{Translate: true})
	if err != nil {
		t.Fatalf("translate failure must not fail the pipeline: %v", err)
	}
	if res.FinalText != "hola" {
		t.Errorf("expected raw text fallback, got %q", res.FinalText)
	}
}

func TestPipelineUpstreamErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	stt := &fakeTranscriber{err: &UpstreamError{Status: 503, Body: "overloaded"}}
	p := newPipeline(stt, nil)

	_, err := p.Run(context.Background(), testBuffer(), config.Snapshot{})
	if err == nil {
		t.Fatal("expected upstream error")
	}
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected *UpstreamError, got %T", err)
	}
	if stt.calls != 1 {
		t.Errorf("expected exactly one transcription attempt, got %d", stt.calls)
	}
}

func TestPipelineWhitespaceTranscriptIsNoOp(t *testing.T) {
	t.Parallel()
	stt := &fakeTranscriber{text: "   \n  "}
	refiner := &fakeRefiner{cleaned: "ghost"}
	p := newPipeline(stt, refiner)

	res, err := p.Run(context.Background(), testBuffer(), config.Snapshot{Cleanup: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalText != "" {
		t.Errorf("expected empty result for whitespace transcript, got %q", res.FinalText)
	}
	if refiner.cleanupCalls != 0 {
		t.Error("refiner should not run on an empty transcript")
	}
}
