package transcription

import (
	"context"
	"strings"

	"github.com/piotrostr/ezwhisper/internal/audio"
	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/internal/logbuf"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

// Transcriber converts WAV audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, wavData []byte, apiKey, language string) (string, error)
}

// TextRefiner post-processes raw transcripts
type TextRefiner interface {
	Cleanup(ctx context.Context, rawText string) (string, error)
	Translate(ctx context.Context, rawText, targetLanguage string) (string, error)
}

// Result is the outcome of a pipeline run. Both fields are empty when
// the recording produced no speech.
type Result struct {
	RawText   string
	FinalText string
}

// Pipeline runs a captured recording through transcription and
// optional post-processing. Post-processing failures are not fatal;
// the raw transcript is used instead.
type Pipeline struct {
	stt     Transcriber
	refiner TextRefiner
	logger  *logger.Logger
	ring    *logbuf.Ring
}

// NewPipeline creates a new transcription pipeline. refiner may be nil
// when no chat provider is configured.
func NewPipeline(stt Transcriber, refiner TextRefiner, log *logger.Logger, ring *logbuf.Ring) *Pipeline {
	return &Pipeline{
		stt:     stt,
		refiner: refiner,
		logger:  log.Named("pipeline"),
		ring:    ring,
	}
}

// Run transcribes buf and applies the post-processing selected in snap.
// It returns the raw transcript and the final text ready for
// insertion, both empty when the recording produced no speech. The
// transcription request is made exactly once; upstream failures
// surface as *UpstreamError.
func (p *Pipeline) Run(ctx context.Context, buf audio.Buffer, snap config.Snapshot) (Result, error) {
	if buf.Empty() {
		return Result{}, nil
	}

	wavData, err := buf.WAV()
	if err != nil {
		return Result{}, err
	}

	rawText, err := p.stt.Transcribe(ctx, wavData, snap.ElevenLabsAPIKey, snap.Language)
	if err != nil {
		return Result{}, err
	}

	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return Result{}, nil
	}

	switch {
	case snap.Translate && p.refiner != nil:
		translated, err := p.refiner.Translate(ctx, rawText, snap.TargetLanguage)
		if err != nil {
			p.logger.Warn("Translate failed, using raw text", logger.Error(err))
			p.ring.Warnf("translate failed: %v, using raw", err)
			return Result{RawText: rawText, FinalText: rawText}, nil
		}
		return Result{RawText: rawText, FinalText: strings.TrimSpace(translated)}, nil
	case snap.Cleanup && p.refiner != nil:
		cleaned, err := p.refiner.Cleanup(ctx, rawText)
		if err != nil {
			p.logger.Warn("Cleanup failed, using raw text", logger.Error(err))
			p.ring.Warnf("cleanup failed: %v, using raw", err)
			return Result{RawText: rawText, FinalText: rawText}, nil
		}
		return Result{RawText: rawText, FinalText: strings.TrimSpace(cleaned)}, nil
	}

	return Result{RawText: rawText, FinalText: rawText}, nil
}
