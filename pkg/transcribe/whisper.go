// Package transcribe converts recorded exam answers to text using the
// OpenAI Whisper API.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	transcriptionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oralex",
		Subsystem: "transcription",
		Name:      "duration_seconds",
		Help:      "Duration of speech-to-text requests",
	}, []string{"model"})

	transcriptionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oralex",
		Subsystem: "transcription",
		Name:      "failures_total",
		Help:      "Number of speech-to-text failures",
	}, []string{"model"})
)

// Result carries the text for one recording plus what Whisper reports about
// it.
type Result struct {
	Text     string
	Language string
	Duration float64
}

// Transcriber converts a single media stream into text.
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, media io.Reader) (Result, error)
}

// WhisperConfig defines configuration options for the Whisper transcriber.
type WhisperConfig struct {
	APIKey   string
	Model    string
	Language string
	Logger   zerolog.Logger
}

// WhisperTranscriber implements Transcriber against the OpenAI audio API.
type WhisperTranscriber struct {
	client *openai.Client
	cfg    WhisperConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewWhisperTranscriber builds a transcriber. The language defaults to
// Hebrew, matching the exam.
func NewWhisperTranscriber(cfg WhisperConfig) (*WhisperTranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}

	if cfg.Language == "" {
		cfg.Language = "he"
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &WhisperTranscriber{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/oralex-api/pkg/transcribe"),
		logger: logger,
	}, nil
}

// Transcribe streams one recording to Whisper and returns its transcript.
func (w *WhisperTranscriber) Transcribe(parent context.Context, fileName string, media io.Reader) (Result, error) {
	ctx, span := w.tracer.Start(parent, "whisper.transcribe", trace.WithAttributes(
		attribute.String("model", w.cfg.Model),
		attribute.String("file", fileName),
	))
	defer span.End()

	start := time.Now()
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.cfg.Model,
		FilePath: fileName,
		Reader:   media,
		Language: w.cfg.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	transcriptionDuration.WithLabelValues(w.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		transcriptionFailures.WithLabelValues(w.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("whisper transcribe: %w", err)
	}

	language := resp.Language
	if language == "" {
		language = w.cfg.Language
	}

	return Result{
		Text:     resp.Text,
		Language: language,
		Duration: resp.Duration,
	}, nil
}
