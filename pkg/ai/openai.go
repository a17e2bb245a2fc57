package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
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
	scoringDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oralex",
		Subsystem: "scoring",
		Name:      "duration_seconds",
		Help:      "Duration of rubric scoring requests",
	}, []string{"model"})

	scoringFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oralex",
		Subsystem: "scoring",
		Name:      "failures_total",
		Help:      "Number of rubric scoring failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI rubric scorer.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIScorer implements Scorer against the OpenAI chat completion API.
type OpenAIScorer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIScorer builds a new scorer using the provided configuration.
func NewOpenAIScorer(cfg OpenAIConfig) (*OpenAIScorer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	tracer := otel.Tracer("github.com/noah-isme/oralex-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAIScorer{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Score sends the grading request to OpenAI and parses the rubric JSON.
func (s *OpenAIScorer) Score(parent context.Context, input ScoreInput) (Result, error) {
	ctx, span := s.tracer.Start(parent, "openai.score", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: scoringSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildScoringPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := s.client.CreateChatCompletion(ctx, request)
	duration := time.Since(start)
	scoringDuration.WithLabelValues(s.cfg.Model).Observe(duration.Seconds())
	if err != nil {
		scoringFailures.WithLabelValues(s.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("openai score: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		scoringFailures.WithLabelValues(s.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := parseScoringResponse(content)
	if err != nil {
		scoringFailures.WithLabelValues(s.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	return result, nil
}

func scoringSystemPrompt() string {
	return "You are grading a Hebrew oral exam answer for an academic course on AI applications in business. " +
		"Grade the student's transcribed answer against the question and the reference answer on five dimensions, " +
		"each in [0,1]: accuracy (factually correct), structure (well organised), terminology (correct technical terms), " +
		"logic (sound reasoning), alignment (addresses the question directly). Derive an overall per_question_score_0_100 " +
		"and a verdict: 80-100 correct, 50-79 partial, 0-49 wrong. Write short_explanation_he as one or two Hebrew sentences. " +
		"Respond with only a JSON object with keys accuracy, structure, terminology, logic, alignment, " +
		"per_question_score_0_100, verdict, short_explanation_he."
}

func buildScoringPrompt(input ScoreInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Question\n")
	builder.WriteString(input.Question)
	builder.WriteString("\n\n## Expected Answer (for reference)\n")
	builder.WriteString(input.SampleAnswer)
	builder.WriteString("\n\n## Student's Answer (transcribed)\n")
	builder.WriteString(input.Transcript)
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseScoringResponse(content string) (Result, error) {
	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Some models wrap the object in prose; retry on the outermost braces.
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start < 0 || end <= start {
			return Result{}, fmt.Errorf("parse scoring json: %w", err)
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
			return Result{}, fmt.Errorf("parse scoring json: %w", err)
		}
	}

	switch result.Verdict {
	case "correct", "partial", "wrong":
	default:
		return Result{}, fmt.Errorf("invalid verdict %q in scoring response", result.Verdict)
	}

	return result, nil
}
