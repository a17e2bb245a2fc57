package ai

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseScoringResponse(t *testing.T) {
	content := `{"accuracy":0.9,"structure":0.8,"terminology":0.85,"logic":0.9,"alignment":1,` +
		`"per_question_score_0_100":88,"verdict":"correct","short_explanation_he":"תשובה מצוינת"}`

	result, err := parseScoringResponse(content)
	require.NoError(t, err)
	require.Equal(t, 88, result.Score)
	require.Equal(t, "correct", result.Verdict)
	require.Equal(t, 0.9, result.Accuracy)
	require.Equal(t, "תשובה מצוינת", result.Explanation)
}

func TestParseScoringResponseWrappedInProse(t *testing.T) {
	content := "Here is the grading:\n{\"accuracy\":0.2,\"structure\":0.3,\"terminology\":0.1,\"logic\":0.2," +
		"\"alignment\":0.4,\"per_question_score_0_100\":24,\"verdict\":\"wrong\",\"short_explanation_he\":\"חסר\"}\nDone."

	result, err := parseScoringResponse(content)
	require.NoError(t, err)
	require.Equal(t, 24, result.Score)
	require.Equal(t, "wrong", result.Verdict)
}

func TestParseScoringResponseRejectsBadPayloads(t *testing.T) {
	_, err := parseScoringResponse("not json at all")
	require.Error(t, err)

	_, err = parseScoringResponse(`{"per_question_score_0_100":70,"verdict":"maybe"}`)
	require.Error(t, err, "unknown verdict must be rejected")
}

func TestNewOpenAIScorerRequiresKey(t *testing.T) {
	_, err := NewOpenAIScorer(OpenAIConfig{})
	require.Error(t, err)

	scorer, err := NewOpenAIScorer(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", scorer.cfg.Model)
	require.Equal(t, 1024, scorer.cfg.MaxTokens)
}
