package models

import "math"

// Verdict values for a scored answer.
const (
	VerdictCorrect = "correct"
	VerdictPartial = "partial"
	VerdictWrong   = "wrong"
)

// ManualReviewExplanation is stored when automated scoring of one answer
// fails and a grader has to look at it by hand.
const ManualReviewExplanation = "שגיאה בניקוד אוטומטי - נדרשת סקירה ידנית"

// TranscriptErrorSentinel is written in place of a transcript when one
// question's transcription fails. Scoring treats it as a legitimate, if
// poor, answer; the grader sees the flag in the report.
const TranscriptErrorSentinel = "[שגיאה בתמלול - נדרשת סקירה ידנית]"

// RubricResult is the structured output of grading a single answer: five
// dimension scores in [0,1], the overall 0-100 score, the derived verdict
// and a short Hebrew explanation.
type RubricResult struct {
	Accuracy    float64 `json:"accuracy"`
	Structure   float64 `json:"structure"`
	Terminology float64 `json:"terminology"`
	Logic       float64 `json:"logic"`
	Alignment   float64 `json:"alignment"`
	Score       int     `json:"per_question_score_0_100"`
	Verdict     string  `json:"verdict"`
	Explanation string  `json:"short_explanation_he"`
}

// VerdictForScore derives the three-way verdict from a 0-100 score. This is
// the single authority for the mapping; a verdict stored next to a score must
// always agree with it.
func VerdictForScore(score int) string {
	switch {
	case score >= 80:
		return VerdictCorrect
	case score >= 50:
		return VerdictPartial
	default:
		return VerdictWrong
	}
}

// Normalize clamps the dimensions into [0,1], the score into [0,100] and
// forces the verdict to agree with the score.
func (r RubricResult) Normalize() RubricResult {
	r.Accuracy = clamp01(r.Accuracy)
	r.Structure = clamp01(r.Structure)
	r.Terminology = clamp01(r.Terminology)
	r.Logic = clamp01(r.Logic)
	r.Alignment = clamp01(r.Alignment)

	if r.Score < 0 {
		r.Score = 0
	}
	if r.Score > 100 {
		r.Score = 100
	}

	r.Verdict = VerdictForScore(r.Score)

	return r
}

// ZeroRubricResult is the substitute stored when grading one answer fails:
// every dimension at zero, verdict wrong, flagged for manual review.
func ZeroRubricResult() RubricResult {
	return RubricResult{
		Verdict:     VerdictWrong,
		Explanation: ManualReviewExplanation,
	}
}

// MeanScore returns the arithmetic mean of the given per-question scores
// rounded to the nearest integer. An empty input yields zero.
func MeanScore(scores []int) int {
	if len(scores) == 0 {
		return 0
	}

	sum := 0
	for _, s := range scores {
		sum += s
	}

	return int(math.Round(float64(sum) / float64(len(scores))))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
