package ai

import "context"

// ScoreInput contains the artefacts needed to grade one oral answer.
type ScoreInput struct {
	Question     string
	SampleAnswer string
	Transcript   string
}

// Result is the structured rubric returned by the grader: five dimension
// scores in [0,1], the overall 0-100 score, a three-way verdict and a short
// Hebrew explanation for the instructor report.
type Result struct {
	Accuracy    float64 `json:"accuracy"`
	Structure   float64 `json:"structure"`
	Terminology float64 `json:"terminology"`
	Logic       float64 `json:"logic"`
	Alignment   float64 `json:"alignment"`
	Score       int     `json:"per_question_score_0_100"`
	Verdict     string  `json:"verdict"`
	Explanation string  `json:"short_explanation_he"`
}

// Scorer describes an AI model capable of grading a transcribed answer
// against the question and its reference answer.
type Scorer interface {
	Score(ctx context.Context, input ScoreInput) (Result, error)
}
