package quiz

import (
	"math"
	"strings"

	"github.com/pavelanni/coursegen/internal/model"
)

// Score grades answers against the quiz by trimmed exact comparison. answers[i]
// is the answer to question i+1; missing entries count as unanswered.
func Score(q *model.QuizContent, answers []string) model.ScoreResult {
	res := model.ScoreResult{
		Total:   len(q.Questions),
		Answers: make([]model.AnswerResult, 0, len(q.Questions)),
	}
	for i, question := range q.Questions {
		var given string
		if i < len(answers) {
			given = answers[i]
		}
		correct := given != "" && strings.TrimSpace(given) == strings.TrimSpace(question.Answer)
		if correct {
			res.Correct++
		}
		res.Answers = append(res.Answers, model.AnswerResult{
			Number:      i + 1,
			Given:       given,
			Expected:    question.Answer,
			Correct:     correct,
			Explanation: question.Explanation,
		})
	}
	if res.Total > 0 {
		res.Percent = math.Round(float64(res.Correct)*10000/float64(res.Total)) / 100
	}
	return res
}
