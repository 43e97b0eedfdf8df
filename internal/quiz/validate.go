// Package quiz generates, validates, caches and scores the multiple-choice quiz of a course.
package quiz

import (
	"log/slog"
	"strings"

	"github.com/pavelanni/coursegen/internal/apperr"
	"github.com/pavelanni/coursegen/internal/model"
)

// Question count bounds accepted by Validate.
const (
	MinQuestions = 1
	MaxQuestions = 20
	OptionCount  = 4
)

// Validate checks a quiz document against the quiz contract and returns an
// apperr validation error naming the first violation. Question positions are 1-based.
// An answer that matches none of the options is logged and accepted.
func Validate(q *model.QuizContent, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if q == nil || strings.TrimSpace(q.Title) == "" {
		return apperr.Validation("Quiz must have a valid title")
	}
	if len(q.Questions) < MinQuestions {
		return apperr.Validation("Quiz must contain at least one question")
	}
	if len(q.Questions) > MaxQuestions {
		return apperr.Validationf("Quiz cannot contain more than %d questions", MaxQuestions)
	}

	for i, question := range q.Questions {
		n := i + 1
		if question.Type != model.QuestionTypeMCQ {
			return apperr.Validationf("Question %d: Only MCQ questions are allowed", n)
		}
		if strings.TrimSpace(question.Question) == "" {
			return apperr.Validationf("Question %d: Question text is required", n)
		}
		if len(question.Options) != OptionCount {
			return apperr.Validationf("Question %d: MCQ must have exactly %d options", n, OptionCount)
		}
		for _, opt := range question.Options {
			if strings.TrimSpace(opt) == "" {
				return apperr.Validationf("Question %d: All options must be non-empty strings", n)
			}
		}
		if strings.TrimSpace(question.Answer) == "" {
			return apperr.Validationf("Question %d: Answer is required", n)
		}
		if strings.TrimSpace(question.Explanation) == "" {
			return apperr.Validationf("Question %d: Explanation is required", n)
		}
		if !answerInOptions(question) {
			logger.Warn("quiz answer does not match any option", "question", n, "answer", question.Answer)
		}
	}
	return nil
}

func answerInOptions(q model.Question) bool {
	answer := strings.TrimSpace(q.Answer)
	for _, opt := range q.Options {
		if strings.TrimSpace(opt) == answer {
			return true
		}
	}
	return false
}
