package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/coursegen/internal/apperr"
	"github.com/pavelanni/coursegen/internal/llm"
	"github.com/pavelanni/coursegen/internal/llm/prompts"
	"github.com/pavelanni/coursegen/internal/model"
	"github.com/pavelanni/coursegen/internal/retry"
)

// Generator is the structured-generation capability used for quizzes.
type Generator interface {
	GenerateStructured(ctx context.Context, req llm.Request) (string, error)
}

const (
	quizTemperature = 0.7
	quizMaxTokens   = 4000
)

// Generate requests a quiz for the course and validates it. The whole request is
// retried on rate limiting and on responses that do not parse; a parsed quiz that
// fails validation is returned at once.
func Generate(ctx context.Context, gen Generator, policy retry.Policy, courseTitle string, chapterTitles []string, logger *slog.Logger) (*model.QuizContent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	prompt, err := prompts.BuildQuizPrompt(courseTitle, chapterTitles)
	if err != nil {
		return nil, err
	}
	if policy.Name == "" {
		policy.Name = "quiz"
	}

	return retry.Do(ctx, policy, func(ctx context.Context) (*model.QuizContent, error) {
		raw, err := gen.GenerateStructured(ctx, llm.Request{
			System:      prompts.QuizSystemPrompt(),
			Prompt:      prompt,
			Temperature: quizTemperature,
			Format:      llm.FormatJSON,
			MaxTokens:   quizMaxTokens,
		})
		if err != nil {
			return nil, err
		}

		var content model.QuizContent
		if err := llm.DecodeJSON(raw, &content); err != nil {
			return nil, fmt.Errorf("quiz response: %w", err)
		}
		if strings.TrimSpace(content.Title) == "" || content.Questions == nil {
			return nil, apperr.Validation("Invalid quiz format: missing title or questions")
		}
		if err := Validate(&content, logger); err != nil {
			return nil, err
		}
		return &content, nil
	})
}
