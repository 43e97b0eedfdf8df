package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pavelanni/coursegen/internal/apperr"
	"github.com/pavelanni/coursegen/internal/model"
	"github.com/pavelanni/coursegen/internal/retry"
)

// Message ids returned with a quiz.
const (
	MsgQuizFetched   = "MsgQuizFetched"
	MsgQuizGenerated = "MsgQuizGenerated"
)

// Courses reads what quiz generation needs. Missing records are (nil, nil) or empty.
type Courses interface {
	GetCourse(id string) (*model.Course, error)
	GetChapterTitles(courseID string) ([]string, error)
}

// Artifacts persists quizzes. GetQuiz returns (nil, nil) when no quiz exists.
// PutQuiz returns an error wrapping apperr.ErrConflict when one already does.
type Artifacts interface {
	GetQuiz(courseID string) (*model.QuizContent, error)
	PutQuiz(courseID string, q *model.QuizContent) error
}

// Result is the quiz response.
type Result struct {
	Quiz    *model.QuizContent `json:"quiz"`
	Message string             `json:"message"`
	Cached  bool               `json:"cached"`
	// MessageID is the translation id of Message.
	MessageID string `json:"-"`
}

// Service returns the quiz of a course, generating and persisting it on first request.
type Service struct {
	courses   Courses
	artifacts Artifacts
	gen       Generator
	policy    retry.Policy
	log       *slog.Logger
	group     singleflight.Group
}

// NewService creates a Service. A zero policy gets the quiz defaults:
// three attempts with a 50 second rate-limit wait.
func NewService(courses Courses, artifacts Artifacts, gen Generator, policy retry.Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.RateLimitWait == 0 {
		policy.RateLimitWait = 50 * time.Second
	}
	if policy.Logger == nil {
		policy.Logger = logger
	}
	policy.Name = "quiz"
	return &Service{courses: courses, artifacts: artifacts, gen: gen, policy: policy, log: logger}
}

// Quiz returns the stored quiz, or generates, validates and stores a new one.
// Concurrent calls for the same course share one generation, which keeps
// running when the caller that started it goes away.
func (s *Service) Quiz(ctx context.Context, courseID string) (*Result, error) {
	if courseID == "" {
		return nil, apperr.Input("ErrCourseIDRequired", "course id is required")
	}
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(courseID, func() (any, error) {
		return s.quiz(runCtx, courseID)
	})
	select {
	case <-ctx.Done():
		return nil, apperr.New(apperr.KindGeneration, "ErrQuizGeneration", "quiz request cancelled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

func (s *Service) quiz(ctx context.Context, courseID string) (*Result, error) {
	stored, err := s.artifacts.GetQuiz(courseID)
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if stored != nil {
		return cached(stored), nil
	}

	course, err := s.courses.GetCourse(courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, apperr.NotFound("ErrCourseNotFound", "course not found")
	}

	titles, err := s.courses.GetChapterTitles(courseID)
	if err != nil {
		return nil, fmt.Errorf("get chapter titles: %w", err)
	}
	if len(titles) == 0 {
		return nil, apperr.Input("ErrNoChapters", "no chapters found for this course, generate chapters first")
	}

	s.log.Info("generating quiz", "course_id", courseID, "chapters", len(titles))
	start := time.Now()
	content, err := Generate(ctx, s.gen, s.policy, course.Title, titles, s.log)
	if err != nil {
		return nil, generationError(err)
	}
	s.log.Info("quiz generated",
		"course_id", courseID,
		"questions", len(content.Questions),
		"duration", time.Since(start).String(),
	)

	err = s.artifacts.PutQuiz(courseID, content)
	if errors.Is(err, apperr.ErrConflict) {
		s.log.Info("quiz stored concurrently, returning stored copy", "course_id", courseID)
		stored, err := s.artifacts.GetQuiz(courseID)
		if err != nil {
			return nil, fmt.Errorf("get quiz after conflict: %w", err)
		}
		if stored == nil {
			return nil, apperr.New(apperr.KindConflict, "ErrQuizExists", "quiz already exists", nil)
		}
		return cached(stored), nil
	}
	if err != nil {
		return nil, fmt.Errorf("put quiz: %w", err)
	}
	return &Result{
		Quiz:      content,
		Message:   "Quiz generated successfully",
		MessageID: MsgQuizGenerated,
	}, nil
}

// Score grades answers against the stored quiz of the course.
func (s *Service) Score(_ context.Context, courseID string, answers []string) (*model.ScoreResult, error) {
	if courseID == "" {
		return nil, apperr.Input("ErrCourseIDRequired", "course id is required")
	}
	stored, err := s.artifacts.GetQuiz(courseID)
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	if stored == nil {
		return nil, apperr.NotFound("ErrQuizNotFound", "quiz not found")
	}
	res := Score(stored, answers)
	return &res, nil
}

func cached(q *model.QuizContent) *Result {
	return &Result{Quiz: q, Message: "Quiz fetched successfully", Cached: true, MessageID: MsgQuizFetched}
}

func generationError(err error) error {
	switch kind := apperr.KindOf(err); {
	case kind == apperr.KindGeneration:
		return apperr.Recode(err, apperr.KindGeneration, "ErrQuizGeneration")
	case kind != apperr.KindInternal:
		return err
	}
	return apperr.New(apperr.KindGeneration, "ErrQuizGeneration", "quiz generation failed", err)
}
