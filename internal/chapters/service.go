package chapters

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
	"github.com/pavelanni/coursegen/internal/timecode"
	"github.com/pavelanni/coursegen/internal/transcript"
)

// Courses reads course inputs. Missing records are reported as (nil, nil) or empty values.
type Courses interface {
	GetCourse(id string) (*model.Course, error)
	GetDescription(id string) (string, error)
	GetTranscript(id string) ([]model.TranscriptItem, error)
}

// Artifacts persists chapter lists. PutChapters returns an error wrapping
// apperr.ErrConflict when chapters already exist for the course.
type Artifacts interface {
	GetChapters(courseID string) ([]model.Chapter, error)
	PutChapters(courseID string, chapters []model.Chapter) error
}

// Config tunes the generation path.
type Config struct {
	// ChunkChars is the transcript chunk size for section extraction.
	ChunkChars int
	// Cooldown is the pause between chunk requests.
	Cooldown time.Duration
	Policy   retry.Policy
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		ChunkChars: 5000,
		Cooldown:   4500 * time.Millisecond,
		Policy:     retry.DefaultPolicy(),
	}
}

// Result is the chapter list of a course and where it came from.
type Result struct {
	Source   model.ChapterSource `json:"source"`
	Chapters []model.Chapter     `json:"chapters"`
}

// Service returns the chapters of a course, producing and persisting them on first request.
type Service struct {
	courses   Courses
	artifacts Artifacts
	cfg       Config
	extractor *Extractor
	synth     *Synthesizer
	log       *slog.Logger
	group     singleflight.Group
}

// NewService creates a Service.
func NewService(courses Courses, artifacts Artifacts, gen Generator, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = transcript.DefaultMaxChars
	}
	if cfg.Policy.Logger == nil {
		cfg.Policy.Logger = logger
	}
	sectionPolicy, chapterPolicy := cfg.Policy, cfg.Policy
	sectionPolicy.Name, chapterPolicy.Name = "sections", "chapters"

	return &Service{
		courses:   courses,
		artifacts: artifacts,
		cfg:       cfg,
		extractor: NewExtractor(gen, sectionPolicy, cfg.Cooldown, logger),
		synth:     NewSynthesizer(gen, chapterPolicy, logger),
		log:       logger,
	}
}

// Chapters returns the stored chapters of a course, or creates them from the
// description timecodes, or generates them from the transcript. Concurrent calls
// for the same course share one run. The run is detached from ctx so that one
// caller giving up does not fail the others; that caller gets a cancellation
// error while the run continues to completion.
func (s *Service) Chapters(ctx context.Context, courseID string) (*Result, error) {
	if courseID == "" {
		return nil, apperr.Input("ErrCourseIDRequired", "course id is required")
	}

	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(courseID, func() (any, error) {
		return s.chapters(runCtx, courseID)
	})
	select {
	case <-ctx.Done():
		s.log.Debug("chapter request left running generation", "course_id", courseID)
		return nil, apperr.New(apperr.KindGeneration, "ErrChapterGeneration", "chapter request cancelled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.log.Debug("chapter request joined running generation", "course_id", courseID)
		}
		return res.Val.(*Result), nil
	}
}

func (s *Service) chapters(ctx context.Context, courseID string) (*Result, error) {
	course, err := s.courses.GetCourse(courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, apperr.NotFound("ErrCourseNotFound", "course not found")
	}

	stored, err := s.artifacts.GetChapters(courseID)
	if err != nil {
		return nil, fmt.Errorf("get chapters: %w", err)
	}
	if len(stored) > 0 {
		return &Result{Source: model.SourceDatabase, Chapters: stored}, nil
	}

	description, err := s.courses.GetDescription(courseID)
	if err != nil {
		return nil, fmt.Errorf("get description: %w", err)
	}
	if parsed := timecode.Parse(description); len(parsed) > 0 {
		s.log.Info("chapters parsed from description", "course_id", courseID, "chapters", len(parsed))
		return s.persist(courseID, model.SourceDescription, parsed)
	}

	items, err := s.courses.GetTranscript(courseID)
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	if len(items) == 0 {
		return nil, apperr.Input("ErrTranscriptNotFound", "no transcript available for this course")
	}

	start := time.Now()
	generated, err := s.Generate(ctx, items)
	if err != nil {
		return nil, err
	}
	s.log.Info("chapters generated",
		"course_id", courseID,
		"chapters", len(generated),
		"duration", time.Since(start).String(),
	)
	return s.persist(courseID, model.SourceGenerated, generated)
}

// Generate runs the transcript pipeline without touching storage: chunk, extract
// sections per chunk, synthesize and normalise chapters.
func (s *Service) Generate(ctx context.Context, items []model.TranscriptItem) ([]model.Chapter, error) {
	chunks := transcript.Chunk(items, s.cfg.ChunkChars)
	if len(chunks) == 0 {
		return nil, apperr.Input("ErrTranscriptNotFound", "no transcript available for this course")
	}
	s.log.Info("transcript chunked", "items", len(items), "chunks", len(chunks), "max_chars", s.cfg.ChunkChars)

	sections, err := s.extractor.ExtractAll(ctx, chunks)
	if err != nil {
		return nil, generationError(err)
	}

	spanStart, spanEnd := transcript.Span(items)
	chapters, err := s.synth.Synthesize(ctx, sections, spanStart, spanEnd)
	if err != nil {
		return nil, generationError(err)
	}
	return chapters, nil
}

func (s *Service) persist(courseID string, source model.ChapterSource, chapters []model.Chapter) (*Result, error) {
	err := s.artifacts.PutChapters(courseID, chapters)
	if errors.Is(err, apperr.ErrConflict) {
		s.log.Info("chapters stored concurrently, returning stored copy", "course_id", courseID)
		stored, err := s.artifacts.GetChapters(courseID)
		if err != nil {
			return nil, fmt.Errorf("get chapters after conflict: %w", err)
		}
		return &Result{Source: model.SourceDatabase, Chapters: stored}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("put chapters: %w", err)
	}
	return &Result{Source: source, Chapters: chapters}, nil
}

// generationError gives every failure of the generation path the chapter code.
func generationError(err error) error {
	switch kind := apperr.KindOf(err); {
	case kind == apperr.KindGeneration:
		return apperr.Recode(err, apperr.KindGeneration, "ErrChapterGeneration")
	case kind != apperr.KindInternal:
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.New(apperr.KindGeneration, "ErrChapterGeneration", "chapter generation cancelled", err)
	}
	return apperr.New(apperr.KindGeneration, "ErrChapterGeneration", "chapter generation failed", err)
}
