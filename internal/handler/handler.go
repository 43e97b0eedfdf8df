package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/coursegen/internal/apperr"
	"github.com/pavelanni/coursegen/internal/chapters"
	"github.com/pavelanni/coursegen/internal/i18n"
	"github.com/pavelanni/coursegen/internal/model"
	"github.com/pavelanni/coursegen/internal/quiz"
)

// CourseStore reads courses and their stored chapters.
type CourseStore interface {
	ListCourses() ([]model.Course, error)
	GetCourse(id string) (*model.Course, error)
	GetChapters(courseID string) ([]model.Chapter, error)
}

// CourseImporter creates courses from import documents.
type CourseImporter interface {
	Import(imp model.CourseImport) (*model.Course, int, error)
}

// ChapterService is the chapter pipeline.
type ChapterService interface {
	Chapters(ctx context.Context, courseID string) (*chapters.Result, error)
}

// QuizService is the quiz pipeline.
type QuizService interface {
	Quiz(ctx context.Context, courseID string) (*quiz.Result, error)
	Score(ctx context.Context, courseID string, answers []string) (*model.ScoreResult, error)
}

// Config holds handler settings.
type Config struct {
	// TokenHash is the bcrypt hash of the API bearer token. Empty disables auth.
	TokenHash string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	courses  CourseStore
	importer CourseImporter
	chapters ChapterService
	quiz     QuizService
	config   Config
}

// New creates a new Handler.
func New(courses CourseStore, importer CourseImporter, ch ChapterService, qz QuizService, cfg Config) *Handler {
	return &Handler{courses: courses, importer: importer, chapters: ch, quiz: qz, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireToken)

		r.Get("/courses", h.handleListCourses)
		r.Post("/courses", h.handleCreateCourse)
		r.Get("/courses/{courseID}", h.handleGetCourse)
		r.Get("/courses/{courseID}/chapters", h.handleChapters)
		r.Get("/courses/{courseID}/quiz", h.handleQuiz)
		r.Post("/courses/{courseID}/quiz", h.handleQuiz)
		r.Post("/courses/{courseID}/quiz/score", h.handleScoreQuiz)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.ListCourses()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if courses == nil {
		courses = []model.Course{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

func (h *Handler) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var imp model.CourseImport
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 32<<20))
	if err := dec.Decode(&imp); err != nil {
		writeError(w, r, apperr.Input("ErrInvalidBody", err.Error()))
		return
	}

	course, segments, err := h.importer.Import(imp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"course":  course,
		"message": i18n.Tp(r.Context(), "MsgCourseCreated", segments),
	})
}

func (h *Handler) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "courseID")
	course, err := h.courses.GetCourse(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if course == nil {
		writeError(w, r, apperr.NotFound("ErrCourseNotFound", "course not found"))
		return
	}
	stored, err := h.courses.GetChapters(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if stored == nil {
		stored = []model.Chapter{}
	}
	writeJSON(w, http.StatusOK, model.CourseDetail{Course: *course, Chapters: stored})
}

func (h *Handler) handleChapters(w http.ResponseWriter, r *http.Request) {
	res, err := h.chapters.Chapters(r.Context(), chi.URLParam(r, "courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleQuiz(w http.ResponseWriter, r *http.Request) {
	res, err := h.quiz.Quiz(r.Context(), chi.URLParam(r, "courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := *res
	if out.MessageID != "" {
		out.Message = i18n.T(r.Context(), out.MessageID)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleScoreQuiz(w http.ResponseWriter, r *http.Request) {
	var req model.ScoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, apperr.Input("ErrInvalidBody", err.Error()))
		return
	}
	res, err := h.quiz.Score(r.Context(), chi.URLParam(r, "courseID"), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("quiz scored", "course_id", chi.URLParam(r, "courseID"), "correct", res.Correct, "total", res.Total)
	writeJSON(w, http.StatusOK, res)
}
