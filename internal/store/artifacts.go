package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/coursegen/internal/model"
)

// Artifacts is the chapter and quiz persistence used by the pipelines. Reads
// return empty values when nothing is stored; writes are first-write-wins and
// report a lost race with an error wrapping ErrConflict.
type Artifacts interface {
	GetChapters(courseID string) ([]model.Chapter, error)
	PutChapters(courseID string, chapters []model.Chapter) error
	GetChapterTitles(courseID string) ([]string, error)
	GetQuiz(courseID string) (*model.QuizContent, error)
	PutQuiz(courseID string, q *model.QuizContent) error
}

// GetChapters returns the chapters of a course ordered by index.
func (s *Store) GetChapters(courseID string) ([]model.Chapter, error) {
	rows, err := s.db.Query(
		`SELECT idx, title, start_sec, end_sec, keywords FROM chapters WHERE course_id = ? ORDER BY idx`, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chapters []model.Chapter
	for rows.Next() {
		var ch model.Chapter
		var keywords string
		if err := rows.Scan(&ch.Index, &ch.Title, &ch.Start, &ch.End, &keywords); err != nil {
			return nil, err
		}
		if keywords != "" {
			ch.Keywords = strings.Split(keywords, "\n")
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

// PutChapters stores the full chapter list of a course in one transaction.
func (s *Store) PutChapters(courseID string, chapters []model.Chapter) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, ch := range chapters {
		_, err := tx.Exec(
			`INSERT INTO chapters (course_id, idx, title, start_sec, end_sec, keywords) VALUES (?, ?, ?, ?, ?, ?)`,
			courseID, i, ch.Title, ch.Start, ch.End, strings.Join(ch.Keywords, "\n"),
		)
		if err != nil {
			return fmt.Errorf("insert chapter %d: %w", i, mapConstraint(err))
		}
	}
	return tx.Commit()
}

// GetChapterTitles returns chapter titles ordered by index.
func (s *Store) GetChapterTitles(courseID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT title FROM chapters WHERE course_id = ? ORDER BY idx`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// GetQuiz returns the stored quiz of a course, or nil if none.
func (s *Store) GetQuiz(courseID string) (*model.QuizContent, error) {
	var content string
	err := s.db.QueryRow(`SELECT content FROM quizzes WHERE course_id = ?`, courseID).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var q model.QuizContent
	if err := json.Unmarshal([]byte(content), &q); err != nil {
		return nil, fmt.Errorf("decode quiz for %s: %w", courseID, err)
	}
	return &q, nil
}

// PutQuiz stores the quiz of a course. A second quiz for the same course is a conflict.
func (s *Store) PutQuiz(courseID string, q *model.QuizContent) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO quizzes (course_id, content, created_at) VALUES (?, ?, ?)`,
		courseID, string(data), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", mapConstraint(err))
	}
	return nil
}

// Catalog reads courses from the database and artifacts from a separate backend.
type Catalog struct {
	*Store
	Artifacts Artifacts
}

// NewCatalog pairs a Store with an artifact backend. A nil backend uses the Store itself.
func NewCatalog(s *Store, a Artifacts) *Catalog {
	if a == nil {
		a = s
	}
	return &Catalog{Store: s, Artifacts: a}
}

// GetChapters reads from the artifact backend.
func (c *Catalog) GetChapters(courseID string) ([]model.Chapter, error) {
	return c.Artifacts.GetChapters(courseID)
}

// PutChapters writes to the artifact backend.
func (c *Catalog) PutChapters(courseID string, chapters []model.Chapter) error {
	return c.Artifacts.PutChapters(courseID, chapters)
}

// GetChapterTitles reads from the artifact backend.
func (c *Catalog) GetChapterTitles(courseID string) ([]string, error) {
	return c.Artifacts.GetChapterTitles(courseID)
}

// GetQuiz reads from the artifact backend.
func (c *Catalog) GetQuiz(courseID string) (*model.QuizContent, error) {
	return c.Artifacts.GetQuiz(courseID)
}

// PutQuiz writes to the artifact backend.
func (c *Catalog) PutQuiz(courseID string, q *model.QuizContent) error {
	return c.Artifacts.PutQuiz(courseID, q)
}
