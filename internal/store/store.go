package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pavelanni/coursegen/internal/apperr"
	"github.com/pavelanni/coursegen/internal/model"
)

// ErrConflict is returned, wrapped, when a write loses a uniqueness race.
var ErrConflict = apperr.ErrConflict

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		youtube_url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'processing',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS course_metadata (
		course_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (course_id, key),
		FOREIGN KEY (course_id) REFERENCES courses(id)
	);

	CREATE TABLE IF NOT EXISTS transcript_segments (
		course_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		start_sec REAL NOT NULL,
		end_sec REAL NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (course_id, idx),
		FOREIGN KEY (course_id) REFERENCES courses(id)
	);

	CREATE TABLE IF NOT EXISTS chapters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		title TEXT NOT NULL,
		start_sec INTEGER NOT NULL,
		end_sec INTEGER NOT NULL,
		keywords TEXT NOT NULL DEFAULT '',
		UNIQUE (course_id, idx),
		FOREIGN KEY (course_id) REFERENCES courses(id)
	);

	CREATE TABLE IF NOT EXISTS quizzes (
		course_id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (course_id) REFERENCES courses(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		filename TEXT PRIMARY KEY,
		sha256 TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateCourse stores a course with its description and transcript in one transaction.
// The course starts as processing and is completed once its transcript is stored.
func (s *Store) CreateCourse(c model.Course, description string, items []model.TranscriptItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err = tx.Exec(
		`INSERT INTO courses (id, title, youtube_url, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.YouTubeURL, model.CourseProcessing, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert course %s: %w", c.ID, mapConstraint(err))
	}
	if description != "" {
		if _, err := tx.Exec(
			`INSERT INTO course_metadata (course_id, key, value) VALUES (?, ?, ?)`,
			c.ID, metaDescription, description,
		); err != nil {
			return fmt.Errorf("insert description: %w", err)
		}
	}
	for i, it := range items {
		if _, err := tx.Exec(
			`INSERT INTO transcript_segments (course_id, idx, start_sec, end_sec, text) VALUES (?, ?, ?, ?, ?)`,
			c.ID, i, it.Start, it.End, it.Text,
		); err != nil {
			return fmt.Errorf("insert transcript segment %d: %w", i, err)
		}
	}
	if _, err := tx.Exec(`UPDATE courses SET status = ? WHERE id = ?`, model.CourseCompleted, c.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetCourse returns a course by id, or nil if not found.
func (s *Store) GetCourse(id string) (*model.Course, error) {
	var c model.Course
	err := s.db.QueryRow(
		`SELECT id, title, youtube_url, status, created_at FROM courses WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.YouTubeURL, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCourses returns all courses, newest first.
func (s *Store) ListCourses() ([]model.Course, error) {
	rows, err := s.db.Query(`SELECT id, title, youtube_url, status, created_at FROM courses ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var courses []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.Title, &c.YouTubeURL, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// GetTranscript returns the transcript of a course in order. Empty if none is stored.
func (s *Store) GetTranscript(courseID string) ([]model.TranscriptItem, error) {
	rows, err := s.db.Query(
		`SELECT start_sec, end_sec, text FROM transcript_segments WHERE course_id = ? ORDER BY idx`, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.TranscriptItem
	for rows.Next() {
		var it model.TranscriptItem
		if err := rows.Scan(&it.Start, &it.End, &it.Text); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// mapConstraint turns a SQLite uniqueness failure into ErrConflict.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
