package store

import (
	"database/sql"
	"time"
)

const metaDescription = "description"

// SetMetadata upserts a key-value pair for a course.
func (s *Store) SetMetadata(courseID, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO course_metadata (course_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(course_id, key) DO UPDATE SET value = ?`,
		courseID, key, value, value,
	)
	return err
}

// GetMetadata returns the value for a course metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(courseID, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM course_metadata WHERE course_id = ? AND key = ?`, courseID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetDescription returns the author-supplied video description of a course.
func (s *Store) GetDescription(courseID string) (string, error) {
	return s.GetMetadata(courseID, metaDescription)
}

// GetImportedFileHash returns the SHA-256 recorded for an imported file, or "" if never imported.
func (s *Store) GetImportedFileHash(filename string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT sha256 FROM imported_files WHERE filename = ?`, filename).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the SHA-256 of an imported file.
func (s *Store) SetImportedFileHash(filename, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (filename, sha256, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(filename) DO UPDATE SET sha256 = ?, imported_at = ?`,
		filename, hash, time.Now(), hash, time.Now(),
	)
	return err
}
