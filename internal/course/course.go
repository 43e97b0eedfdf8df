// Package course creates courses from import documents.
package course

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/coursegen/internal/apperr"
	"github.com/pavelanni/coursegen/internal/model"
	"github.com/pavelanni/coursegen/internal/transcript"
)

// Creator persists a course with its description and transcript.
type Creator interface {
	CreateCourse(c model.Course, description string, items []model.TranscriptItem) error
}

// MergeMode selects how raw captions become transcript items.
type MergeMode string

const (
	MergeGap    MergeMode = "gap"
	MergeWindow MergeMode = "window"
)

// Importer turns import documents into stored courses.
type Importer struct {
	store Creator
	merge MergeMode
	now   func() time.Time
}

// NewImporter creates an Importer. An unknown merge mode falls back to gap merging.
func NewImporter(store Creator, merge MergeMode) *Importer {
	if merge != MergeWindow {
		merge = MergeGap
	}
	return &Importer{store: store, merge: merge, now: time.Now}
}

// Prepare validates an import document and returns the course and transcript to store.
// The id defaults to a new UUID. Captions are merged only when no transcript is given.
func (im *Importer) Prepare(imp model.CourseImport) (model.Course, []model.TranscriptItem, error) {
	title := strings.TrimSpace(imp.Title)
	if title == "" {
		return model.Course{}, nil, apperr.Input("ErrCourseTitleRequired", "course title is required")
	}
	id := strings.TrimSpace(imp.ID)
	if id == "" {
		id = uuid.NewString()
	}

	items := imp.Transcript
	if len(items) == 0 && len(imp.Captions) > 0 {
		if im.merge == MergeWindow {
			items = transcript.MergeByWindow(imp.Captions, transcript.DefaultWindow)
		} else {
			items = transcript.MergeByGap(imp.Captions, transcript.DefaultMaxGap)
		}
	}

	if err := checkTranscript(items); err != nil {
		return model.Course{}, nil, err
	}

	c := model.Course{
		ID:         id,
		Title:      title,
		YouTubeURL: strings.TrimSpace(imp.YouTubeURL),
		Status:     model.CourseCompleted,
		CreatedAt:  im.now(),
	}
	return c, items, nil
}

// checkTranscript rejects items that end before they start or break start order.
// Positions in the message are 1-based.
func checkTranscript(items []model.TranscriptItem) error {
	for i, it := range items {
		if it.End < it.Start {
			return apperr.Input("ErrTranscriptInvalid",
				fmt.Sprintf("transcript item %d ends before it starts", i+1))
		}
		if i > 0 && it.Start < items[i-1].Start {
			return apperr.Input("ErrTranscriptInvalid",
				fmt.Sprintf("transcript item %d starts before item %d", i+1, i))
		}
	}
	return nil
}

// Import stores the course described by imp and returns it with the number of
// transcript items stored.
func (im *Importer) Import(imp model.CourseImport) (*model.Course, int, error) {
	c, items, err := im.Prepare(imp)
	if err != nil {
		return nil, 0, err
	}
	if err := im.store.CreateCourse(c, imp.Description, items); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, 0, apperr.New(apperr.KindConflict, "ErrCourseExists", "course already exists", err)
		}
		return nil, 0, fmt.Errorf("create course: %w", err)
	}
	slog.Info("course imported",
		"course_id", c.ID,
		"video_id", model.VideoID(c.YouTubeURL),
		"segments", len(items),
	)
	return &c, len(items), nil
}
