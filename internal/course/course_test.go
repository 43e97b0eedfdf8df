package course

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/coursegen/internal/apperr"
	"github.com/pavelanni/coursegen/internal/model"
)

type fakeCreator struct {
	courses     map[string]model.Course
	description string
	items       []model.TranscriptItem
}

func (f *fakeCreator) CreateCourse(c model.Course, description string, items []model.TranscriptItem) error {
	if _, ok := f.courses[c.ID]; ok {
		return fmt.Errorf("insert course: %w", apperr.ErrConflict)
	}
	f.courses[c.ID] = c
	f.description = description
	f.items = items
	return nil
}

func newFake() *fakeCreator { return &fakeCreator{courses: map[string]model.Course{}} }

func TestImportGeneratesID(t *testing.T) {
	fc := newFake()
	im := NewImporter(fc, MergeGap)
	im.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	c, n, err := im.Import(model.CourseImport{
		Title:       "  Go Basics ",
		YouTubeURL:  "https://www.youtube.com/watch?v=abc123XYZ_-",
		Description: "0:00 Intro",
		Transcript:  []model.TranscriptItem{{Start: 0, End: 2, Text: "hi"}},
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if _, err := uuid.Parse(c.ID); err != nil {
		t.Errorf("expected uuid id, got %q", c.ID)
	}
	if c.Title != "Go Basics" || n != 1 || fc.description != "0:00 Intro" {
		t.Errorf("unexpected course %+v n=%d desc=%q", c, n, fc.description)
	}
	if !c.CreatedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("created_at = %v", c.CreatedAt)
	}
}

func TestImportMergesCaptions(t *testing.T) {
	captions := []model.Caption{
		{Text: "hello", Offset: 0, Duration: 1},
		{Text: "there", Offset: 1.2, Duration: 1},
		{Text: "later", Offset: 10, Duration: 1},
	}

	tests := []struct {
		mode MergeMode
		want int
	}{
		{mode: MergeGap, want: 2},
		{mode: MergeWindow, want: 1},
		{mode: "bogus", want: 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			fc := newFake()
			_, n, err := NewImporter(fc, tt.mode).Import(model.CourseImport{ID: "c1", Title: "T", Captions: captions})
			if err != nil {
				t.Fatalf("Import: %v", err)
			}
			if n != tt.want || len(fc.items) != tt.want {
				t.Errorf("got %d items, want %d", n, tt.want)
			}
		})
	}
}

func TestImportErrors(t *testing.T) {
	fc := newFake()
	im := NewImporter(fc, MergeGap)

	_, _, err := im.Import(model.CourseImport{Title: " "})
	if !apperr.Is(err, apperr.KindInput) {
		t.Errorf("blank title should be an input error, got %v", err)
	}

	if _, _, err := im.Import(model.CourseImport{ID: "c1", Title: "A"}); err != nil {
		t.Fatalf("first import: %v", err)
	}
	_, _, err = im.Import(model.CourseImport{ID: "c1", Title: "B"})
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind != apperr.KindConflict || e.Code != "ErrCourseExists" {
		t.Errorf("duplicate id should conflict, got %v", err)
	}
}

func TestImportRejectsBadTranscript(t *testing.T) {
	tests := []struct {
		name       string
		transcript []model.TranscriptItem
		captions   []model.Caption
		wantMsg    string
	}{
		{
			name:       "ends before start",
			transcript: []model.TranscriptItem{{Start: 100, End: 50, Text: "a"}, {Start: 110, End: 120, Text: "b"}},
			wantMsg:    "item 1 ends before it starts",
		},
		{
			name: "out of order",
			transcript: []model.TranscriptItem{
				{Start: 0, End: 10, Text: "a"},
				{Start: 100, End: 110, Text: "b"},
				{Start: 10, End: 20, Text: "c"},
			},
			wantMsg: "item 3 starts before item 2",
		},
		{
			name:     "unsorted captions",
			captions: []model.Caption{{Text: "late", Offset: 30, Duration: 1}, {Text: "early", Offset: 0, Duration: 1}},
			wantMsg:  "item 2 starts before item 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFake()
			_, _, err := NewImporter(fc, MergeGap).Import(model.CourseImport{
				ID:         "c1",
				Title:      "T",
				Transcript: tt.transcript,
				Captions:   tt.captions,
			})
			var e *apperr.Error
			if !errors.As(err, &e) || e.Kind != apperr.KindInput || e.Code != "ErrTranscriptInvalid" {
				t.Fatalf("expected ErrTranscriptInvalid, got %v", err)
			}
			if !strings.Contains(e.Message, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", e.Message, tt.wantMsg)
			}
			if len(fc.courses) != 0 {
				t.Errorf("nothing should be stored, got %d courses", len(fc.courses))
			}
		})
	}
}

func TestImportAcceptsEqualStarts(t *testing.T) {
	fc := newFake()
	_, n, err := NewImporter(fc, MergeGap).Import(model.CourseImport{
		ID:    "c1",
		Title: "T",
		Transcript: []model.TranscriptItem{
			{Start: 0, End: 0, Text: "a"},
			{Start: 0, End: 5, Text: "b"},
		},
	})
	if err != nil || n != 2 {
		t.Fatalf("Import: n=%d err=%v", n, err)
	}
}
