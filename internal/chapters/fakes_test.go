package chapters

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/coursegen/internal/apperr"
	"github.com/pavelanni/coursegen/internal/llm"
	"github.com/pavelanni/coursegen/internal/model"
	"github.com/pavelanni/coursegen/internal/retry"
)

type reply struct {
	body string
	err  error
}

// fakeGen answers section prompts and chapter prompts from separate scripts.
// The last reply of a script repeats once the script is used up.
type fakeGen struct {
	mu       sync.Mutex
	sections []reply
	chapters []reply
	prompts  []string
}

func (f *fakeGen) GenerateStructured(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)

	script := &f.chapters
	if strings.HasPrefix(req.Prompt, "From this transcript section") {
		script = &f.sections
	}
	if len(*script) == 0 {
		return "", fmt.Errorf("unexpected prompt: %.40s", req.Prompt)
	}
	r := (*script)[0]
	if len(*script) > 1 {
		*script = (*script)[1:]
	}
	return r.body, r.err
}

func (f *fakeGen) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeStore struct {
	mu          sync.Mutex
	course      *model.Course
	description string
	transcript  []model.TranscriptItem
	chapters    map[string][]model.Chapter
	// conflictWith is stored instead of the caller's chapters to simulate a lost race.
	conflictWith []model.Chapter
	puts         int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		course:   &model.Course{ID: "c1", Title: "Go Basics", Status: model.CourseCompleted},
		chapters: map[string][]model.Chapter{},
	}
}

func (s *fakeStore) GetCourse(id string) (*model.Course, error) {
	if s.course == nil || s.course.ID != id {
		return nil, nil
	}
	return s.course, nil
}

func (s *fakeStore) GetDescription(string) (string, error) { return s.description, nil }

func (s *fakeStore) GetTranscript(string) ([]model.TranscriptItem, error) { return s.transcript, nil }

func (s *fakeStore) GetChapters(id string) ([]model.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chapters[id], nil
}

func (s *fakeStore) PutChapters(id string, chapters []model.Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.conflictWith != nil {
		s.chapters[id] = s.conflictWith
		return fmt.Errorf("insert chapters: %w", apperr.ErrConflict)
	}
	if len(s.chapters[id]) > 0 {
		return fmt.Errorf("insert chapters: %w", apperr.ErrConflict)
	}
	s.chapters[id] = chapters
	return nil
}

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (l *sleepLog) sleep(_ context.Context, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits = append(l.waits, d)
	return nil
}

func testConfig(sl *sleepLog) Config {
	return Config{
		ChunkChars: 60,
		Cooldown:   4500 * time.Millisecond,
		Policy: retry.Policy{
			MaxAttempts:      3,
			RateLimitWait:    15 * time.Second,
			MalformedBackoff: time.Second,
			Sleep:            sl.sleep,
		},
	}
}

func items(n int) []model.TranscriptItem {
	out := make([]model.TranscriptItem, n)
	for i := range out {
		out[i] = model.TranscriptItem{
			Start: float64(i * 30),
			End:   float64(i*30 + 30),
			Text:  fmt.Sprintf("line number %d", i),
		}
	}
	return out
}

const sectionsJSON = `{"sections":[{"sectionTitle":"Setup","start":0,"end":60,"mainTopics":["install"]}]}`

const chaptersJSON = `{"chapters":[
	{"title":"Variables","start":120,"end":200,"keywords":["var"]},
	{"title":"Intro","start":0,"end":120,"keywords":["go"]},
	{"title":"Outro","start":250.5,"end":0}
]}`
