package chapters

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/coursegen/internal/apperr"
	"github.com/pavelanni/coursegen/internal/llm"
	"github.com/pavelanni/coursegen/internal/model"
)

func TestNormalize(t *testing.T) {
	in := []model.Chapter{
		{Title: "Second", Start: 100, End: 50},
		{Title: " ", Start: 10, End: 20},
		{Title: "First", Start: 0, End: 100},
		{Title: "Outside", Start: 900, End: 950},
		{Title: "Third", Start: 200, End: 999},
	}
	got := Normalize(in, 0, 600)

	want := []model.Chapter{
		{Title: "First", Start: 0, End: 100, Index: 0},
		{Title: "Second", Start: 100, End: 200, Index: 1},
		{Title: "Third", Start: 200, End: 260, Index: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize:\n got  %+v\n want %+v", got, want)
	}
}

func TestNormalizeStableAndNoSpan(t *testing.T) {
	in := []model.Chapter{
		{Title: "A", Start: 30},
		{Title: "B", Start: 30},
		{Title: "C", Start: 5000},
	}
	got := Normalize(in, 0, 0)
	if len(got) != 3 {
		t.Fatalf("expected all chapters without a span, got %d", len(got))
	}
	if got[0].Title != "A" || got[1].Title != "B" {
		t.Errorf("equal starts reordered: %q, %q", got[0].Title, got[1].Title)
	}
	for i, ch := range got {
		if ch.Index != i {
			t.Errorf("chapter %d has index %d", i, ch.Index)
		}
	}
}

func TestExtractAllCooldown(t *testing.T) {
	sl := &sleepLog{}
	gen := &fakeGen{sections: []reply{{body: sectionsJSON}}}
	cfg := testConfig(sl)
	ex := NewExtractor(gen, cfg.Policy, cfg.Cooldown, nil)

	got, err := ex.ExtractAll(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 sections, got %d", len(got))
	}
	want := []time.Duration{4500 * time.Millisecond, 4500 * time.Millisecond}
	if !reflect.DeepEqual(sl.waits, want) {
		t.Errorf("waits = %v, want %v", sl.waits, want)
	}
}

func TestExtractRetriesMalformed(t *testing.T) {
	sl := &sleepLog{}
	gen := &fakeGen{sections: []reply{{body: "not json"}, {body: `{"sections":[]}`}, {body: sectionsJSON}}}
	cfg := testConfig(sl)
	ex := NewExtractor(gen, cfg.Policy, 0, nil)

	got, err := ex.Extract(context.Background(), "chunk")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got[0].SectionTitle != "Setup" {
		t.Errorf("unexpected sections %+v", got)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if !reflect.DeepEqual(sl.waits, want) {
		t.Errorf("waits = %v, want %v", sl.waits, want)
	}
}

func TestChaptersFromDatabase(t *testing.T) {
	st := newFakeStore()
	stored := []model.Chapter{{Title: "Stored", Start: 0, End: 60}}
	st.chapters["c1"] = stored
	gen := &fakeGen{}
	svc := NewService(st, st, gen, testConfig(&sleepLog{}), nil)

	res, err := svc.Chapters(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Chapters: %v", err)
	}
	if res.Source != model.SourceDatabase || !reflect.DeepEqual(res.Chapters, stored) {
		t.Errorf("unexpected result %+v", res)
	}
	if gen.calls() != 0 || st.puts != 0 {
		t.Errorf("expected no generation and no write, got %d calls %d puts", gen.calls(), st.puts)
	}
}

func TestChaptersFromDescription(t *testing.T) {
	st := newFakeStore()
	st.description = "0:00 Intro\n1:30 Setup\n5:00 Wrap-up"
	gen := &fakeGen{}
	svc := NewService(st, st, gen, testConfig(&sleepLog{}), nil)

	res, err := svc.Chapters(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Chapters: %v", err)
	}
	if res.Source != model.SourceDescription {
		t.Errorf("source = %q", res.Source)
	}
	starts := []int{res.Chapters[0].Start, res.Chapters[1].Start, res.Chapters[2].Start}
	if !reflect.DeepEqual(starts, []int{0, 90, 300}) {
		t.Errorf("starts = %v", starts)
	}
	if gen.calls() != 0 {
		t.Errorf("description path must not call the generator, got %d calls", gen.calls())
	}

	again, err := svc.Chapters(context.Background(), "c1")
	if err != nil {
		t.Fatalf("second Chapters: %v", err)
	}
	if again.Source != model.SourceDatabase || len(again.Chapters) != 3 {
		t.Errorf("second call should come from storage, got %+v", again)
	}
}

func TestChaptersGenerated(t *testing.T) {
	st := newFakeStore()
	st.transcript = items(10)
	sl := &sleepLog{}
	gen := &fakeGen{
		sections: []reply{{body: sectionsJSON}},
		chapters: []reply{{body: chaptersJSON}},
	}
	svc := NewService(st, st, gen, testConfig(sl), nil)

	res, err := svc.Chapters(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Chapters: %v", err)
	}
	if res.Source != model.SourceGenerated {
		t.Errorf("source = %q", res.Source)
	}
	titles := make([]string, len(res.Chapters))
	for i, ch := range res.Chapters {
		titles[i] = ch.Title
		if ch.Index != i {
			t.Errorf("chapter %d index %d", i, ch.Index)
		}
	}
	if !reflect.DeepEqual(titles, []string{"Intro", "Variables", "Outro"}) {
		t.Errorf("titles = %v", titles)
	}
	last := res.Chapters[len(res.Chapters)-1]
	if last.Start != 250 || last.End != 310 {
		t.Errorf("last chapter = %+v", last)
	}
	if st.puts != 1 {
		t.Errorf("expected one write, got %d", st.puts)
	}
	for _, w := range sl.waits {
		if w != 4500*time.Millisecond {
			t.Errorf("unexpected wait %v", w)
		}
	}
}

func TestChaptersErrors(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		setup func(*fakeStore, *fakeGen)
		kind  apperr.Kind
		code  string
	}{
		{
			name: "empty id",
			id:   "",
			kind: apperr.KindInput,
			code: "ErrCourseIDRequired",
		},
		{
			name: "missing course",
			id:   "nope",
			kind: apperr.KindNotFound,
			code: "ErrCourseNotFound",
		},
		{
			name: "no transcript",
			id:   "c1",
			kind: apperr.KindInput,
			code: "ErrTranscriptNotFound",
		},
		{
			name: "rate limited",
			id:   "c1",
			setup: func(st *fakeStore, g *fakeGen) {
				st.transcript = items(2)
				g.sections = []reply{{err: fmt.Errorf("call: %w", apperr.ErrRateLimited)}}
			},
			kind: apperr.KindGeneration,
			code: "ErrChapterGeneration",
		},
		{
			name: "fatal service error",
			id:   "c1",
			setup: func(st *fakeStore, g *fakeGen) {
				st.transcript = items(2)
				g.sections = []reply{{err: errors.New("status 500")}}
			},
			kind: apperr.KindGeneration,
			code: "ErrChapterGeneration",
		},
		{
			name: "no chapter inside transcript",
			id:   "c1",
			setup: func(st *fakeStore, g *fakeGen) {
				st.transcript = items(2)
				g.sections = []reply{{body: sectionsJSON}}
				g.chapters = []reply{{body: `{"chapters":[{"title":"Late","start":9999,"end":10000}]}`}}
			},
			kind: apperr.KindGeneration,
			code: "ErrChapterGeneration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore()
			gen := &fakeGen{}
			if tt.setup != nil {
				tt.setup(st, gen)
			}
			svc := NewService(st, st, gen, testConfig(&sleepLog{}), nil)

			_, err := svc.Chapters(context.Background(), tt.id)
			if err == nil {
				t.Fatal("expected error")
			}
			var e *apperr.Error
			if !errors.As(err, &e) {
				t.Fatalf("expected *apperr.Error, got %T: %v", err, err)
			}
			if e.Kind != tt.kind || e.Code != tt.code {
				t.Errorf("got kind %q code %q, want %q %q", e.Kind, e.Code, tt.kind, tt.code)
			}
			if st.puts != 0 {
				t.Errorf("nothing should be stored on failure, got %d puts", st.puts)
			}
		})
	}
}

func TestChaptersRateLimitExhaustedMessage(t *testing.T) {
	st := newFakeStore()
	st.transcript = items(2)
	sl := &sleepLog{}
	gen := &fakeGen{sections: []reply{{err: apperr.ErrRateLimited}}}
	svc := NewService(st, st, gen, testConfig(sl), nil)

	_, err := svc.Chapters(context.Background(), "c1")
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Fatalf("expected rate limit message, got %v", err)
	}
	if gen.calls() != 3 {
		t.Errorf("expected 3 attempts, got %d", gen.calls())
	}
	want := []time.Duration{15 * time.Second, 30 * time.Second}
	if !reflect.DeepEqual(sl.waits, want) {
		t.Errorf("waits = %v, want %v", sl.waits, want)
	}
}

func TestChaptersConflictReturnsStored(t *testing.T) {
	st := newFakeStore()
	st.description = "0:00 Intro\n2:00 More"
	winner := []model.Chapter{{Title: "Winner", Start: 0, End: 60}}
	st.conflictWith = winner
	svc := NewService(st, st, &fakeGen{}, testConfig(&sleepLog{}), nil)

	res, err := svc.Chapters(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Chapters: %v", err)
	}
	if res.Source != model.SourceDatabase || !reflect.DeepEqual(res.Chapters, winner) {
		t.Errorf("expected stored winner, got %+v", res)
	}
}

func TestChaptersConcurrentCallsShareRun(t *testing.T) {
	st := newFakeStore()
	st.transcript = items(10)
	release := make(chan struct{})
	gen := &blockingGen{release: release, started: make(chan struct{}), inner: &fakeGen{
		sections: []reply{{body: sectionsJSON}},
		chapters: []reply{{body: chaptersJSON}},
	}}
	svc := NewService(st, st, gen, testConfig(&sleepLog{}), nil)

	const n = 5
	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Chapters(context.Background(), "c1")
		}(i)
	}
	<-gen.started
	// Give the other callers time to join the running generation.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d: %v", i, errs[i])
		}
		if len(results[i].Chapters) != 3 {
			t.Errorf("call %d got %d chapters", i, len(results[i].Chapters))
		}
	}
	if st.puts != 1 {
		t.Errorf("expected a single write, got %d", st.puts)
	}
}

func TestChaptersCancelledCallerDoesNotFailOthers(t *testing.T) {
	st := newFakeStore()
	st.transcript = items(10)
	release := make(chan struct{})
	gen := &blockingGen{release: release, started: make(chan struct{}), inner: &fakeGen{
		sections: []reply{{body: sectionsJSON}},
		chapters: []reply{{body: chaptersJSON}},
	}}
	svc := NewService(st, st, gen, testConfig(&sleepLog{}), nil)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Chapters(firstCtx, "c1")
		firstErr <- err
	}()
	<-gen.started

	type outcome struct {
		res *Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := svc.Chapters(context.Background(), "c1")
		second <- outcome{res, err}
	}()
	// Give the second caller time to join the running generation.
	time.Sleep(50 * time.Millisecond)

	cancel()
	err := <-firstErr
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller: expected cancellation, got %v", err)
	}
	var e *apperr.Error
	if !errors.As(err, &e) || e.Code != "ErrChapterGeneration" {
		t.Errorf("first caller: expected ErrChapterGeneration, got %v", err)
	}

	close(release)
	got := <-second
	if got.err != nil {
		t.Fatalf("second caller: %v", got.err)
	}
	if len(got.res.Chapters) != 3 {
		t.Errorf("second caller got %d chapters, want 3", len(got.res.Chapters))
	}
	if st.puts != 1 {
		t.Errorf("expected a single write, got %d", st.puts)
	}
}

// blockingGen holds the first request until release is closed.
type blockingGen struct {
	inner   *fakeGen
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingGen) GenerateStructured(ctx context.Context, req llm.Request) (string, error) {
	b.once.Do(func() {
		close(b.started)
		<-b.release
	})
	return b.inner.GenerateStructured(ctx, req)
}
