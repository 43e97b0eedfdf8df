package timecode

import (
	"reflect"
	"testing"
)

func TestParseBasic(t *testing.T) {
	got := Parse("(00:00) Intro\n(01:30) Basics\n(05:00) Advanced")
	if len(got) != 3 {
		t.Fatalf("expected 3 chapters, got %d: %+v", len(got), got)
	}

	wantStart := []int{0, 90, 300}
	wantEnd := []int{90, 300, 360}
	wantTitle := []string{"Intro", "Basics", "Advanced"}
	for i, ch := range got {
		if ch.Start != wantStart[i] {
			t.Errorf("chapter %d start = %d, want %d", i, ch.Start, wantStart[i])
		}
		if ch.End != wantEnd[i] {
			t.Errorf("chapter %d end = %d, want %d", i, ch.End, wantEnd[i])
		}
		if ch.Title != wantTitle[i] {
			t.Errorf("chapter %d title = %q, want %q", i, ch.Title, wantTitle[i])
		}
		if ch.Index != i {
			t.Errorf("chapter %d index = %d, want %d", i, ch.Index, i)
		}
	}
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantStart int
		wantTitle string
	}{
		{"minutes seconds", "12:34 Topic", 754, "Topic"},
		{"single digit minutes", "2:05 Setup", 125, "Setup"},
		{"hours", "1:02:03 Deep dive", 3723, "Deep dive"},
		{"parenthesised hours", "(01:00:00) Wrap-up", 3600, "Wrap-up"},
		{"trailing separator", "00:10 Install Go -", 10, "Install Go"},
		{"leading separator kept", "(00:00) - Intro", 0, "- Intro"},
		{"title before timecode", "Closing thoughts — 10:00", 600, "Closing thoughts"},
		{"colon after timecode", "03:00: Modules", 180, ": Modules"},
		{"separators on both sides", "00:10 - Install Go -", 10, "- Install Go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.line)
			if len(got) != 1 {
				t.Fatalf("expected 1 chapter, got %d: %+v", len(got), got)
			}
			if got[0].Start != tt.wantStart {
				t.Errorf("start = %d, want %d", got[0].Start, tt.wantStart)
			}
			if got[0].Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", got[0].Title, tt.wantTitle)
			}
			if got[0].End != tt.wantStart+LastChapterSeconds {
				t.Errorf("end = %d, want %d", got[0].End, tt.wantStart+LastChapterSeconds)
			}
		})
	}
}

func TestParseSortsAndSkips(t *testing.T) {
	desc := `Welcome to the course!
05:00 Advanced
(00:00)
00:00 Intro
Links: https://example.com
01:30 Basics`

	got := Parse(desc)
	var starts []int
	var titles []string
	for _, ch := range got {
		starts = append(starts, ch.Start)
		titles = append(titles, ch.Title)
	}
	if !reflect.DeepEqual(starts, []int{0, 90, 300}) {
		t.Errorf("starts = %v, want [0 90 300]", starts)
	}
	if !reflect.DeepEqual(titles, []string{"Intro", "Basics", "Advanced"}) {
		t.Errorf("titles = %v", titles)
	}
	if got[0].End != 90 || got[1].End != 300 || got[2].End != 360 {
		t.Errorf("unexpected ends: %+v", got)
	}
}

func TestParseNoTimecodes(t *testing.T) {
	for _, desc := range []string{"", "Just a plain description.\nNo chapters here."} {
		if got := Parse(desc); len(got) != 0 {
			t.Errorf("Parse(%q) = %+v, want empty", desc, got)
		}
	}
}

func TestParseDeterministic(t *testing.T) {
	desc := "10:00 B\n00:00 A\n10:00 C\n03:00 D"
	first := Parse(desc)
	second := Parse(desc)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("non-deterministic output:\n%+v\n%+v", first, second)
	}
	for i := 1; i < len(first); i++ {
		if first[i].Start < first[i-1].Start {
			t.Fatalf("not sorted: %+v", first)
		}
	}
	// Equal starts keep their input order.
	if first[2].Title != "B" || first[3].Title != "C" {
		t.Errorf("unstable order for equal starts: %+v", first)
	}
}
