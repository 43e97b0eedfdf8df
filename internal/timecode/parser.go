// Package timecode extracts chapter candidates from free-text video descriptions
// that carry inline timecodes such as "(01:30) Basics" or "1:02:03 Wrap-up".
package timecode

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/coursegen/internal/model"
)

// LastChapterSeconds is the length given to the final chapter, which has no successor to end it.
const LastChapterSeconds = 60

var timecodeRegex = regexp.MustCompile(`\(?(\d{1,2}):(\d{2})(?::(\d{2}))?\)?`)

// separators are trimmed from the end of a title once the timecode is removed.
const separators = " \t-–—:"

// Parse returns the chapters found in description, sorted by start time.
// Each chapter ends where the next one starts; the last one ends LastChapterSeconds
// after its start. Lines without a timecode, or with nothing left after removing it,
// are skipped. An empty result means the description carries no usable chapters.
func Parse(description string) []model.Chapter {
	var chapters []model.Chapter

	for _, raw := range strings.Split(description, "\n") {
		line := strings.TrimSpace(raw)
		loc := timecodeRegex.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}

		title := line[:loc[0]] + line[loc[1]:]
		title = strings.TrimSpace(strings.TrimRight(title, separators))
		if title == "" {
			continue
		}

		chapters = append(chapters, model.Chapter{
			Title: title,
			Start: seconds(line, loc),
		})
	}

	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].Start < chapters[j].Start
	})

	for i := range chapters {
		chapters[i].Index = i
		if i < len(chapters)-1 {
			chapters[i].End = chapters[i+1].Start
		} else {
			chapters[i].End = chapters[i].Start + LastChapterSeconds
		}
	}

	return chapters
}

// seconds converts the submatches at loc to a second offset. With three groups the
// timecode is H:MM:SS, with two it is M:SS.
func seconds(line string, loc []int) int {
	group := func(n int) int {
		start, end := loc[2*n], loc[2*n+1]
		if start < 0 {
			return -1
		}
		v, _ := strconv.Atoi(line[start:end])
		return v
	}

	first, second, third := group(1), group(2), group(3)
	if third < 0 {
		return first*60 + second
	}
	return first*3600 + second*60 + third
}
