// Package transcript prepares time-stamped transcripts for generation requests.
package transcript

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/coursegen/internal/model"
)

// DefaultMaxChars is the chunk bound used when the caller passes zero.
const DefaultMaxChars = 20000

// FormatItem renders one transcript item as a "[start-end] text" line, newline included.
func FormatItem(item model.TranscriptItem) string {
	return "[" + formatSeconds(item.Start) + "-" + formatSeconds(item.End) + "] " + item.Text + "\n"
}

// Format renders the whole transcript in chunk line format.
func Format(items []model.TranscriptItem) string {
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString(FormatItem(it))
	}
	return sb.String()
}

// Chunk greedily packs formatted transcript lines into chunks of at most maxChars
// characters. A line is never split: when appending it would overflow the current
// chunk, the chunk is closed and the line starts the next one. A single line longer
// than maxChars therefore becomes a chunk of its own.
func Chunk(items []model.TranscriptItem, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	for _, it := range items {
		line := FormatItem(it)
		lineLen := utf8.RuneCountInString(line)

		if currentLen > 0 && currentLen+lineLen > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
		current.WriteString(line)
		currentLen += lineLen
	}

	if currentLen > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// Span returns the earliest start and latest end covered by items, widened to whole seconds.
func Span(items []model.TranscriptItem) (start, end int) {
	if len(items) == 0 {
		return 0, 0
	}
	lo, hi := items[0].Start, items[0].End
	for _, it := range items {
		if it.Start < lo {
			lo = it.Start
		}
		if it.End > hi {
			hi = it.End
		}
	}
	return int(math.Floor(lo)), int(math.Ceil(hi))
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
