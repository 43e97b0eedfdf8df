package transcript

import (
	"math"
	"regexp"
	"strings"

	"github.com/pavelanni/coursegen/internal/model"
)

// DefaultMaxGap joins captions separated by less than a second and a half.
const DefaultMaxGap = 1.5

// DefaultWindow is the bucket length used by MergeByWindow, in seconds.
const DefaultWindow = 60

var (
	cueRegex        = regexp.MustCompile(`\[[^\]]*\]`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// MergeByGap joins consecutive captions into transcript items. A caption starting no
// more than maxGap seconds after the running item's end is appended to it.
func MergeByGap(captions []model.Caption, maxGap float64) []model.TranscriptItem {
	if maxGap < 0 {
		maxGap = DefaultMaxGap
	}

	var merged []model.TranscriptItem
	for _, c := range captions {
		n := len(merged)
		if n == 0 || c.Offset > merged[n-1].End+maxGap {
			merged = append(merged, model.TranscriptItem{
				Start: c.Offset,
				End:   c.Offset + c.Duration,
				Text:  c.Text,
			})
			continue
		}
		merged[n-1].Text += " " + c.Text
		merged[n-1].End = c.Offset + c.Duration
	}
	return merged
}

// MergeByWindow buckets captions into fixed windows of the given length. Each bucket
// starts at its first caption; a caption starting after the bucket end opens a new
// one. Bracketed cues such as "[music]" are dropped and whitespace is collapsed.
// Buckets that end up empty are skipped.
func MergeByWindow(captions []model.Caption, window float64) []model.TranscriptItem {
	if len(captions) == 0 {
		return nil
	}
	if window <= 0 {
		window = DefaultWindow
	}

	var merged []model.TranscriptItem
	var bucket []string
	bucketStart := captions[0].Offset

	flush := func() {
		text := cleanCaption(strings.Join(bucket, " "))
		if text == "" {
			return
		}
		merged = append(merged, model.TranscriptItem{
			Start: round2(bucketStart),
			End:   round2(bucketStart + window),
			Text:  text,
		})
	}

	for _, c := range captions {
		if c.Offset > bucketStart+window {
			flush()
			bucketStart = c.Offset
			bucket = bucket[:0]
		}
		bucket = append(bucket, c.Text)
	}
	flush()

	return merged
}

func cleanCaption(text string) string {
	text = cueRegex.ReplaceAllString(text, "")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
