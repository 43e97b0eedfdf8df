package chapters

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pavelanni/coursegen/internal/apperr"
	"github.com/pavelanni/coursegen/internal/llm"
	"github.com/pavelanni/coursegen/internal/llm/prompts"
	"github.com/pavelanni/coursegen/internal/model"
	"github.com/pavelanni/coursegen/internal/retry"
	"github.com/pavelanni/coursegen/internal/timecode"
)

type rawChapter struct {
	Title    string   `json:"title"`
	Start    float64  `json:"start"`
	End      float64  `json:"end"`
	Keywords []string `json:"keywords"`
}

// Synthesizer merges per-chunk sections into the final chapter list.
type Synthesizer struct {
	gen    Generator
	policy retry.Policy
	log    *slog.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(gen Generator, policy retry.Policy, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Name == "" {
		policy.Name = "chapters"
	}
	return &Synthesizer{gen: gen, policy: policy, log: logger}
}

// Synthesize requests the final chapters for sections and normalises them against the
// transcript span [spanStart, spanEnd]. A response with no usable chapter is malformed
// output and retried.
func (s *Synthesizer) Synthesize(ctx context.Context, sections []model.StructuredSection, spanStart, spanEnd int) ([]model.Chapter, error) {
	prompt, err := prompts.BuildChaptersPrompt(sections)
	if err != nil {
		return nil, err
	}

	s.log.Info("synthesizing chapters", "sections", len(sections))
	return retry.Do(ctx, s.policy, func(ctx context.Context) ([]model.Chapter, error) {
		raw, err := s.gen.GenerateStructured(ctx, llm.Request{
			Prompt:      prompt,
			Temperature: outlineTemperature,
			Format:      llm.FormatJSON,
		})
		if err != nil {
			return nil, err
		}
		items, err := llm.DecodeList[rawChapter](raw)
		if err != nil {
			return nil, fmt.Errorf("chapter response: %w", err)
		}

		chapters := Normalize(toChapters(items), spanStart, spanEnd)
		if len(chapters) == 0 {
			return nil, fmt.Errorf("chapter response has no chapter inside the transcript: %w", apperr.ErrMalformedOutput)
		}
		if len(chapters) < prompts.MinChapters || len(chapters) > prompts.MaxChapters {
			s.log.Warn("chapter count outside requested range",
				"count", len(chapters), "min", prompts.MinChapters, "max", prompts.MaxChapters)
		}
		return chapters, nil
	})
}

// Normalize puts chapters in final form: untitled chapters and chapters starting
// outside [spanStart, spanEnd] are dropped (spanEnd <= spanStart disables the span
// check), the rest are stably sorted by start, a non-final chapter ending before
// its start ends where the next begins, the final chapter ends
// timecode.LastChapterSeconds after its start, and indexes run 0..N-1.
func Normalize(chapters []model.Chapter, spanStart, spanEnd int) []model.Chapter {
	checkSpan := spanEnd > spanStart

	out := make([]model.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		ch.Title = strings.TrimSpace(ch.Title)
		if ch.Title == "" {
			continue
		}
		if checkSpan && (ch.Start < spanStart || ch.Start > spanEnd) {
			continue
		}
		out = append(out, ch)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	for i := range out {
		out[i].Index = i
		if i == len(out)-1 {
			out[i].End = out[i].Start + timecode.LastChapterSeconds
		} else if out[i].End < out[i].Start {
			out[i].End = out[i+1].Start
		}
	}
	return out
}

func toChapters(items []rawChapter) []model.Chapter {
	out := make([]model.Chapter, 0, len(items))
	for _, it := range items {
		out = append(out, model.Chapter{
			Title:    it.Title,
			Start:    int(it.Start),
			End:      int(it.End),
			Keywords: it.Keywords,
		})
	}
	return out
}
