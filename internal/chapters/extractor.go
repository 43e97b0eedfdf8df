// Package chapters builds a course's chapter outline, from description timecodes
// when the author supplied them and from the transcript through the generation
// service otherwise.
package chapters

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/coursegen/internal/llm"
	"github.com/pavelanni/coursegen/internal/llm/prompts"
	"github.com/pavelanni/coursegen/internal/model"
	"github.com/pavelanni/coursegen/internal/retry"
)

// Generator is the structured-generation capability used by the chapter pipeline.
type Generator interface {
	GenerateStructured(ctx context.Context, req llm.Request) (string, error)
}

const outlineTemperature = 0.3

// rawSection accepts fractional timestamps from the service.
type rawSection struct {
	SectionTitle string   `json:"sectionTitle"`
	Start        float64  `json:"start"`
	End          float64  `json:"end"`
	MainTopics   []string `json:"mainTopics"`
}

// Extractor turns transcript chunks into structured sections, one request per chunk.
type Extractor struct {
	gen      Generator
	policy   retry.Policy
	cooldown time.Duration
	log      *slog.Logger
}

// NewExtractor creates an Extractor. cooldown is the pause between two chunk requests.
func NewExtractor(gen Generator, policy retry.Policy, cooldown time.Duration, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Name == "" {
		policy.Name = "sections"
	}
	return &Extractor{gen: gen, policy: policy, cooldown: cooldown, log: logger}
}

// Extract requests the sections of a single chunk.
func (e *Extractor) Extract(ctx context.Context, chunk string) ([]model.StructuredSection, error) {
	prompt, err := prompts.BuildSectionsPrompt(chunk)
	if err != nil {
		return nil, err
	}

	return retry.Do(ctx, e.policy, func(ctx context.Context) ([]model.StructuredSection, error) {
		raw, err := e.gen.GenerateStructured(ctx, llm.Request{
			Prompt:      prompt,
			Temperature: outlineTemperature,
			Format:      llm.FormatJSON,
		})
		if err != nil {
			return nil, err
		}
		items, err := llm.DecodeList[rawSection](raw)
		if err != nil {
			return nil, fmt.Errorf("section response: %w", err)
		}
		return toSections(items), nil
	})
}

// ExtractAll processes chunks strictly in order, one request in flight, pausing
// for the cooldown between consecutive chunks. Sections are returned in chunk order.
func (e *Extractor) ExtractAll(ctx context.Context, chunks []string) ([]model.StructuredSection, error) {
	var all []model.StructuredSection
	for i, chunk := range chunks {
		e.log.Info("extracting sections", "chunk", i+1, "chunks", len(chunks))

		sections, err := e.Extract(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		all = append(all, sections...)

		if i < len(chunks)-1 && e.cooldown > 0 {
			if err := e.sleep(ctx, e.cooldown); err != nil {
				return nil, err
			}
		}
	}
	return all, nil
}

func (e *Extractor) sleep(ctx context.Context, d time.Duration) error {
	if e.policy.Sleep != nil {
		return e.policy.Sleep(ctx, d)
	}
	return retry.Sleep(ctx, d)
}

func toSections(items []rawSection) []model.StructuredSection {
	out := make([]model.StructuredSection, 0, len(items))
	for _, it := range items {
		s := model.StructuredSection{
			SectionTitle: strings.TrimSpace(it.SectionTitle),
			Start:        int(it.Start),
			End:          int(it.End),
			MainTopics:   it.MainTopics,
		}
		if s.End < s.Start {
			s.End = s.Start
		}
		out = append(out, s)
	}
	return out
}
