// Package prompts renders the generation prompts from embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/pavelanni/coursegen/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.txt"))

var transcriptTagRegex = regexp.MustCompile(`(?i)</?\s*transcript-section\b[^>]*>`)

// Chapter and question count bounds requested from the service.
const (
	MinChapters  = 6
	MaxChapters  = 15
	MinQuestions = 8
	MaxQuestions = 10
)

// SectionsData holds template data for the per-chunk section prompt.
type SectionsData struct {
	Chunk string
}

// ChaptersData holds template data for the chapter synthesis prompt.
type ChaptersData struct {
	MinChapters  int
	MaxChapters  int
	SectionsJSON string
}

// QuizData holds template data for the quiz prompt.
type QuizData struct {
	CourseTitle  string
	Chapters     string
	MinQuestions int
	MaxQuestions int
}

// BuildSectionsPrompt builds the section extraction prompt for one transcript chunk.
func BuildSectionsPrompt(chunk string) (string, error) {
	return render("sections.txt", SectionsData{Chunk: sanitizeTranscript(chunk)})
}

// BuildChaptersPrompt builds the synthesis prompt from all chunk sections, in chunk order.
func BuildChaptersPrompt(sections []model.StructuredSection) (string, error) {
	if sections == nil {
		sections = []model.StructuredSection{}
	}
	data, err := json.Marshal(sections)
	if err != nil {
		return "", fmt.Errorf("marshal sections: %w", err)
	}
	return render("chapters.txt", ChaptersData{
		MinChapters:  MinChapters,
		MaxChapters:  MaxChapters,
		SectionsJSON: string(data),
	})
}

// BuildQuizPrompt builds the quiz prompt from the course title and its chapter titles
// in index order. Transcript text is never included.
func BuildQuizPrompt(courseTitle string, chapterTitles []string) (string, error) {
	return render("quiz.txt", QuizData{
		CourseTitle:  courseTitle,
		Chapters:     ChapterListing(chapterTitles),
		MinQuestions: MinQuestions,
		MaxQuestions: MaxQuestions,
	})
}

// QuizSystemPrompt returns the system message sent with the quiz prompt.
func QuizSystemPrompt() string {
	s, err := render("quiz_system.txt", nil)
	if err != nil {
		// The template is embedded and has no actions.
		panic(err)
	}
	return strings.TrimSpace(s)
}

// ChapterListing flattens titles to "Chapter 0: Intro, Chapter 1: Basics".
func ChapterListing(titles []string) string {
	parts := make([]string, len(titles))
	for i, t := range titles {
		parts[i] = fmt.Sprintf("Chapter %d: %s", i, t)
	}
	return strings.Join(parts, ", ")
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func sanitizeTranscript(chunk string) string {
	chunk = transcriptTagRegex.ReplaceAllString(chunk, "")
	return strings.TrimRight(chunk, "\n")
}
