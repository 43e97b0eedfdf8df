package model

import (
	"time"
)

// CourseStatus represents the processing state of a course.
type CourseStatus string

const (
	// CourseProcessing is set while transcript segments are being stored.
	CourseProcessing CourseStatus = "processing"
	// CourseCompleted means the course is ready for chapter and quiz generation.
	CourseCompleted CourseStatus = "completed"
)

// ChapterSource tells a caller where a chapter list came from.
type ChapterSource string

const (
	SourceDatabase    ChapterSource = "database"
	SourceDescription ChapterSource = "youtube-description"
	SourceGenerated   ChapterSource = "generated"
)

// QuestionTypeMCQ is the only supported question variant.
const QuestionTypeMCQ = "mcq"

// Course is a video course owned by a user.
type Course struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	YouTubeURL string       `json:"youtube_url"`
	Status     CourseStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

// CourseDetail combines a course with its chapter outline for display.
type CourseDetail struct {
	Course
	Chapters []Chapter `json:"chapters"`
}

// TranscriptItem is one time-stamped line of a transcript, in seconds.
type TranscriptItem struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Caption is a raw caption snippet as returned by the video platform.
type Caption struct {
	Text     string  `json:"text"`
	Offset   float64 `json:"offset"`
	Duration float64 `json:"duration"`
}

// StructuredSection is a topic outline for one transcript chunk.
type StructuredSection struct {
	SectionTitle string   `json:"sectionTitle"`
	Start        int      `json:"start"`
	End          int      `json:"end"`
	MainTopics   []string `json:"mainTopics"`
}

// Chapter is one entry of a course outline.
type Chapter struct {
	Title    string   `json:"title"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Keywords []string `json:"keywords,omitempty"`
	Index    int      `json:"index"`
}

// Question is a single multiple-choice question. Text fields hold rich text.
type Question struct {
	Type        string   `json:"type"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// QuizContent is the quiz document stored once per course.
type QuizContent struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// CourseImport is used for creating a course from JSON, either through the API or the import command.
// Captions are merged into transcript items when Transcript is empty.
type CourseImport struct {
	ID          string           `json:"id,omitempty"`
	Title       string           `json:"title"`
	YouTubeURL  string           `json:"youtube_url"`
	Description string           `json:"description"`
	Transcript  []TranscriptItem `json:"transcript,omitempty"`
	Captions    []Caption        `json:"captions,omitempty"`
}
