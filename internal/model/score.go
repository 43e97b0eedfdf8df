package model

// ScoreRequest is the JSON body of a quiz submission.
type ScoreRequest struct {
	Answers []string `json:"answers"`
}

// ScoreResult holds the outcome of an exact-match quiz submission.
type ScoreResult struct {
	Correct int            `json:"correct"`
	Total   int            `json:"total"`
	Percent float64        `json:"percent"`
	Answers []AnswerResult `json:"answers"`
}

// AnswerResult holds per-question data for a scored submission.
type AnswerResult struct {
	Number      int    `json:"number"`
	Given       string `json:"given"`
	Expected    string `json:"expected"`
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation"`
}
