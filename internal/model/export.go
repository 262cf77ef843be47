package model

import "time"

// QuizExport is the top-level JSON structure written by the generate command.
type QuizExport struct {
	GeneratedAt      time.Time      `json:"generated_at"`
	Model            string         `json:"model"`
	Sources          []string       `json:"sources"`
	EmailText        string         `json:"email_text"`
	RetrievedContext string         `json:"retrieved_context,omitempty"`
	NumQuestions     int            `json:"num_questions"`
	Questions        []QuizQuestion `json:"questions"`
}
