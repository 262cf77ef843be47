package quiz

import (
	"strings"

	"github.com/pavelanni/emailtutor/internal/model"
)

// Normalize trims and lower-cases option text for answer comparison.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// CorrectIndex returns the index of the first option matching the correct answer
// after normalization, or -1 when none does.
func CorrectIndex(q model.QuizQuestion) int {
	want := Normalize(q.CorrectAnswer)
	for i, opt := range q.Options {
		if Normalize(opt) == want {
			return i
		}
	}
	return -1
}
