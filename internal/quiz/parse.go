package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/emailtutor/internal/model"
)

var (
	// ErrMalformedQuiz is returned when the model reply is not a JSON array of questions.
	ErrMalformedQuiz = errors.New("malformed quiz JSON")
	// ErrInvalidQuiz is returned when the reply parses but a question is missing required fields.
	ErrInvalidQuiz = errors.New("invalid quiz")
)

var codeFenceRegex = regexp.MustCompile("```json|```")

var validate = validator.New(validator.WithRequiredStructEnabled())

// StripCodeFence removes Markdown code-fence markers the model tends to wrap JSON in.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	s = codeFenceRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Parse turns a raw model reply into a Quiz.
// Every question is validated here once; a correct answer that matches none of the
// options is still accepted and only logged.
func Parse(raw string) (model.Quiz, error) {
	text := StripCodeFence(raw)

	var questions []model.QuizQuestion
	if err := json.Unmarshal([]byte(text), &questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedQuiz, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrInvalidQuiz)
	}

	for i := range questions {
		if err := validate.Struct(&questions[i]); err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", ErrInvalidQuiz, i+1, err)
		}
		if CorrectIndex(questions[i]) < 0 {
			slog.Warn("correct answer matches no option",
				"question", i+1, "correct_answer", questions[i].CorrectAnswer)
		}
	}

	return model.Quiz(questions), nil
}
