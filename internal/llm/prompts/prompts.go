package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var embedded embed.FS

// Embedded is the built-in prompt set.
var Embedded fs.FS = mustSub(embedded, "templates")

// Angles are the evaluation perspectives every generated quiz covers.
var Angles = []string{
	"persuasion",
	"emotional storytelling",
	"donor psychology",
	"CTA effectiveness",
	"ethical messaging",
	"weaknesses",
}

// maxEmailRunes caps how much extracted text goes into one prompt.
const maxEmailRunes = 20000

var (
	loadOnce      sync.Once
	loadErr       error
	extractPrompt string
	quizTemplate  *template.Template
)

// QuizData holds template data for the quiz generation prompt.
type QuizData struct {
	NumQuestions int
	Angles       []string
	Context      string
	EmailText    string
}

// Load reads extract.txt and quiz.txt from fsys.
// It uses sync.Once so the first call wins; later calls return its error.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		extract, err := fs.ReadFile(fsys, "extract.txt")
		if err != nil {
			loadErr = errors.New("failed to read prompt file extract.txt: " + err.Error())
			return
		}
		extractPrompt = strings.TrimSpace(string(extract))

		quizContent, err := fs.ReadFile(fsys, "quiz.txt")
		if err != nil {
			loadErr = errors.New("failed to read prompt file quiz.txt: " + err.Error())
			return
		}
		tmpl, err := template.New("quiz").Parse(string(quizContent))
		if err != nil {
			loadErr = errors.New("failed to parse prompt template quiz.txt: " + err.Error())
			return
		}
		quizTemplate = tmpl
	})
	return loadErr
}

// ExtractInstruction returns the instruction sent alongside each screenshot.
func ExtractInstruction() (string, error) {
	if err := Load(Embedded); err != nil {
		return "", err
	}
	return extractPrompt, nil
}

// BuildQuizPrompt renders the generation prompt. An empty context omits the
// expert-examples section.
func BuildQuizPrompt(numQuestions int, context, emailText string) (string, error) {
	if err := Load(Embedded); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}

	data := QuizData{
		NumQuestions: numQuestions,
		Angles:       Angles,
		Context:      truncate(strings.TrimSpace(context)),
		EmailText:    truncate(strings.TrimSpace(emailText)),
	}

	var buf bytes.Buffer
	if err := quizTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxEmailRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxEmailRunes]) + "\n\n[Text truncated due to length]"
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
