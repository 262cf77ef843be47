// Package export writes generated quizzes for use outside the web UI.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/emailtutor/internal/model"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

const (
	questionsSheet = "Questions"
	sourceSheet    = "Source"
)

var questionHeaders = []string{
	"#", "Question", "Option A", "Option B", "Option C", "Option D", "Correct Answer", "Explanation",
}

// Write encodes e in the named format.
func Write(w io.Writer, format string, e model.QuizExport) error {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return WriteJSON(w, e)
	case FormatXLSX:
		return WriteXLSX(w, e)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteJSON writes e as indented JSON followed by a newline.
func WriteJSON(w io.Writer, e model.QuizExport) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// WriteXLSX writes e as a workbook with one row per question on the first sheet
// and the extracted email and retrieved context on the second.
func WriteXLSX(w io.Writer, e model.QuizExport) error {
	f := excelize.NewFile()
	defer f.Close()

	// A new workbook starts with "Sheet1".
	if err := f.SetSheetName("Sheet1", questionsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := setRow(f, questionsSheet, 1, toAny(questionHeaders)); err != nil {
		return err
	}
	for i, q := range e.Questions {
		row := []any{i + 1, q.Question}
		for j := range 4 {
			opt := ""
			if j < len(q.Options) {
				opt = q.Options[j]
			}
			row = append(row, opt)
		}
		row = append(row, q.CorrectAnswer, q.Explanation)
		if err := setRow(f, questionsSheet, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(sourceSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	meta := [][]any{
		{"Generated At", e.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Model", e.Model},
		{"Sources", strings.Join(e.Sources, ", ")},
		{"Questions", e.NumQuestions},
		{"Email Text", e.EmailText},
		{"Retrieved Context", e.RetrievedContext},
	}
	for i, row := range meta {
		if err := setRow(f, sourceSheet, i+1, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
