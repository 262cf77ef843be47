package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pavelanni/emailtutor/internal/export"
	"github.com/pavelanni/emailtutor/internal/model"
)

func TestWriteFileAtomic(t *testing.T) {
	sample := model.QuizExport{
		NumQuestions: 1,
		Questions: model.Quiz{{
			Question:      "Q",
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
			Explanation:   "E",
		}},
	}

	tests := []struct {
		name     string
		format   string
		existing string
		wantErr  bool
		wantFile bool
	}{
		{"json", export.FormatJSON, "", false, true},
		{"xlsx", export.FormatXLSX, "", false, true},
		{"unknown format", "csv", "", true, false},
		{"failure keeps previous output", "csv", "previous", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "quiz.out")
			if tt.existing != "" {
				if err := os.WriteFile(path, []byte(tt.existing), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			err := writeFileAtomic(path, func(w io.Writer) error {
				return export.Write(w, tt.format, sample)
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("writeFileAtomic error = %v, wantErr %v", err, tt.wantErr)
			}

			data, statErr := os.ReadFile(path)
			if tt.wantFile != (statErr == nil) {
				t.Fatalf("output present = %v, want %v", statErr == nil, tt.wantFile)
			}
			if tt.existing != "" && string(data) != tt.existing {
				t.Errorf("previous output was modified: %q", data)
			}
			if !tt.wantErr && len(data) == 0 {
				t.Error("output file is empty")
			}

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			if tt.wantFile && len(entries) != 1 || !tt.wantFile && len(entries) != 0 {
				t.Errorf("unexpected files left in output dir: %v", entries)
			}
		})
	}
}

func TestWriteFileAtomicPartialWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quiz.json")
	boom := errors.New("disk full")

	err := writeFileAtomic(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, `[{"question":`)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("half-written output should not exist, stat err = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temporary file left behind: %v", entries)
	}
}
