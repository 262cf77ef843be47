package prompts

import (
	"strings"
	"testing"
)

func TestBuildQuizPrompt(t *testing.T) {
	email := "Dear friend, your gift of $25 feeds a family this winter."

	t.Run("without context", func(t *testing.T) {
		prompt, err := BuildQuizPrompt(7, "", email)
		if err != nil {
			t.Fatalf("BuildQuizPrompt: %v", err)
		}
		if !strings.Contains(prompt, "Generate 7 deep evaluation MCQs") {
			t.Error("prompt should request the configured number of questions")
		}
		if !strings.Contains(prompt, email) {
			t.Error("prompt should contain the email text")
		}
		for _, angle := range Angles {
			if !strings.Contains(prompt, "- "+angle) {
				t.Errorf("prompt should list angle %q", angle)
			}
		}
		if strings.Contains(prompt, "expert examples") {
			t.Error("prompt should not mention expert examples without context")
		}
		if !strings.Contains(prompt, `"correct_answer"`) {
			t.Error("prompt should describe the JSON shape")
		}
	})

	t.Run("with context", func(t *testing.T) {
		ctx := "Last spring our volunteers planted 300 trees."
		prompt, err := BuildQuizPrompt(3, ctx, email)
		if err != nil {
			t.Fatalf("BuildQuizPrompt: %v", err)
		}
		if !strings.Contains(prompt, "expert examples") {
			t.Error("prompt should introduce the retrieved context")
		}
		if strings.Index(prompt, ctx) > strings.Index(prompt, email) {
			t.Error("context should come before the email text")
		}
	})
}

func TestExtractInstruction(t *testing.T) {
	got, err := ExtractInstruction()
	if err != nil {
		t.Fatalf("ExtractInstruction: %v", err)
	}
	if got != "Extract ONLY the donor email text from this image:" {
		t.Errorf("ExtractInstruction() = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	short := "hello"
	if truncate(short) != short {
		t.Error("short text should be unchanged")
	}
	long := strings.Repeat("x", maxEmailRunes+10)
	got := truncate(long)
	if !strings.HasSuffix(got, "[Text truncated due to length]") {
		t.Error("long text should be marked as truncated")
	}
}
