package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	tests := []struct {
		id   string
		want string
	}{
		{"Generate", "Generate Quiz"},
		{"VerdictExcellent", "Excellent understanding."},
		{"VerdictGood", "Good but needs improvement."},
		{"InvalidQuizFormat", "AI returned invalid format. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := T(ctx, tt.id); got != tt.want {
				t.Errorf("T(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "FinalEvaluation")
	if got != "Итоговая оценка" {
		t.Errorf("T(FinalEvaluation) = %q, want 'Итоговая оценка'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuestionsGenerated", 1)
	if got1 != "1 question generated." {
		t.Errorf("Tp(QuestionsGenerated, 1) = %q", got1)
	}

	got5 := Tp(ctx, "QuestionsGenerated", 5)
	if got5 != "5 questions generated." {
		t.Errorf("Tp(QuestionsGenerated, 5) = %q", got5)
	}

	ru := initLang(t, "ru")
	if got := Tp(ru, "QuestionsGenerated", 5); got != "Создано 5 вопросов." {
		t.Errorf("Tp(ru, QuestionsGenerated, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ScoreLine", map[string]any{"Score": 4, "Total": 5})
	if got != "Score: 4/5" {
		t.Errorf("Td(ScoreLine) = %q, want 'Score: 4/5'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")
	if n := len(Languages()); n != 2 {
		t.Errorf("expected 2 loaded locales, got %d", n)
	}
}

func TestMiddlewareAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	tests := []struct {
		name   string
		lang   string
		header string
		want   string
	}{
		{"fixed language ignores header", "en", "ru", "Next Question"},
		{"auto picks header", "", "ru-RU,ru;q=0.9", "Следующий вопрос"},
		{"auto falls back to default", "", "fr", "Next Question"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := Middleware(tt.lang)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = T(r.Context(), "NextQuestion")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Accept-Language", tt.header)
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
