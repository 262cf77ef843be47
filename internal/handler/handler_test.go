package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/emailtutor/internal/i18n"
	"github.com/pavelanni/emailtutor/internal/model"
	"github.com/pavelanni/emailtutor/internal/quiz"
	"github.com/pavelanni/emailtutor/internal/session"
	"github.com/pavelanni/emailtutor/internal/tutor"
)

const quizReply = "```json\n" + `[
 {"question":"Which angle does the subject line use?","options":["Urgency","Humor","Statistics","Guilt"],"correct_answer":"urgency","explanation":"It names a deadline."},
 {"question":"Who is the hero of the story?","options":["The charity","The donor","The CEO","Nobody"],"correct_answer":"The donor","explanation":"Donor-centric framing."},
 {"question":"Is the CTA specific?","options":["Yes","No","Partly","Unclear"],"correct_answer":"Yes","explanation":"It asks for $25 today."}
]` + "\n```"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type fixtureModel struct {
	reply   string
	failErr error
}

func (f *fixtureModel) ExtractText(_ context.Context, img model.Image) (string, error) {
	if f.failErr != nil {
		return "", f.failErr
	}
	return "Dear friend, your gift of $25 today feeds a family. (" + img.Name + ")", nil
}

func (f *fixtureModel) Complete(_ context.Context, _ string) (string, error) {
	return f.reply, nil
}

type testClient struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	base   string
}

func newTestClient(t *testing.T, m tutor.Model, basePath string) *testClient {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}

	cfg := model.TutorConfig{DefaultQuestions: 3, BasePath: basePath, MaxUploadBytes: 1 << 20}
	h, err := New(tutor.New(m, nil), session.NewManager(session.Options{Path: "/"}), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	jar, _ := cookiejar.New(nil)
	return &testClient{t: t, srv: srv, client: &http.Client{Jar: jar}, base: srv.URL + basePath}
}

func (c *testClient) get(path string) (int, string) {
	c.t.Helper()
	resp, err := c.client.Get(c.base + path)
	if err != nil {
		c.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (c *testClient) csrfToken() string {
	c.t.Helper()
	u, _ := url.Parse(c.base + "/")
	for _, ck := range c.client.Jar.Cookies(u) {
		if ck.Name == csrfCookieName {
			return ck.Value
		}
	}
	c.t.Fatal("no CSRF cookie; GET the page first")
	return ""
}

func (c *testClient) postForm(path string, form url.Values) (int, string) {
	c.t.Helper()
	form.Set(csrfFieldName, c.csrfToken())
	resp, err := c.client.PostForm(c.base+path, form)
	if err != nil {
		c.t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (c *testClient) upload(numQuestions string, files map[string][]byte) (int, string) {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField(csrfFieldName, c.csrfToken())
	_ = mw.WriteField("num_questions", numQuestions)
	for name, data := range files {
		fw, _ := mw.CreateFormFile("images", name)
		_, _ = fw.Write(data)
	}
	mw.Close()

	resp, err := c.client.Post(c.base+"/quiz/generate", mw.FormDataContentType(), &buf)
	if err != nil {
		c.t.Fatalf("POST /quiz/generate: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func mustContain(t *testing.T, body string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(body, w) {
			t.Errorf("response missing %q", w)
		}
	}
}

func TestFullQuizFlow(t *testing.T) {
	c := newTestClient(t, &fixtureModel{reply: quizReply}, "")

	status, body := c.get("/")
	if status != http.StatusOK {
		t.Fatalf("GET / = %d", status)
	}
	mustContain(t, body, "Upload a donor email screenshot")

	_, body = c.upload("3", map[string][]byte{"appeal.png": pngBytes})
	mustContain(t, body, "Question 1", "Which angle does the subject line use?", "Extracted Email Preview", "your gift of $25")

	// Options are posted by position: Urgency, The donor, Yes.
	answers := []string{"0", "1", "0"}
	for i, a := range answers {
		idx := string(rune('0' + i))
		_, body = c.postForm("/quiz/answer", url.Values{"answer": {a}, "index": {idx}})
		mustContain(t, body, `banner success">Correct Answer`, "Next Question")

		// Re-submitting a different answer changes nothing.
		_, body = c.postForm("/quiz/answer", url.Values{"answer": {"3"}, "index": {idx}})
		mustContain(t, body, `banner success">Correct Answer`, `value="`+a+`" checked disabled`)

		_, body = c.postForm("/quiz/next", url.Values{"index": {idx}})
	}
	mustContain(t, body, "Final Evaluation", "Score: 3/3", "100% correct", `banner success">Excellent understanding.`)
}

func TestIncorrectAnswer(t *testing.T) {
	c := newTestClient(t, &fixtureModel{reply: quizReply}, "")
	c.get("/")
	c.upload("3", map[string][]byte{"appeal.png": pngBytes})

	_, body := c.postForm("/quiz/answer", url.Values{"answer": {"1"}, "index": {"0"}})
	mustContain(t, body, `banner error">Incorrect`, "It names a deadline.", `value="1" checked disabled`)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		model   *fixtureModel
		num     string
		files   map[string][]byte
		wantMsg string
	}{
		{"malformed reply", &fixtureModel{reply: `[{"question":"Q",}]`}, "3", map[string][]byte{"a.png": pngBytes}, "AI returned invalid format. Please try again."},
		{"question count", &fixtureModel{reply: quizReply}, "11", map[string][]byte{"a.png": pngBytes}, "Choose between 3 and 10 questions."},
		{"not an image", &fixtureModel{reply: quizReply}, "3", map[string][]byte{"a.txt": []byte("hello")}, "Only PNG and JPEG screenshots are supported."},
		{"no files", &fixtureModel{reply: quizReply}, "3", nil, "Please upload at least one screenshot."},
		{"model failure", &fixtureModel{failErr: errors.New("quota")}, "3", map[string][]byte{"a.png": pngBytes}, "The AI service request failed. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.model, "")
			c.get("/")
			status, body := c.upload(tt.num, tt.files)
			if status != http.StatusOK {
				t.Fatalf("status = %d", status)
			}
			mustContain(t, body, tt.wantMsg, "Upload a donor email screenshot")
			if strings.Contains(body, "Question 1") {
				t.Error("no question should be shown after a failed generation")
			}

			// The message is shown once.
			_, body = c.get("/")
			if strings.Contains(body, tt.wantMsg) {
				t.Error("error banner should not persist")
			}
		})
	}
}

func TestFailedGenerationKeepsQuiz(t *testing.T) {
	m := &fixtureModel{reply: quizReply}
	c := newTestClient(t, m, "")
	c.get("/")
	c.upload("3", map[string][]byte{"a.png": pngBytes})
	c.postForm("/quiz/answer", url.Values{"answer": {"0"}, "index": {"0"}})

	m.reply = "not json"
	_, body := c.upload("3", map[string][]byte{"a.png": pngBytes})
	mustContain(t, body, "AI returned invalid format.", `banner success">Correct Answer`)
}

func TestAnswerErrors(t *testing.T) {
	c := newTestClient(t, &fixtureModel{reply: quizReply}, "")
	c.get("/")

	_, body := c.postForm("/quiz/answer", url.Values{"answer": {"0"}})
	mustContain(t, body, "That question is no longer active.")

	c.upload("3", map[string][]byte{"a.png": pngBytes})

	tests := []struct {
		name    string
		path    string
		form    url.Values
		wantMsg string
	}{
		{"no selection", "/quiz/answer", url.Values{"index": {"0"}}, "Select an answer first."},
		{"option text instead of position", "/quiz/answer", url.Values{"answer": {"Urgency"}, "index": {"0"}}, "That question is no longer active."},
		{"option out of range", "/quiz/answer", url.Values{"answer": {"4"}, "index": {"0"}}, "That question is no longer active."},
		{"stale index", "/quiz/answer", url.Values{"answer": {"0"}, "index": {"2"}}, "That question is no longer active."},
		{"next before answer", "/quiz/next", url.Values{"index": {"0"}}, "Submit an answer before moving on."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body := c.postForm(tt.path, tt.form)
			mustContain(t, body, tt.wantMsg, "Question 1", "Submit Answer")
		})
	}
}

func TestCSRFRequired(t *testing.T) {
	c := newTestClient(t, &fixtureModel{reply: quizReply}, "")
	c.get("/")

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"wrong", strings.Repeat("x", len(c.csrfToken()))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{"answer": {"0"}}
			if tt.token != "" {
				form.Set(csrfFieldName, tt.token)
			}
			resp, err := c.client.PostForm(c.base+"/quiz/answer", form)
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("status = %d, want 403", resp.StatusCode)
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	c := newTestClient(t, &fixtureModel{reply: quizReply}, "")
	c.get("/")
	big := append(append([]byte{}, pngBytes...), make([]byte, 1<<20+1024)...)
	_, body := c.upload("3", map[string][]byte{"big.png": big})
	mustContain(t, body, `banner error" role="alert">The upload is too large.`, "Upload a donor email screenshot")
	if strings.Contains(body, "Question 1") {
		t.Error("oversized upload must not start a quiz")
	}
}

func TestMultilineOptionCanBeAnswered(t *testing.T) {
	reply := `[
 {"question":"Which greeting opens the email?","options":["Dear friend,\nThank you","Hello","Hi there","To whom it may concern"],"correct_answer":"Dear friend,\nThank you","explanation":"It thanks the donor first."},
 {"question":"Is the CTA specific?","options":["Yes","No","Partly","Unclear"],"correct_answer":"Yes","explanation":"It asks for $25 today."},
 {"question":"Who is the hero?","options":["The charity","The donor","The CEO","Nobody"],"correct_answer":"The donor","explanation":"Donor-centric framing."}
]`
	c := newTestClient(t, &fixtureModel{reply: reply}, "")
	c.get("/")
	_, body := c.upload("3", map[string][]byte{"a.png": pngBytes})
	mustContain(t, body, "Which greeting opens the email?", `value="0"`)

	_, body = c.postForm("/quiz/answer", url.Values{"answer": {"0"}, "index": {"0"}})
	mustContain(t, body, `banner success">Correct Answer`, "Next Question")

	_, body = c.postForm("/quiz/next", url.Values{"index": {"0"}})
	mustContain(t, body, "Question 2", "Is the CTA specific?")
}

func TestHealthz(t *testing.T) {
	c := newTestClient(t, &fixtureModel{}, "")
	status, body := c.get("/healthz")
	if status != http.StatusOK || body != "ok" {
		t.Errorf("GET /healthz = %d %q", status, body)
	}
}

func TestBasePath(t *testing.T) {
	c := newTestClient(t, &fixtureModel{reply: quizReply}, "/tutor")
	status, body := c.get("/")
	if status != http.StatusOK {
		t.Fatalf("GET /tutor/ = %d", status)
	}
	mustContain(t, body, `action="/tutor/quiz/generate"`)

	_, body = c.upload("3", map[string][]byte{"a.png": pngBytes})
	mustContain(t, body, "Question 1", `action="/tutor/quiz/answer"`)
}

func TestMessageID(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{quiz.ErrMalformedQuiz, "InvalidQuizFormat"},
		{quiz.ErrInvalidQuiz, "InvalidQuizFormat"},
		{tutor.ErrNoImages, "ErrNoImages"},
		{tutor.ErrUnsupportedImage, "ErrUnsupportedImage"},
		{&http.MaxBytesError{Limit: 1}, "ErrUploadTooLarge"},
		{quiz.ErrFeedbackPending, "ErrAnswerFirst"},
		{quiz.ErrComplete, "ErrStaleQuiz"},
		{errors.New("connection reset"), "ErrModel"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := messageID(tt.err); got != tt.want {
				t.Errorf("messageID(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
