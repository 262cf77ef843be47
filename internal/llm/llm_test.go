package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/emailtutor/internal/model"
)

// fakeAPI is a minimal OpenAI-compatible server that records the last request body.
type fakeAPI struct {
	lastPath string
	lastBody map[string]any
	reply    string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastPath = r.URL.Path
	body, _ := io.ReadAll(r.Body)
	f.lastBody = nil
	if len(body) > 0 {
		_ = json.Unmarshal(body, &f.lastBody)
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": f.reply},
				"finish_reason": "stop",
			}},
		})
	case strings.HasSuffix(r.URL.Path, "/embeddings"):
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-embed",
			"data": []map[string]any{{
				"object":    "embedding",
				"index":     0,
				"embedding": []float32{0.25, 0.5, 0.75},
			}},
		})
	case strings.HasSuffix(r.URL.Path, "/models"):
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": "test-model", "object": "model"}},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, reply string) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{reply: reply}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/v1", "test-key", "test-model", "test-embed"), api
}

func TestExtractText(t *testing.T) {
	c, api := newTestClient(t, "  Dear donor, thank you.  \n")

	got, err := c.ExtractText(context.Background(), model.Image{
		Name:     "email.jpg",
		MIMEType: "image/jpeg",
		Data:     []byte{0xff, 0xd8, 0xff},
	})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "Dear donor, thank you." {
		t.Errorf("ExtractText() = %q", got)
	}

	msgs, _ := api.lastBody["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	parts, _ := msgs[0].(map[string]any)["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("expected text and image parts, got %d", len(parts))
	}
	text, _ := parts[0].(map[string]any)["text"].(string)
	if !strings.Contains(text, "Extract ONLY the donor email text") {
		t.Errorf("unexpected instruction %q", text)
	}
	imageURL, _ := parts[1].(map[string]any)["image_url"].(map[string]any)
	url, _ := imageURL["url"].(string)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("image should be sent as a data URL, got %q", url)
	}
}

func TestComplete(t *testing.T) {
	c, api := newTestClient(t, "[]")

	got, err := c.Complete(context.Background(), "Generate 3 deep evaluation MCQs.")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "[]" {
		t.Errorf("Complete() = %q, want []", got)
	}
	if api.lastBody["model"] != "test-model" {
		t.Errorf("model = %v, want test-model", api.lastBody["model"])
	}
}

func TestEmbed(t *testing.T) {
	c, api := newTestClient(t, "")

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.5 {
		t.Errorf("Embed() = %v", vec)
	}
	if api.lastBody["model"] != "test-embed" {
		t.Errorf("embedding model = %v, want test-embed", api.lastBody["model"])
	}
}

func TestPing(t *testing.T) {
	c, _ := newTestClient(t, "")
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOpen(t *testing.T) {
	if _, err := Open(context.Background(), Config{Provider: "openai"}); err == nil {
		t.Error("Open without API key should fail")
	}
	if _, err := Open(context.Background(), Config{Provider: "bogus", APIKey: "k"}); err == nil {
		t.Error("Open with unknown provider should fail")
	}
	b, err := Open(context.Background(), Config{Provider: "openai", APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := b.(*Client); !ok {
		t.Errorf("openai provider returned %T", b)
	}
}

func TestImageFormat(t *testing.T) {
	tests := []struct{ in, want string }{
		{"image/png", "png"},
		{"image/jpeg", "jpeg"},
		{"", "png"},
		{"application/octet-stream", "png"},
	}
	for _, tt := range tests {
		if got := imageFormat(tt.in); got != tt.want {
			t.Errorf("imageFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDataURL(t *testing.T) {
	got := dataURL(model.Image{Data: []byte("hi")})
	if got != "data:image/png;base64,aGk=" {
		t.Errorf("dataURL() = %q", got)
	}
}
