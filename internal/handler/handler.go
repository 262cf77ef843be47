package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/emailtutor/internal/handler/views"
	"github.com/pavelanni/emailtutor/internal/model"
	"github.com/pavelanni/emailtutor/internal/quiz"
	"github.com/pavelanni/emailtutor/internal/session"
	"github.com/pavelanni/emailtutor/internal/tutor"
)

const defaultMaxUploadBytes = 20 << 20

var (
	errNoAnswer     = errors.New("no answer selected")
	errStale        = errors.New("form refers to another question")
	errUploadFailed = errors.New("read upload")
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	tutor    *tutor.Service
	sessions *session.Manager
	config   model.TutorConfig
}

// New creates a new Handler.
func New(t *tutor.Service, s *session.Manager, cfg model.TutorConfig) (*Handler, error) {
	if t == nil || s == nil {
		return nil, errors.New("tutor service and session manager are required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.DefaultQuestions < model.MinQuestions || cfg.DefaultQuestions > model.MaxQuestions {
		cfg.DefaultQuestions = model.DefaultQuestions
	}
	return &Handler{tutor: t, sessions: s, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/", h.handleIndex)
		r.Post("/quiz/generate", h.handleGenerate)
		r.Post("/quiz/answer", h.handleAnswer)
		r.Post("/quiz/next", h.handleNext)
	})
}

// BasePathMiddleware makes the configured base path available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessions.ID(w, r)
	if err != nil {
		slog.Error("session cookie", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data := views.IndexData{
		View:         h.sessions.View(id),
		Errors:       h.sessions.Flashes(w, r),
		MinQuestions: model.MinQuestions,
		MaxQuestions: model.MaxQuestions,
		NumQuestions: h.config.DefaultQuestions,
		Retrieval:    h.tutor.RetrievalEnabled(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.IndexPage(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessions.ID(w, r)
	if err != nil {
		slog.Error("session cookie", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	n := h.config.DefaultQuestions
	if v := r.FormValue("num_questions"); v != "" {
		n, err = strconv.Atoi(v)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: %q", tutor.ErrQuestionCount, v))
			return
		}
	}

	images, err := readImages(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// The model call runs outside the session lock.
	res, err := h.tutor.Generate(r.Context(), images, n)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.sessions.Start(id, res.Quiz, res.EmailText, res.Context); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessions.ID(w, r)
	if err != nil {
		slog.Error("session cookie", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	answer := r.FormValue("answer")
	err = h.sessions.Do(id, func(s *quiz.Session) error {
		if err := checkIndex(s, r.FormValue("index")); err != nil {
			return err
		}
		if answer == "" {
			return errNoAnswer
		}
		// Options are posted by position; their text may not survive form encoding.
		opt, err := strconv.Atoi(answer)
		if err != nil {
			return fmt.Errorf("%w: %q", quiz.ErrUnknownOption, answer)
		}
		fb, err := s.SubmitIndex(opt)
		if err == nil {
			slog.Debug("answer graded", "session", id, "feedback", fb, "score", s.Score())
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessions.ID(w, r)
	if err != nil {
		slog.Error("session cookie", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	err = h.sessions.Do(id, func(s *quiz.Session) error {
		if err := checkIndex(s, r.FormValue("index")); err != nil {
			return err
		}
		return s.Next()
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

// checkIndex rejects forms rendered for a question other than the current one,
// such as a second tab or a replayed POST.
func checkIndex(s *quiz.Session, formIndex string) error {
	if formIndex == "" {
		return nil
	}
	want, err := strconv.Atoi(formIndex)
	if err != nil {
		return errStale
	}
	_, cur, err := s.Current()
	if err != nil {
		return err
	}
	if cur != want {
		return errStale
	}
	return nil
}

// readImages collects the uploaded screenshots in form order.
func readImages(r *http.Request) ([]model.Image, error) {
	if r.MultipartForm == nil {
		return nil, tutor.ErrNoImages
	}
	var images []model.Image
	for _, fh := range r.MultipartForm.File["images"] {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", errUploadFailed, fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", errUploadFailed, fh.Filename, err)
		}
		if len(data) == 0 {
			continue
		}
		img, err := tutor.DetectImage(fh.Filename, data)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, tutor.ErrNoImages
	}
	return images, nil
}

// fail records a user-facing message for err and sends the browser back to the page.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	msgID := messageID(err)
	if msgID == "ErrModel" {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		slog.Warn("request rejected", "path", r.URL.Path, "error", err)
	}
	if ferr := h.sessions.AddFlash(w, r, msgID); ferr != nil {
		slog.Error("save flash", "error", ferr)
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

// messageID maps an error to the translation shown to the user.
func messageID(err error) string {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, quiz.ErrMalformedQuiz), errors.Is(err, quiz.ErrInvalidQuiz), errors.Is(err, quiz.ErrEmptyQuiz):
		return "InvalidQuizFormat"
	case errors.Is(err, tutor.ErrNoImages):
		return "ErrNoImages"
	case errors.Is(err, tutor.ErrQuestionCount):
		return "ErrQuestionCount"
	case errors.Is(err, tutor.ErrUnsupportedImage):
		return "ErrUnsupportedImage"
	case errors.As(err, &tooLarge):
		return "ErrUploadTooLarge"
	case errors.Is(err, errNoAnswer):
		return "ErrSelectOption"
	case errors.Is(err, quiz.ErrFeedbackPending):
		return "ErrAnswerFirst"
	case errors.Is(err, errStale), errors.Is(err, quiz.ErrUnknownOption),
		errors.Is(err, quiz.ErrNoQuiz), errors.Is(err, quiz.ErrComplete):
		return "ErrStaleQuiz"
	default:
		return "ErrModel"
	}
}
