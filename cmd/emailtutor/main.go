package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/emailtutor/internal/export"
	"github.com/pavelanni/emailtutor/internal/handler"
	appI18n "github.com/pavelanni/emailtutor/internal/i18n"
	"github.com/pavelanni/emailtutor/internal/llm"
	"github.com/pavelanni/emailtutor/internal/llm/prompts"
	"github.com/pavelanni/emailtutor/internal/model"
	"github.com/pavelanni/emailtutor/internal/retrieval"
	"github.com/pavelanni/emailtutor/internal/session"
	"github.com/pavelanni/emailtutor/internal/store"
	"github.com/pavelanni/emailtutor/internal/tutor"
)

const (
	sessionTTL    = 24 * time.Hour
	pruneInterval = 15 * time.Minute
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "emailtutor",
		Short: "Quiz tutor for evaluating nonprofit donor emails",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `emailtutor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.Int("default-questions", model.DefaultQuestions, "Initial slider position (3-10)")
	f.Int("max-upload-mb", 20, "Maximum total upload size per request in MiB")
	f.StringP("lang", "l", "", "UI language (en, ru); empty follows the browser")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /tutor)")
	f.Bool("secure-cookies", false, "Set Secure flag on cookies (enable behind HTTPS)")
	f.String("session-secret", "", "Key for signing session cookies (random per run if empty)")
	addModelFlags(f)
	addRetrievalFlags(f)
	addLogFlags(f)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate IMAGE...",
		Short: "Generate a quiz from email screenshots and write it as JSON or XLSX",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.IntP("num-questions", "n", model.DefaultQuestions, "Number of questions (3-10)")
	f.String("format", export.FormatJSON, "Output format (json, xlsx)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addModelFlags(f)
	addRetrievalFlags(f)
	addLogFlags(f)
	return cmd
}

func addModelFlags(f *pflag.FlagSet) {
	f.String("llm-provider", llm.ProviderOpenAI, "Model client (openai, gemini)")
	f.String("llm-url", "https://generativelanguage.googleapis.com/v1beta/openai/", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the model service (or set GEMINI_API_KEY)")
	f.String("llm-model", "gemini-2.5-flash", "Multimodal model name")
	f.String("embedding-model", "text-embedding-004", "Embedding model name (used with --retrieval)")
	f.String("prompts-dir", "", "Directory with extract.txt and quiz.txt overriding the built-in prompts")
}

func addRetrievalFlags(f *pflag.FlagSet) {
	f.Bool("retrieval", false, "Store extracted emails and use similar ones as prompt context")
	f.String("db", ":memory:", "SQLite path for the email collection")
	f.Int("top-k", retrieval.DefaultTopK, "Number of stored emails retrieved as context")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags, environment and config file to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EMAILTUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm-key", "EMAILTUTOR_LLM_KEY", "GEMINI_API_KEY")

	v.SetConfigName("emailtutor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/emailtutor")
	v.AddConfigPath("/etc/emailtutor")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// pipeline holds what both commands need to generate a quiz.
type pipeline struct {
	backend llm.Backend
	db      *store.Store
	tutor   *tutor.Service
}

func (p *pipeline) Close() {
	if p.db != nil {
		p.db.Close()
	}
	p.backend.Close()
}

func openPipeline(ctx context.Context, v *viper.Viper) (*pipeline, error) {
	if dir := v.GetString("prompts-dir"); dir != "" {
		if err := prompts.Load(os.DirFS(dir)); err != nil {
			return nil, fmt.Errorf("load prompts from %s: %w", dir, err)
		}
		slog.Info("using custom prompts", "dir", dir)
	}

	backend, err := llm.Open(ctx, llm.Config{
		Provider:       v.GetString("llm-provider"),
		BaseURL:        v.GetString("llm-url"),
		APIKey:         v.GetString("llm-key"),
		Model:          v.GetString("llm-model"),
		EmbeddingModel: v.GetString("embedding-model"),
	})
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	if err := backend.Ping(ctx); err != nil {
		backend.Close()
		return nil, fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK",
		"provider", v.GetString("llm-provider"),
		"url", v.GetString("llm-url"),
		"model", v.GetString("llm-model"))

	p := &pipeline{backend: backend}
	if !v.GetBool("retrieval") {
		p.tutor = tutor.New(backend, nil)
		return p, nil
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	p.db = db
	if err := checkEmbeddingModel(ctx, db, v.GetString("embedding-model")); err != nil {
		p.Close()
		return nil, err
	}
	count, _ := db.Count(ctx)
	slog.Info("retrieval enabled", "db", v.GetString("db"), "stored_emails", count, "top_k", v.GetInt("top-k"))

	p.tutor = tutor.New(backend, retrieval.New(backend, db, v.GetInt("top-k")))
	return p, nil
}

// checkEmbeddingModel records the embedding model of a new collection and warns
// when an existing one was built with a different model.
func checkEmbeddingModel(ctx context.Context, db *store.Store, name string) error {
	const key = "embedding_model"
	stored, err := db.GetMetadata(ctx, key)
	if err != nil {
		return fmt.Errorf("read collection metadata: %w", err)
	}
	switch stored {
	case "":
		return db.SetMetadata(ctx, key, name)
	case name:
		return nil
	default:
		slog.Warn("collection was built with a different embedding model", "stored", stored, "configured", name)
		return nil
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lang := v.GetString("lang")
	fallback := lang
	if fallback == "" {
		fallback = "en"
	}
	if err := appI18n.Init(fallback); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	p, err := openPipeline(ctx, v)
	if err != nil {
		return err
	}
	defer p.Close()

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.TutorConfig{
		DefaultQuestions: v.GetInt("default-questions"),
		MaxUploadBytes:   int64(v.GetInt("max-upload-mb")) << 20,
		BasePath:         basePath,
		SecureCookies:    v.GetBool("secure-cookies"),
		SessionSecret:    []byte(v.GetString("session-secret")),
	}

	cookiePath := "/"
	if basePath != "" {
		cookiePath = basePath + "/"
	}
	sessions := session.NewManager(session.Options{
		Secret: cfg.SessionSecret,
		Path:   cookiePath,
		Secure: cfg.SecureCookies,
		MaxAge: sessionTTL,
	})
	go pruneSessions(ctx, sessions)

	h, err := handler.New(p.tutor, sessions, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"lang", lang,
		"default_questions", cfg.DefaultQuestions,
		"retrieval", p.tutor.RetrievalEnabled(),
		"languages", appI18n.Languages(),
		"base_path", basePath,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func pruneSessions(ctx context.Context, m *session.Manager) {
	t := time.NewTicker(pruneInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Prune(sessionTTL); n > 0 {
				slog.Info("pruned idle sessions", "count", n, "remaining", m.Len())
			}
		}
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	images := make([]model.Image, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		img, err := tutor.DetectImage(filepath.Base(path), data)
		if err != nil {
			return err
		}
		images = append(images, img)
	}

	p, err := openPipeline(ctx, v)
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.tutor.Generate(ctx, images, v.GetInt("num-questions"))
	if err != nil {
		return err
	}

	out := model.QuizExport{
		GeneratedAt:      time.Now().UTC(),
		Model:            v.GetString("llm-model"),
		Sources:          args,
		EmailText:        res.EmailText,
		RetrievedContext: res.Context,
		NumQuestions:     res.Quiz.Len(),
		Questions:        res.Quiz,
	}

	outPath := v.GetString("output")
	if outPath == "" || outPath == "-" {
		if err := export.Write(os.Stdout, v.GetString("format"), out); err != nil {
			return err
		}
	} else if err := writeFileAtomic(outPath, func(w io.Writer) error {
		return export.Write(w, v.GetString("format"), out)
	}); err != nil {
		return err
	}
	slog.Info("quiz written", "output", outPath, "format", v.GetString("format"), "questions", out.NumQuestions)
	return nil
}

// writeFileAtomic writes to a temporary file next to path and renames it into
// place, so a failed write leaves no partial output behind.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	tmp := f.Name()
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close output file: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chmod output file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename output file: %w", err)
	}
	return nil
}
