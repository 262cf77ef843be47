// Package session keeps one quiz state machine per browser. The browser holds
// only a signed cookie with an opaque ID; the quiz state stays in process memory
// and is gone when the process exits.
package session

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/pavelanni/emailtutor/internal/model"
	"github.com/pavelanni/emailtutor/internal/quiz"
)

const (
	cookieName = "emailtutor"
	idKey      = "id"
)

type entry struct {
	mu       sync.Mutex
	quiz     *quiz.Session
	context  string
	lastSeen time.Time
}

// View is what the page renders for one session.
type View struct {
	quiz.Snapshot
	// Context is the retrieved context the current quiz was grounded in.
	Context string
}

// Manager maps session IDs to quiz sessions. Actions on one session are
// serialised; different sessions never block each other beyond the map lookup.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	cookies *sessions.CookieStore
}

// Options configure the session cookie.
type Options struct {
	// Secret signs the cookie. A random key is generated when empty, which
	// invalidates browser sessions on restart.
	Secret []byte
	Path   string
	Secure bool
	MaxAge time.Duration
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	secret := opts.Secret
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
		slog.Info("no session secret configured, using a random key")
	}
	path := opts.Path
	if path == "" {
		path = "/"
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	cs := sessions.NewCookieStore(secret)
	cs.Options = &sessions.Options{
		Path:     path,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{
		entries: make(map[string]*entry),
		cookies: cs,
	}
}

// ID returns the caller's session ID, issuing a new one in a cookie on first
// contact or when the cookie cannot be verified.
func (m *Manager) ID(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := m.cookies.Get(r, cookieName)
	if err != nil {
		slog.Debug("discarding unreadable session cookie", "error", err)
	}
	if id, ok := sess.Values[idKey].(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	sess.Values[idKey] = id
	if err := sess.Save(r, w); err != nil {
		return "", fmt.Errorf("save session cookie: %w", err)
	}
	slog.Debug("new session", "id", id)
	return id, nil
}

// Do runs fn with exclusive access to the quiz session for id, creating an
// empty session if none exists.
func (m *Manager) Do(id string, fn func(*quiz.Session) error) error {
	e := m.get(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = time.Now()
	return fn(e.quiz)
}

// Start replaces the session's quiz with a freshly generated one.
func (m *Manager) Start(id string, q model.Quiz, emailText, retrieved string) error {
	e := m.get(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = time.Now()
	if err := e.quiz.Start(q, emailText); err != nil {
		return err
	}
	e.context = retrieved
	return nil
}

// View returns the quiz state and the context it was generated with.
func (m *Manager) View(id string) View {
	e := m.get(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = time.Now()
	return View{Snapshot: e.quiz.Snapshot(), Context: e.context}
}

// AddFlash queues a one-shot message ID for the next page render.
func (m *Manager) AddFlash(w http.ResponseWriter, r *http.Request, msgID string) error {
	sess, _ := m.cookies.Get(r, cookieName)
	sess.AddFlash(msgID)
	return sess.Save(r, w)
}

// Flashes returns and clears the queued message IDs.
func (m *Manager) Flashes(w http.ResponseWriter, r *http.Request) []string {
	sess, _ := m.cookies.Get(r, cookieName)
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := sess.Save(r, w); err != nil {
		slog.Warn("failed to clear flashes", "error", err)
	}
	var ids []string
	for _, f := range raw {
		if id, ok := f.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Prune discards sessions idle for longer than maxIdle and returns how many
// were removed.
func (m *Manager) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		e.mu.Lock()
		idle := e.lastSeen.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

func (m *Manager) get(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		e = &entry{quiz: quiz.NewSession(), lastSeen: time.Now()}
		m.entries[id] = e
	}
	return e
}
