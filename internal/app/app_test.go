package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"scribe/api/internal/ai"
	"scribe/api/internal/authpw"
	"scribe/api/internal/backup"
	"scribe/api/internal/config"
	"scribe/api/internal/filetree"
	"scribe/api/internal/store"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]store.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]store.User{}}
}

func (f *fakeUserStore) GetUser(_ context.Context, username string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[username]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserStore) CreateUser(_ context.Context, username, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return store.ErrUserExists
	}
	f.users[username] = store.User{Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	return nil
}

type memoryTreeStore struct {
	mu    sync.Mutex
	trees map[string][]byte
}

func newMemoryTreeStore() *memoryTreeStore {
	return &memoryTreeStore{trees: map[string][]byte{}}
}

func (m *memoryTreeStore) GetFileTree(_ context.Context, username string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.trees[username]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return data, nil
}

func (m *memoryTreeStore) PutFileTree(_ context.Context, username string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trees[username] = data
	return nil
}

type memorySessions struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newMemorySessions() *memorySessions {
	return &memorySessions{tokens: map[string]string{}}
}

func (m *memorySessions) SaveRefreshSession(_ context.Context, tokenHash, username string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenHash] = username
	return nil
}

func (m *memorySessions) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	username, ok := m.tokens[tokenHash]
	if !ok {
		return "", errors.New("token not found")
	}
	return username, nil
}

func (m *memorySessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, tokenHash)
	return nil
}

// echoBackend completes with "ECHO:"+prompt and streams its prompt verbatim.
type echoBackend struct{}

func (echoBackend) Complete(_ context.Context, _ string, prompt string) (string, error) {
	return "ECHO:" + prompt, nil
}

func (echoBackend) Stream(_ context.Context, _ string, prompt string, emit func(string) error) error {
	return emit(prompt)
}

type memoryRemote struct {
	mu   sync.Mutex
	data []byte
}

func (m *memoryRemote) Name() string { return "memory" }

func (m *memoryRemote) Upload(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memoryRemote) Download(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, backup.ErrNoBackup
	}
	return m.data, nil
}

type testEnv struct {
	handler http.Handler
	service *Service
	remote  *memoryRemote
	trees   *memoryTreeStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{
		TokenSecret: "test-secret",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  24 * time.Hour,
	}
	trees := newMemoryTreeStore()
	remote := &memoryRemote{}
	svc := New(cfg, Deps{
		Users:    authpw.NewService(newFakeUserStore()),
		Trees:    filetree.New(trees),
		Sessions: newMemorySessions(),
		Pipeline: ai.NewPipeline(echoBackend{}, time.Second),
		Remote:   remote,
	})
	server := NewHTTPServer(svc, "*")
	return &testEnv{handler: server.Handler(), service: svc, remote: remote, trees: trees}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope from %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func newAuthedRequest(method, path, token string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func decodeData(t *testing.T, env envelope, target any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, target); err != nil {
		t.Fatalf("decode data %q: %v", string(env.Data), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !body.Success {
		t.Fatal("expected success envelope")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/api/nope", "avery", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if body.Success || body.Error == "" {
		t.Fatalf("expected error envelope, got %+v", body)
	}
}

func TestProtectedRouteRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/api/file-tree", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if body.Success {
		t.Fatal("expected failure envelope")
	}
}
