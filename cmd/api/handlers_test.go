package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/copassenger-api/internal/auth"
	"github.com/PaulBabatuyi/copassenger-api/internal/data"
	"github.com/PaulBabatuyi/copassenger-api/internal/logger"
	"github.com/PaulBabatuyi/copassenger-api/internal/metrics"
	"github.com/PaulBabatuyi/copassenger-api/internal/middleware"
	"github.com/PaulBabatuyi/copassenger-api/internal/pipeline"
)

// memUsers is an in-memory auth.UserRepository.
type memUsers struct {
	mu      sync.Mutex
	byID    map[bson.ObjectID]*data.User
	byEmail map[string]bson.ObjectID
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[bson.ObjectID]*data.User{}, byEmail: map[string]bson.ObjectID{}}
}

func (m *memUsers) CreateUser(_ context.Context, fullName, email, hash string) (*data.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[email]; ok {
		return nil, data.ErrDuplicateEmail
	}
	u := &data.User{ID: bson.NewObjectID(), FullName: fullName, Email: email, Password: hash, Role: data.RoleUser, ProfileImageURL: data.DefaultProfileImageURL}
	m.byID[u.ID] = u
	m.byEmail[email] = u.ID
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*data.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, data.ErrNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *memUsers) GetUserByID(_ context.Context, id bson.ObjectID) (*data.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id bson.ObjectID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return data.ErrNotFound
	}
	u.Password = hash
	return nil
}

// memChats is an in-memory chatStore with the same ownership rules as
// data.ChatsStore.
type memChats struct {
	mu    sync.Mutex
	chats map[bson.ObjectID]*data.Chat
}

func newMemChats() *memChats { return &memChats{chats: map[bson.ObjectID]*data.Chat{}} }

func (m *memChats) ListSessions(_ context.Context, userID bson.ObjectID) ([]data.ChatSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []data.ChatSummary{}
	for _, c := range m.chats {
		if c.User == userID {
			out = append(out, data.ChatSummary{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memChats) GetSession(_ context.Context, userID bson.ObjectID, sessionID string) (*data.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := bson.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, data.ErrNotFound
	}
	c, ok := m.chats[id]
	if !ok || c.User != userID {
		return nil, data.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memChats) UpsertSession(_ context.Context, userID bson.ObjectID, sessionID string, msgs []data.ChatMessage) (*data.Chat, error) {
	if err := data.ValidateMessages(msgs); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if sessionID == "" {
		c := &data.Chat{ID: bson.NewObjectID(), User: userID, Title: data.DeriveTitle(msgs), Messages: msgs, CreatedAt: now, UpdatedAt: now}
		m.chats[c.ID] = c
		cp := *c
		return &cp, nil
	}
	id, err := bson.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, data.ErrNotFound
	}
	c, ok := m.chats[id]
	if !ok || c.User != userID {
		return nil, data.ErrNotFound
	}
	c.Messages = msgs
	c.UpdatedAt = now
	cp := *c
	return &cp, nil
}

type fakeResponder struct {
	replies []pipeline.Reply
	err     error
	got     pipeline.Request
}

func (f *fakeResponder) Respond(_ context.Context, req pipeline.Request) ([]pipeline.Reply, error) {
	f.got = req
	return f.replies, f.err
}

type fakeVoices struct {
	raw json.RawMessage
	err error
}

func (f fakeVoices) Voices(context.Context) (json.RawMessage, error) { return f.raw, f.err }

type testEnv struct {
	app   *fiber.App
	srv   *Server
	chat  *fakeResponder
	chats *memChats
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	svc := auth.NewService(newMemUsers(), auth.NewJWTManager("test-secret", time.Hour), nil)
	chat := &fakeResponder{replies: []pipeline.Reply{{Text: "Hi", FacialExpression: "smile", Animation: "Talking_0"}}}
	chats := newMemChats()
	limiter := middleware.NewLimiterStore(600, 100, time.Minute)
	t.Cleanup(limiter.Stop)

	srv := newServer(Options{AppName: "test"}, svc, chats, chat, limiter, metrics.New(), logger.Nop())
	return &testEnv{app: srv.routes(), srv: srv, chat: chat, chats: chats}
}

// do sends a JSON request and decodes a JSON response body into a map.
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	return resp.StatusCode, m, raw
}

func (e *testEnv) signupAndLogin(t *testing.T, name, email, password string) string {
	t.Helper()
	status, _, _ := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"fullName": name, "email": email, "password": password})
	require.Equal(t, http.StatusCreated, status)
	status, body, _ := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestAuth_SignupLoginScenario(t *testing.T) {
	e := newTestEnv(t)

	status, body, _ := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"fullName": "Ann", "email": "ann@x.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "User created successfully. Please log in.", body["message"])

	status, body, _ = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Incorrect email or password", body["error"])

	status, body, _ = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ANN@x.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	user, _ := body["user"].(map[string]interface{})
	assert.Equal(t, "ann@x.com", user["email"])
	assert.Equal(t, "USER", user["role"])
	assert.NotContains(t, user, "password")

	status, body, _ = e.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Ann", body["fullName"])
}

func TestAuth_SignupErrors(t *testing.T) {
	e := newTestEnv(t)
	e.signupAndLogin(t, "Ann", "ann@x.com", "secret1")

	tests := []struct {
		name string
		body map[string]string
		want string
	}{
		{"missing field", map[string]string{"email": "bob@x.com", "password": "secret1"}, "All fields are required."},
		{"duplicate", map[string]string{"fullName": "Ann", "email": "Ann@X.com", "password": "secret1"}, "Email already exists."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := e.do(t, http.MethodPost, "/api/auth/signup", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.want, body["error"])
		})
	}

	status, _, _ := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"fullName": "Bob", "email": "bob@x.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAuth_LoginUnknownUser(t *testing.T) {
	e := newTestEnv(t)
	status, body, _ := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ghost@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "User not found", body["error"])
}

func TestAuth_TokenRequired(t *testing.T) {
	e := newTestEnv(t)

	status, body, _ := e.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, msgNoToken, body["error"])

	status, body, _ = e.do(t, http.MethodGet, "/api/chat-history", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, msgInvalidToken, body["error"])

	foreign, _, err := auth.NewJWTManager("other-secret", time.Hour).GenerateToken(bson.NewObjectID(), "x@x.com", "X", "USER")
	require.NoError(t, err)
	status, _, _ = e.do(t, http.MethodPost, "/api/chat", foreign, map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuth_MeForDeletedUser(t *testing.T) {
	e := newTestEnv(t)
	// validly signed, but for an account that does not exist
	token, _, err := auth.NewJWTManager("test-secret", time.Hour).GenerateToken(bson.NewObjectID(), "x@x.com", "X", "USER")
	require.NoError(t, err)

	status, body, _ := e.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found.", body["error"])
}

func TestAuth_ChangePassword(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "Ann", "ann@x.com", "secret1")

	status, _, _ := e.do(t, http.MethodPost, "/api/auth/password", token, map[string]string{"currentPassword": "nope", "newPassword": "secret2"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = e.do(t, http.MethodPost, "/api/auth/password", token, map[string]string{"currentPassword": "secret1", "newPassword": "secret2"})
	require.Equal(t, http.StatusNoContent, status)

	status, _, _ = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@x.com", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _, _ = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@x.com", "password": "secret2"})
	assert.Equal(t, http.StatusOK, status)
}

func TestHistory_CreateListGetUpdate(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "Ann", "ann@x.com", "secret1")

	msgs := []map[string]string{
		{"role": "user", "content": "What is the weather like today in Lagos?"},
		{"role": "bot", "content": "Sunny."},
	}
	status, body, _ := e.do(t, http.MethodPost, "/api/chat-history", token, map[string]interface{}{"messages": msgs, "chatId": nil})
	require.Equal(t, http.StatusCreated, status)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "What is the weather like today...", body["title"])

	status, _, raw := e.do(t, http.MethodGet, "/api/chat-history", token, nil)
	require.Equal(t, http.StatusOK, status)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0]["id"])

	msgs = append(msgs, map[string]string{"role": "user", "content": "Thanks"})
	status, body, _ = e.do(t, http.MethodPost, "/api/chat-history", token, map[string]interface{}{"messages": msgs, "chatId": id})
	require.Equal(t, http.StatusCreated, status)
	assert.Len(t, body["messages"], 3)

	status, body, _ = e.do(t, http.MethodGet, "/api/chat-history/"+id, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["messages"], 3)
}

func TestHistory_Validation(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "Ann", "ann@x.com", "secret1")

	status, body, _ := e.do(t, http.MethodPost, "/api/chat-history", token, map[string]interface{}{"messages": []string{}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Messages array is required", body["error"])

	status, _, _ = e.do(t, http.MethodPost, "/api/chat-history", token, map[string]interface{}{
		"messages": []map[string]string{{"role": "narrator", "content": "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHistory_Ownership(t *testing.T) {
	e := newTestEnv(t)
	ann := e.signupAndLogin(t, "Ann", "ann@x.com", "secret1")
	bob := e.signupAndLogin(t, "Bob", "bob@x.com", "secret1")

	status, body, _ := e.do(t, http.MethodPost, "/api/chat-history", ann, map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": "private"}},
	})
	require.Equal(t, http.StatusCreated, status)
	id, _ := body["id"].(string)

	status, body, _ = e.do(t, http.MethodGet, "/api/chat-history/"+id, bob, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Chat not found", body["error"])

	status, body, _ = e.do(t, http.MethodPost, "/api/chat-history", bob, map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": "hijack"}},
		"chatId":   id,
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Chat not found or user unauthorized", body["error"])

	status, _, raw := e.do(t, http.MethodGet, "/api/chat-history", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(raw))

	status, _, _ = e.do(t, http.MethodGet, "/api/chat-history/not-an-id", ann, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestChat(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "Ann", "ann@x.com", "secret1")

	status, body, _ := e.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "hello", "videoUrl": "http://cam/video"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello", e.chat.got.Message)
	assert.Equal(t, "http://cam/video", e.chat.got.VideoURL)

	msgs, _ := body["messages"].([]interface{})
	require.Len(t, msgs, 1)
	first, _ := msgs[0].(map[string]interface{})
	assert.Equal(t, "Hi", first["text"])
	assert.NotContains(t, first, "audio")

	// no body is an empty prompt
	status, _, _ = e.do(t, http.MethodPost, "/api/chat", token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "", e.chat.got.Message)
}

func TestChat_Error(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "Ann", "ann@x.com", "secret1")
	e.chat.err = context.Canceled

	status, body, _ := e.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "hello"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to process chat request", body["error"])
	assert.NotEmpty(t, body["details"])
}

func TestVoices(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "Ann", "ann@x.com", "secret1")

	status, _, _ := e.do(t, http.MethodGet, "/api/voices", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	e.srv.withVoices(fakeVoices{raw: json.RawMessage(`{"voices":[{"voice_id":"v1"}]}`)})
	status, _, raw := e.do(t, http.MethodGet, "/api/voices", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"voices":[{"voice_id":"v1"}]}`, string(raw))

	e.srv.withVoices(fakeVoices{err: errors.New("upstream down")})
	status, body, _ := e.do(t, http.MethodGet, "/api/voices", token, nil)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "Failed to fetch voices", body["error"])
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)

	status, body, _ := e.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	e.srv.withDB(fakePinger{err: errors.New("no primary")})
	status, _, _ = e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _, raw := e.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestSignupRateLimited(t *testing.T) {
	svc := auth.NewService(newMemUsers(), auth.NewJWTManager("test-secret", time.Hour), nil)
	limiter := middleware.NewLimiterStore(1, 1, time.Minute)
	t.Cleanup(limiter.Stop)
	srv := newServer(Options{}, svc, newMemChats(), &fakeResponder{}, limiter, nil, logger.Nop())
	e := &testEnv{app: srv.routes(), srv: srv}

	creds := map[string]string{"email": "ann@x.com", "password": "secret1"}
	status, _, _ := e.do(t, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _, _ = e.do(t, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestRequestValidation(t *testing.T) {
	e := newTestEnv(t)
	token := e.signupAndLogin(t, "Ann", "ann@x.com", "secret1")

	tests := []struct {
		name, path, token string
		body              interface{}
		wantError         string
	}{
		{"signup bad email", "/api/auth/signup", "", map[string]string{"fullName": "Bob", "email": "bob@", "password": "secret1"}, "email must be a valid email address"},
		{"signup short password", "/api/auth/signup", "", map[string]string{"fullName": "Bob", "email": "bob@x.com", "password": "123"}, "password must be at least 6 characters long"},
		{"login missing password", "/api/auth/login", "", map[string]string{"email": "ann@x.com"}, "All fields are required."},
		{"new password too long", "/api/auth/password", token, map[string]string{"currentPassword": "secret1", "newPassword": string(bytes.Repeat([]byte("a"), 73))}, "newPassword must be at most 72 characters long"},
		{"history message without content", "/api/chat-history", token, map[string]interface{}{"messages": []map[string]string{{"role": "user"}}}, "content is required"},
		{"history missing messages", "/api/chat-history", token, map[string]interface{}{"chatId": nil}, "Messages array is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := e.do(t, http.MethodPost, tt.path, tt.token, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.wantError, body["error"])
			assert.NotEmpty(t, body["details"])
		})
	}
}

func TestRequestValidation_MalformedBody(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, msgBadBody, body.Error)
}
