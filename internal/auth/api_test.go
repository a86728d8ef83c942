package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memUserStore is an in-memory UserStore for handler tests.
type memUserStore struct {
	mu    sync.Mutex
	users map[string]User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]User)}
}

func (s *memUserStore) Create(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return ErrUsernameTaken
	}
	s.users[u.Username] = u
	return nil
}

func (s *memUserStore) ByUsername(_ context.Context, username string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newAuthFixture(t *testing.T) (*httptest.Server, *memUserStore) {
	t.Helper()

	users := newMemUserStore()
	tokens := newTestTokenManager(t, time.Hour)
	h := NewHandler(testLogger(), users, tokens)

	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, users
}

func postJSON(t *testing.T, url string, body any) (*http.Response, apiEnvelope) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, env
}

func TestRegisterLoginUserinfo(t *testing.T) {
	t.Parallel()

	srv, _ := newAuthFixture(t)

	resp, env := postJSON(t, srv.URL+"/api/auth/register", credentialsRequest{
		Username: "alice",
		Password: "open sesame now",
	})
	if resp.StatusCode != http.StatusCreated || !env.Status {
		t.Fatalf("register: status=%d env=%+v", resp.StatusCode, env)
	}

	resp, env = postJSON(t, srv.URL+"/api/auth/login", credentialsRequest{
		Username: "alice",
		Password: "open sesame now",
	})
	if resp.StatusCode != http.StatusOK || !env.Status {
		t.Fatalf("login: status=%d env=%+v", resp.StatusCode, env)
	}

	var login loginPayload
	if err := json.Unmarshal(env.Data, &login); err != nil {
		t.Fatalf("decode login payload: %v", err)
	}
	if login.AccessToken == "" {
		t.Fatalf("login returned empty access token")
	}
	if login.Userinfo.Username != "alice" || login.Userinfo.Role != "user" {
		t.Fatalf("unexpected userinfo: %+v", login.Userinfo)
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/auth/userinfo", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	uresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET userinfo: %v", err)
	}
	defer uresp.Body.Close()
	if uresp.StatusCode != http.StatusOK {
		t.Fatalf("userinfo: status=%d", uresp.StatusCode)
	}

	var uenv apiEnvelope
	if err := json.NewDecoder(uresp.Body).Decode(&uenv); err != nil {
		t.Fatalf("decode userinfo: %v", err)
	}
	var info userinfoPayload
	if err := json.Unmarshal(uenv.Data, &info); err != nil {
		t.Fatalf("decode userinfo payload: %v", err)
	}
	if info.ID != login.Userinfo.ID || info.Username != "alice" {
		t.Fatalf("userinfo mismatch: %+v vs %+v", info, login.Userinfo)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	t.Parallel()

	srv, _ := newAuthFixture(t)
	creds := credentialsRequest{Username: "bob", Password: "a long password"}

	if resp, _ := postJSON(t, srv.URL+"/api/auth/register", creds); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first register: status=%d", resp.StatusCode)
	}
	resp, env := postJSON(t, srv.URL+"/api/auth/register", creds)
	if resp.StatusCode != http.StatusConflict || env.Status {
		t.Fatalf("duplicate register: status=%d env=%+v", resp.StatusCode, env)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	t.Parallel()

	srv, _ := newAuthFixture(t)

	cases := []struct {
		name  string
		creds credentialsRequest
	}{
		{"short username", credentialsRequest{Username: "ab", Password: "a long password"}},
		{"short password", credentialsRequest{Username: "carol", Password: "tiny"}},
	}
	for _, tc := range cases {
		resp, env := postJSON(t, srv.URL+"/api/auth/register", tc.creds)
		if resp.StatusCode != http.StatusBadRequest || env.Status {
			t.Fatalf("%s: status=%d env=%+v", tc.name, resp.StatusCode, env)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	srv, _ := newAuthFixture(t)
	if resp, _ := postJSON(t, srv.URL+"/api/auth/register", credentialsRequest{
		Username: "dave",
		Password: "a long password",
	}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status=%d", resp.StatusCode)
	}

	cases := []credentialsRequest{
		{Username: "dave", Password: "wrong password"},
		{Username: "nobody", Password: "a long password"},
	}
	for _, creds := range cases {
		resp, env := postJSON(t, srv.URL+"/api/auth/login", creds)
		if resp.StatusCode != http.StatusUnauthorized || env.Status {
			t.Fatalf("login %q: status=%d env=%+v", creds.Username, resp.StatusCode, env)
		}
	}
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	srv, _ := newAuthFixture(t)
	resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: status=%d", resp.StatusCode)
	}
}

func TestUserinfoRejectsMissingToken(t *testing.T) {
	t.Parallel()

	srv, _ := newAuthFixture(t)
	resp, err := http.Get(srv.URL + "/api/auth/userinfo")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: status=%d", resp.StatusCode)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, tc := range cases {
		r, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		if got := BearerToken(r); got != tc.want {
			t.Fatalf("BearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
