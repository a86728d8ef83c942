package document

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webdoc/internal/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubStore records the window it was asked for and answers from canned data.
type stubStore struct {
	docs    []Document
	counts  []DayCount
	listErr error
	cntErr  error

	gotPage     int
	gotPageSize int
	gotSince    time.Time
}

func (s *stubStore) List(_ context.Context, page, pageSize int) ([]Document, error) {
	s.gotPage, s.gotPageSize = page, pageSize
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.docs, nil
}

func (s *stubStore) CountSince(_ context.Context, since time.Time) ([]DayCount, error) {
	s.gotSince = since
	if s.cntErr != nil {
		return nil, s.cntErr
	}
	return s.counts, nil
}

type stubVerifier struct {
	ids map[string]chat.Identity
}

func (v stubVerifier) Verify(token string) (chat.Identity, error) {
	id, ok := v.ids[token]
	if !ok {
		return chat.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newDocFixture(t *testing.T, store *stubStore) *httptest.Server {
	t.Helper()

	h := NewHandler(testLogger(), store, stubVerifier{ids: map[string]chat.Identity{
		"tok-admin": {ID: "a1", Username: "root", Role: "admin"},
		"tok-user":  {ID: "u1", Username: "alice", Role: "user"},
	}})
	h.now = func() time.Time {
		return time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getEnvelope(t *testing.T, url, token string) (*http.Response, envelope) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, env
}

func TestListReturnsDocuments(t *testing.T) {
	t.Parallel()

	store := &stubStore{docs: []Document{
		{ID: "d2", Title: "newer", FileName: "b.pdf", CreatedAt: time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)},
		{ID: "d1", Title: "older", FileName: "a.pdf", CreatedAt: time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)},
	}}
	srv := newDocFixture(t, store)

	resp, env := getEnvelope(t, srv.URL+"/api/documents?page=2&pageSize=5", "")
	if resp.StatusCode != http.StatusOK || !env.Status {
		t.Fatalf("list: status=%d env=%+v", resp.StatusCode, env)
	}
	if store.gotPage != 2 || store.gotPageSize != 5 {
		t.Fatalf("store window = (%d, %d), want (2, 5)", store.gotPage, store.gotPageSize)
	}

	var docs []Document
	if err := json.Unmarshal(env.Data, &docs); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "d2" || docs[1].ID != "d1" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
}

func TestListDefaultsAndClamps(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		query        string
		wantPage     int
		wantPageSize int
	}{
		{"defaults", "", 1, defaultPageSize},
		{"zero page", "?page=0", 1, defaultPageSize},
		{"negative pageSize", "?pageSize=-3", 1, defaultPageSize},
		{"oversized pageSize", "?pageSize=9999", 1, maxPageSize},
		{"garbage values", "?page=abc&pageSize=xyz", 1, defaultPageSize},
	}
	for _, tc := range cases {
		store := &stubStore{}
		srv := newDocFixture(t, store)

		resp, _ := getEnvelope(t, srv.URL+"/api/documents"+tc.query, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status=%d", tc.name, resp.StatusCode)
		}
		if store.gotPage != tc.wantPage || store.gotPageSize != tc.wantPageSize {
			t.Fatalf("%s: store window = (%d, %d), want (%d, %d)",
				tc.name, store.gotPage, store.gotPageSize, tc.wantPage, tc.wantPageSize)
		}
	}
}

func TestListEmptyPageIsEmptyArray(t *testing.T) {
	t.Parallel()

	srv := newDocFixture(t, &stubStore{})

	resp, env := getEnvelope(t, srv.URL+"/api/documents?page=99", "")
	if resp.StatusCode != http.StatusOK || !env.Status {
		t.Fatalf("list: status=%d env=%+v", resp.StatusCode, env)
	}
	if string(env.Data) != "[]" {
		t.Fatalf("empty page data = %s, want []", env.Data)
	}
}

func TestListStoreFailure(t *testing.T) {
	t.Parallel()

	srv := newDocFixture(t, &stubStore{listErr: errors.New("boom")})

	resp, env := getEnvelope(t, srv.URL+"/api/documents", "")
	if resp.StatusCode != http.StatusInternalServerError || env.Status {
		t.Fatalf("list failure: status=%d env=%+v", resp.StatusCode, env)
	}
}

func TestCount7dRequiresAdmin(t *testing.T) {
	t.Parallel()

	srv := newDocFixture(t, &stubStore{})

	resp, _ := getEnvelope(t, srv.URL+"/api/documents/count7d", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: status=%d", resp.StatusCode)
	}

	resp, _ = getEnvelope(t, srv.URL+"/api/documents/count7d", "tok-user")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin: status=%d", resp.StatusCode)
	}
}

func TestCount7dFillsMissingDays(t *testing.T) {
	t.Parallel()

	// Fixture clock is 2025-06-10; window is 2025-06-04 .. 2025-06-10.
	store := &stubStore{counts: []DayCount{
		{Day: time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC), Count: 3},
		{Day: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), Count: 1},
	}}
	srv := newDocFixture(t, store)

	resp, env := getEnvelope(t, srv.URL+"/api/documents/count7d", "tok-admin")
	if resp.StatusCode != http.StatusOK || !env.Status {
		t.Fatalf("count7d: status=%d env=%+v", resp.StatusCode, env)
	}

	wantSince := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	if !store.gotSince.Equal(wantSince) {
		t.Fatalf("since = %v, want %v", store.gotSince, wantSince)
	}

	var entries []dayCountEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(entries) != countWindowDays {
		t.Fatalf("got %d entries, want %d", len(entries), countWindowDays)
	}
	if entries[0].Time != "2025-06-04" || entries[6].Time != "2025-06-10" {
		t.Fatalf("window bounds = %s .. %s", entries[0].Time, entries[6].Time)
	}
	for _, e := range entries {
		want := 0
		switch e.Time {
		case "2025-06-05":
			want = 3
		case "2025-06-10":
			want = 1
		}
		if e.Count != want {
			t.Fatalf("count for %s = %d, want %d", e.Time, e.Count, want)
		}
	}
}

func TestCount7dStoreFailure(t *testing.T) {
	t.Parallel()

	srv := newDocFixture(t, &stubStore{cntErr: errors.New("boom")})

	resp, env := getEnvelope(t, srv.URL+"/api/documents/count7d", "tok-admin")
	if resp.StatusCode != http.StatusInternalServerError || env.Status {
		t.Fatalf("count7d failure: status=%d env=%+v", resp.StatusCode, env)
	}
}

func TestDocumentRoutesRejectPost(t *testing.T) {
	t.Parallel()

	srv := newDocFixture(t, &stubStore{})

	for _, path := range []string{"/api/documents", "/api/documents/count7d"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("POST %s: status=%d", path, resp.StatusCode)
		}
	}
}
