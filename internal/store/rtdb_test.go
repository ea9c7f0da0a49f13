package store

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRTDB is a minimal Realtime Database REST endpoint keyed by path.
type fakeRTDB struct {
	mu        sync.Mutex
	values    map[string]string
	wantToken string
	status    int // forced status when non-zero
	requests  int
}

func newFakeRTDB(t *testing.T, wantToken string) (*fakeRTDB, *httptest.Server) {
	t.Helper()
	f := &fakeRTDB{values: make(map[string]string), wantToken: wantToken}
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return f, ts
}

func (f *fakeRTDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if f.status != 0 {
		w.WriteHeader(f.status)
		io.WriteString(w, `{"error":"forced"}`)
		return
	}
	if f.wantToken != "" && r.URL.Query().Get("auth") != f.wantToken {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"Permission denied"}`)
		return
	}
	if !strings.HasSuffix(r.URL.Path, ".json") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	key := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".json")

	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.values[key] = string(b)
		w.Write(b)
	case http.MethodGet:
		v, ok := f.values[key]
		if !ok {
			v = "null"
		}
		io.WriteString(w, v)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeRTDB) set(key, raw string) {
	f.mu.Lock()
	f.values[key] = raw
	f.mu.Unlock()
}

func (f *fakeRTDB) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

// staticTokens hands out a fixed token and counts invalidations.
type staticTokens struct {
	token       string
	err         error
	invalidated int
}

func (s *staticTokens) Token(ctx context.Context) (string, error) { return s.token, s.err }
func (s *staticTokens) Invalidate()                               { s.invalidated++ }

func TestRTDBSetAndGet(t *testing.T) {
	f, ts := newFakeRTDB(t, "tok-1")
	db, err := NewRTDB(ts.URL+"/", &staticTokens{token: "tok-1"}, time.Second)
	if err != nil {
		t.Fatalf("NewRTDB: %v", err)
	}
	ctx := context.Background()

	if err := db.SetBool(ctx, "bool", true); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	if raw, _ := f.get("bool"); raw != "true" {
		t.Errorf("stored body: got %q, want true", raw)
	}

	f.set("bool_cmd", `"1"`)
	v, err := db.GetBool(ctx, "/bool_cmd")
	if err != nil {
		t.Fatalf("GetBool: %v", err)
	}
	if !v {
		t.Error("expected true for \"1\"")
	}
}

func TestRTDBNestedPath(t *testing.T) {
	f, ts := newFakeRTDB(t, "")
	db, _ := NewRTDB(ts.URL, nil, time.Second)

	if err := db.SetBool(context.Background(), "devices/led/state", false); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	if raw, ok := f.get("devices/led/state"); !ok || raw != "false" {
		t.Errorf("stored: got %q (%v)", raw, ok)
	}
}

func TestRTDBMissingValue(t *testing.T) {
	_, ts := newFakeRTDB(t, "")
	db, _ := NewRTDB(ts.URL, nil, time.Second)

	_, err := db.GetBool(context.Background(), "bool_cmd")
	if !errors.Is(err, ErrNoValue) {
		t.Fatalf("expected ErrNoValue, got %v", err)
	}
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != OpRead {
		t.Errorf("expected read OpError, got %v", err)
	}
}

func TestRTDBMalformedValue(t *testing.T) {
	f, ts := newFakeRTDB(t, "")
	db, _ := NewRTDB(ts.URL, nil, time.Second)
	f.set("bool_cmd", `{"nested":true}`)

	_, err := db.GetBool(context.Background(), "bool_cmd")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestRTDBUnauthorizedInvalidatesToken(t *testing.T) {
	_, ts := newFakeRTDB(t, "good")
	tokens := &staticTokens{token: "stale"}
	db, _ := NewRTDB(ts.URL, tokens, time.Second)

	err := db.SetBool(context.Background(), "bool", true)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != OpWrite {
		t.Errorf("expected write OpError, got %v", err)
	}
	if tokens.invalidated != 1 {
		t.Errorf("expected 1 invalidation, got %d", tokens.invalidated)
	}
}

func TestRTDBServerError(t *testing.T) {
	f, ts := newFakeRTDB(t, "")
	f.status = http.StatusServiceUnavailable
	db, _ := NewRTDB(ts.URL, nil, time.Second)

	if err := db.SetBool(context.Background(), "bool", true); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestRTDBTokenError(t *testing.T) {
	f, ts := newFakeRTDB(t, "")
	db, _ := NewRTDB(ts.URL, &staticTokens{err: ErrUnauthorized}, time.Second)

	if _, err := db.GetBool(context.Background(), "bool"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if f.requests != 0 {
		t.Errorf("expected no database request without a token, got %d", f.requests)
	}
}

func TestRTDBTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(func() { close(release) })

	db, _ := NewRTDB(ts.URL, nil, 50*time.Millisecond)

	start := time.Now()
	_, err := db.GetBool(context.Background(), "bool")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("call not bounded by timeout: took %v", elapsed)
	}
}

func TestRTDBErrorHidesToken(t *testing.T) {
	db, _ := NewRTDB("http://127.0.0.1:1", &staticTokens{token: "secret-token"}, 200*time.Millisecond)

	err := db.SetBool(context.Background(), "bool", true)
	if err == nil {
		t.Fatal("expected connection error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Errorf("error leaks token: %v", err)
	}
}

func TestNewRTDBRejectsBadURL(t *testing.T) {
	if _, err := NewRTDB("ftp://example.com", nil, time.Second); err == nil {
		t.Error("expected error for ftp scheme")
	}
}
