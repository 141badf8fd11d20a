package watcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestClientSubmitsMultipartChunk(t *testing.T) {
	t.Parallel()
	var gotCallID, gotSequence string
	var gotAudio []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chunks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		gotCallID = r.FormValue("call_id")
		gotSequence = r.FormValue("sequence")
		f, _, err := r.FormFile("audio")
		if err != nil {
			t.Fatalf("missing audio part: %v", err)
		}
		defer f.Close()
		buf := make([]byte, 16)
		n, _ := f.Read(buf)
		gotAudio = buf[:n]
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"risk_level":"low"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	verdict, err := c.SubmitChunk(context.Background(), "call-1", 4, []byte("RIFFdata"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(verdict) != `{"risk_level":"low"}` {
		t.Errorf("verdict: got %q", verdict)
	}
	if gotCallID != "call-1" {
		t.Errorf("call_id: got %q, want %q", gotCallID, "call-1")
	}
	if gotSequence != "4" {
		t.Errorf("sequence: got %q, want %q", gotSequence, "4")
	}
	if string(gotAudio) != "RIFFdata" {
		t.Errorf("audio: got %q, want %q", gotAudio, "RIFFdata")
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.SubmitChunk(context.Background(), "call-2", 0, []byte("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestClientDoesNotRetryRejections(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad sequence", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.SubmitChunk(context.Background(), "call-3", -1, []byte("x"))
	if err == nil {
		t.Fatal("expected error for rejected chunk, got nil")
	}
	if !strings.Contains(err.Error(), "bad sequence") {
		t.Errorf("error should carry the server message, got: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", got)
	}
}
