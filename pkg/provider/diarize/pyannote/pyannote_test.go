package pyannote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/diarize/pyannote"
)

func newServer(t *testing.T, segments []map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/diarize" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"segments": segments})
	}))
}

func testWaveform() audio.Waveform {
	return audio.Waveform{Samples: make([]int16, audio.CanonicalRate), SampleRate: audio.CanonicalRate}
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := pyannote.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestDiarize_TwoSpeakers(t *testing.T) {
	srv := newServer(t, []map[string]any{
		{"speaker": "SPEAKER_01", "start": 2.5, "end": 4.0},
		{"speaker": "SPEAKER_00", "start": 0.0, "end": 2.4},
		{"speaker": "SPEAKER_00", "start": 4.1, "end": 5.0},
	})
	defer srv.Close()

	p, err := pyannote.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Diarize(context.Background(), testWaveform())
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}

	if res.SpeakerCount != 2 {
		t.Errorf("SpeakerCount = %d, want 2", res.SpeakerCount)
	}
	if len(res.Segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(res.Segments))
	}
	// Segments must come back in start-time order regardless of wire order.
	if res.Segments[0].Speaker != "SPEAKER_00" || res.Segments[0].Start != 0 {
		t.Errorf("Segments[0] = %+v, want SPEAKER_00 at 0s", res.Segments[0])
	}
	if res.Segments[1].Start != 2500*time.Millisecond {
		t.Errorf("Segments[1].Start = %v, want 2.5s", res.Segments[1].Start)
	}

	if got := res.SegmentsFor("SPEAKER_00"); len(got) != 2 {
		t.Errorf("SegmentsFor(SPEAKER_00) returned %d segments, want 2", len(got))
	}
	if speakers := res.Speakers(); len(speakers) != 2 || speakers[0] != "SPEAKER_00" {
		t.Errorf("Speakers() = %v, want [SPEAKER_00 SPEAKER_01]", speakers)
	}
}

func TestDiarize_Silence_ZeroSegmentsNoError(t *testing.T) {
	srv := newServer(t, nil)
	defer srv.Close()

	p, _ := pyannote.New(srv.URL)
	res, err := p.Diarize(context.Background(), testWaveform())
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if len(res.Segments) != 0 || res.SpeakerCount != 0 {
		t.Errorf("silence produced %+v, want empty result", res)
	}
}

func TestDiarize_DropsDegenerateSegments(t *testing.T) {
	srv := newServer(t, []map[string]any{
		{"speaker": "SPEAKER_00", "start": 1.0, "end": 1.0},
		{"speaker": "SPEAKER_00", "start": 2.0, "end": 1.5},
		{"speaker": "SPEAKER_00", "start": 0.0, "end": 0.5},
	})
	defer srv.Close()

	p, _ := pyannote.New(srv.URL)
	res, err := p.Diarize(context.Background(), testWaveform())
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if len(res.Segments) != 1 {
		t.Errorf("got %d segments, want 1 (zero-length and inverted dropped)", len(res.Segments))
	}
}

func TestDiarize_MaxSpeakersHint(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"segments": []any{}})
	}))
	defer srv.Close()

	p, _ := pyannote.New(srv.URL, pyannote.WithMaxSpeakers(2))
	if _, err := p.Diarize(context.Background(), testWaveform()); err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	if gotQuery != "max_speakers=2" {
		t.Errorf("query = %q, want max_speakers=2", gotQuery)
	}
}

func TestDiarize_ServerError_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pipeline not ready", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := pyannote.New(srv.URL)
	if _, err := p.Diarize(context.Background(), testWaveform()); err == nil {
		t.Fatal("expected error for 503 response, got nil")
	}
}
