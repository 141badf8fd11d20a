package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ringguard/ringguard/pkg/audio"
)

type submittedChunk struct {
	callID   string
	sequence int
	wav      []byte
}

type fakeSubmitter struct {
	mu     sync.Mutex
	chunks []submittedChunk
	err    error
}

func (f *fakeSubmitter) SubmitChunk(_ context.Context, callID string, sequence int, wav []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.chunks = append(f.chunks, submittedChunk{callID: callID, sequence: sequence, wav: wav})
	return []byte(fmt.Sprintf(`{"call_id":%q,"chunk_sequence":%d,"risk_level":"low"}`, callID, sequence)), nil
}

func (f *fakeSubmitter) snapshot() []submittedChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submittedChunk(nil), f.chunks...)
}

// writeRecording writes seconds of silence as a WAV file.
func writeRecording(t *testing.T, path string, seconds float64) {
	t.Helper()
	n := int(seconds * float64(audio.CanonicalRate))
	wf := audio.Waveform{Samples: make([]int16, n), SampleRate: audio.CanonicalRate}
	if err := os.WriteFile(path, audio.EncodeWAV(wf), 0o644); err != nil {
		t.Fatalf("failed to write recording: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned unexpected error: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestBackfillSubmitsExistingRecording(t *testing.T) {
	dir := t.TempDir()
	writeRecording(t, filepath.Join(dir, "call-abc.wav"), 2.5)

	sub := &fakeSubmitter{}
	w := New(dir, "", 1, sub)
	startWatcher(t, w)

	waitFor(t, 15*time.Second, func() bool { return len(sub.snapshot()) == 3 })

	chunks := sub.snapshot()
	for i, c := range chunks {
		if c.callID != "call-abc" {
			t.Errorf("chunk %d call_id: got %q, want %q", i, c.callID, "call-abc")
		}
		if c.sequence != i {
			t.Errorf("chunk %d sequence: got %d, want %d", i, c.sequence, i)
		}
		wf, err := audio.DecodeWAV(c.wav)
		if err != nil {
			t.Fatalf("chunk %d is not valid WAV: %v", i, err)
		}
		if i < 2 && wf.Duration() != time.Second {
			t.Errorf("chunk %d duration: got %v, want 1s", i, wf.Duration())
		}
	}

	// The recording is moved aside once submitted.
	waitFor(t, 5*time.Second, func() {
		_, err := os.Stat(filepath.Join(dir, "processed", "call-abc.wav"))
		return err == nil
	})
	if _, err := os.Stat(filepath.Join(dir, "call-abc.wav")); !os.IsNotExist(err) {
		t.Error("original recording should have been moved")
	}

	// Per-chunk verdicts are saved next to the processed recording.
	data, err := os.ReadFile(filepath.Join(dir, "processed", "call-abc.results.json"))
	if err != nil {
		t.Fatalf("results file not written: %v", err)
	}
	var verdicts []map[string]any
	if err := json.Unmarshal(data, &verdicts); err != nil {
		t.Fatalf("results file is not valid JSON: %v", err)
	}
	if len(verdicts) != 3 {
		t.Errorf("results entries: got %d, want 3", len(verdicts))
	}
}

func TestNewRecordingIsPickedUp(t *testing.T) {
	dir := t.TempDir()
	sub := &fakeSubmitter{}
	w := New(dir, "", 10, sub)
	startWatcher(t, w)

	// Let the watch registration settle before creating the file.
	time.Sleep(200 * time.Millisecond)
	writeRecording(t, filepath.Join(dir, "call-late.wav"), 1)

	waitFor(t, 15*time.Second, func() bool { return len(sub.snapshot()) == 1 })
	if got := sub.snapshot()[0].callID; got != "call-late" {
		t.Errorf("call_id: got %q, want %q", got, "call-late")
	}
}

func TestNonRecordingFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	sub := &fakeSubmitter{}
	w := New(dir, "", 10, sub)
	startWatcher(t, w)

	time.Sleep(500 * time.Millisecond)
	if n := len(sub.snapshot()); n != 0 {
		t.Errorf("expected no submissions for non-audio files, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("non-audio file should stay in place")
	}
}

func TestUndecodableRecordingMovedAside(t *testing.T) {
	dir := t.TempDir()
	// A single byte cannot decode under any supported codec.
	if err := os.WriteFile(filepath.Join(dir, "broken.wav"), []byte{0x00}, 0o644); err != nil {
		t.Fatal(err)
	}

	sub := &fakeSubmitter{}
	w := New(dir, "", 10, sub)
	startWatcher(t, w)

	waitFor(t, 15*time.Second, func() {
		_, err := os.Stat(filepath.Join(dir, "processed", "broken.wav"))
		return err == nil
	})
	if n := len(sub.snapshot()); n != 0 {
		t.Errorf("expected no submissions for undecodable file, got %d", n)
	}
}

func TestSubmitFailureLeavesRecordingInPlace(t *testing.T) {
	dir := t.TempDir()
	writeRecording(t, filepath.Join(dir, "call-fail.wav"), 1)

	sub := &fakeSubmitter{err: errors.New("server unreachable")}
	w := New(dir, "", 10, sub)
	startWatcher(t, w)

	// Give backfill time to attempt and fail.
	time.Sleep(2 * time.Second)
	if _, err := os.Stat(filepath.Join(dir, "call-fail.wav")); err != nil {
		t.Error("failed recording should stay in place for a retry after restart")
	}
}
