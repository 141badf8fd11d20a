// Package watcher monitors a directory of finished call recordings, slices
// each recording into fixed-length chunks, and submits them to the analysis
// server. Processed recordings are moved aside so a restart never re-submits
// a call.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ringguard/ringguard/pkg/audio"
)

const (
	// settleDelay is how long a new file must keep a stable size before it
	// is considered fully written.
	settleDelay = 500 * time.Millisecond
	settleRetry = 20
)

// Submitter uploads one chunk of a recording and returns the server's
// verdict JSON. *Client implements it.
type Submitter interface {
	SubmitChunk(ctx context.Context, callID string, sequence int, wav []byte) ([]byte, error)
}

// Watcher watches a recordings directory and feeds new files to a Submitter.
type Watcher struct {
	dir          string
	processedDir string
	chunkLen     time.Duration
	submitter    Submitter
	norm         *audio.Normalizer
}

// New returns a Watcher for dir. Handled recordings are moved to
// processedDir; when empty, a "processed" subdirectory of dir is used.
func New(dir, processedDir string, chunkSeconds int, submitter Submitter) *Watcher {
	if processedDir == "" {
		processedDir = filepath.Join(dir, "processed")
	}
	if chunkSeconds < 1 {
		chunkSeconds = 10
	}
	return &Watcher{
		dir:          dir,
		processedDir: processedDir,
		chunkLen:     time.Duration(chunkSeconds) * time.Second,
		submitter:    submitter,
		norm:         &audio.Normalizer{},
	}
}

// Run backfills existing recordings, then watches for new ones until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.processedDir, 0o755); err != nil {
		return fmt.Errorf("watcher: create processed dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", w.dir, err)
	}

	if err := w.backfill(ctx); err != nil {
		return err
	}

	slog.Info("watching recordings directory", "dir", w.dir, "chunk_len", w.chunkLen)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) == 0 || !isRecording(evt.Name) {
				continue
			}
			if err := w.process(ctx, evt.Name); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("failed to process recording", "path", evt.Name, "err", err)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("recordings watcher error", "err", err)
		}
	}
}

// backfill submits recordings that were already present at startup.
func (w *Watcher) backfill(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("watcher: read %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !isRecording(e.Name()) {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if err := w.process(ctx, path); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("failed to process recording", "path", path, "err", err)
		}
	}
	return nil
}

// process reads one recording, submits it chunk by chunk, and moves it to the
// processed directory.
func (w *Watcher) process(ctx context.Context, path string) error {
	if err := w.waitSettled(ctx, path); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}

	wf, err := w.norm.Normalize(data, "")
	if err != nil {
		// Move it aside anyway; retrying an undecodable file will not help.
		slog.Warn("recording is not decodable, skipping", "path", path, "err", err)
		return w.moveProcessed(path)
	}

	callID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	total := wf.Duration()
	var verdicts []json.RawMessage
	for start := time.Duration(0); start < total; start += w.chunkLen {
		end := start + w.chunkLen
		if end > total {
			end = total
		}
		chunk := wf.Slice(start, end)
		if chunk.Empty() {
			break
		}
		verdict, err := w.submitter.SubmitChunk(ctx, callID, len(verdicts), audio.EncodeWAV(chunk))
		if err != nil {
			return err
		}
		verdicts = append(verdicts, json.RawMessage(verdict))
	}

	w.saveResults(callID, verdicts)
	slog.Info("recording submitted", "call_id", callID, "chunks", len(verdicts), "duration", total)
	return w.moveProcessed(path)
}

// saveResults writes the per-chunk verdicts next to the processed recording.
// A write failure loses only the local copy; the server keeps the archive.
func (w *Watcher) saveResults(callID string, verdicts []json.RawMessage) {
	if len(verdicts) == 0 {
		return
	}
	data, err := json.MarshalIndent(verdicts, "", "  ")
	if err != nil {
		slog.Warn("failed to encode results", "call_id", callID, "err", err)
		return
	}
	path := filepath.Join(w.processedDir, callID+".results.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("failed to save results", "call_id", callID, "err", err)
	}
}

// waitSettled blocks until the file size stops changing, so a recording still
// being flushed to disk is not read half-written.
func (w *Watcher) waitSettled(ctx context.Context, path string) error {
	var lastSize int64 = -1
	for i := 0; i < settleRetry; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat recording: %w", err)
		}
		if info.Size() == lastSize && info.Size() > 0 {
			return nil
		}
		lastSize = info.Size()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settleDelay):
		}
	}
	return fmt.Errorf("watcher: %s did not settle", path)
}

func (w *Watcher) moveProcessed(path string) error {
	dest := filepath.Join(w.processedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("move processed recording: %w", err)
	}
	return nil
}

func isRecording(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".opus", ".pcm":
		return true
	default:
		return false
	}
}
