// Package pyannote implements diarize.Provider against a model sidecar
// serving a pyannote speaker-diarization pipeline. The sidecar exposes
// POST /v1/diarize accepting a WAV body and returning the speaker timeline
// as JSON.
package pyannote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/diarize"
)

// defaultTimeout bounds a single diarization request. Diarization is the
// slowest model in the pipeline, so this is generous.
const defaultTimeout = 20 * time.Second

// Compile-time assertion that Provider implements diarize.Provider.
var _ diarize.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 20 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithMaxSpeakers hints the expected speaker count to the pipeline. Phone
// calls are almost always two-party, so 2 is a sensible hint; 0 leaves the
// pipeline unconstrained.
func WithMaxSpeakers(n int) Option {
	return func(p *Provider) { p.maxSpeakers = n }
}

// Provider implements diarize.Provider backed by a pyannote sidecar. Safe
// for concurrent use.
type Provider struct {
	serverURL   string
	maxSpeakers int
	httpClient  *http.Client
}

// New creates a Provider that sends diarization requests to the sidecar at
// serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("pyannote: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// diarizeResponse mirrors the sidecar's JSON response.
type diarizeResponse struct {
	Segments []struct {
		Speaker string  `json:"speaker"`
		Start   float64 `json:"start"` // seconds
		End     float64 `json:"end"`   // seconds
	} `json:"segments"`
}

// Diarize uploads the waveform as WAV and returns the speaker timeline. A
// silent chunk yields an empty Result without error.
func (p *Provider) Diarize(ctx context.Context, w audio.Waveform) (diarize.Result, error) {
	url := p.serverURL + "/v1/diarize"
	if p.maxSpeakers > 0 {
		url = fmt.Sprintf("%s?max_speakers=%d", url, p.maxSpeakers)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewReader(audio.EncodeWAV(w)))
	if err != nil {
		return diarize.Result{}, fmt.Errorf("pyannote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return diarize.Result{}, fmt.Errorf("pyannote: diarize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return diarize.Result{}, fmt.Errorf("pyannote: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var dr diarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return diarize.Result{}, fmt.Errorf("pyannote: decode response: %w", err)
	}

	res := diarize.Result{}
	speakers := make(map[string]bool)
	for _, s := range dr.Segments {
		if s.End <= s.Start {
			continue
		}
		res.Segments = append(res.Segments, diarize.Segment{
			Speaker: s.Speaker,
			Start:   time.Duration(s.Start * float64(time.Second)),
			End:     time.Duration(s.End * float64(time.Second)),
		})
		speakers[s.Speaker] = true
	}
	sort.SliceStable(res.Segments, func(i, j int) bool {
		return res.Segments[i].Start < res.Segments[j].Start
	})
	res.SpeakerCount = len(speakers)
	return res, nil
}
