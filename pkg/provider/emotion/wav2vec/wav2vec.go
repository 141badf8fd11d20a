// Package wav2vec implements emotion.Provider against a model sidecar
// serving a wav2vec2-based speech emotion classifier. The sidecar exposes
// POST /v1/emotion accepting a WAV body and returning the emotion
// distribution as JSON.
package wav2vec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/emotion"
)

const (
	defaultTimeout = 10 * time.Second

	// minDuration is the shortest segment the classifier scores reliably.
	// Shorter segments return emotion.ErrSegmentTooShort without a request.
	minDuration = 400 * time.Millisecond
)

// Compile-time assertion that Provider implements emotion.Provider.
var _ emotion.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithMinDuration overrides the minimum segment duration. Defaults to 400 ms.
func WithMinDuration(d time.Duration) Option {
	return func(p *Provider) { p.minDuration = d }
}

// Provider implements emotion.Provider backed by a wav2vec2 emotion
// classifier sidecar. Safe for concurrent use.
type Provider struct {
	serverURL   string
	minDuration time.Duration
	httpClient  *http.Client
}

// New creates a Provider that sends analysis requests to the sidecar at
// serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("wav2vec: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:   strings.TrimRight(serverURL, "/"),
		minDuration: minDuration,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// emotionResponse mirrors the sidecar's JSON response.
type emotionResponse struct {
	Scores map[string]float64 `json:"scores"`
}

// Analyze uploads the waveform as WAV and returns the emotion distribution
// with the derived stress level.
func (p *Provider) Analyze(ctx context.Context, w audio.Waveform) (emotion.Result, error) {
	if w.Duration() < p.minDuration {
		return emotion.Result{}, fmt.Errorf("wav2vec: %w (%v < %v)", emotion.ErrSegmentTooShort, w.Duration(), p.minDuration)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/v1/emotion",
		bytes.NewReader(audio.EncodeWAV(w)))
	if err != nil {
		return emotion.Result{}, fmt.Errorf("wav2vec: build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return emotion.Result{}, fmt.Errorf("wav2vec: emotion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return emotion.Result{}, fmt.Errorf("wav2vec: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var er emotionResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return emotion.Result{}, fmt.Errorf("wav2vec: decode response: %w", err)
	}
	if len(er.Scores) == 0 {
		return emotion.Result{}, fmt.Errorf("wav2vec: server returned empty score distribution")
	}

	res := emotion.Result{Scores: er.Scores}
	for label, score := range er.Scores {
		if score > res.Confidence {
			res.Confidence = score
			res.TopEmotion = label
		}
	}
	res.StressLevel = emotion.ComputeStress(er.Scores)
	return res, nil
}
