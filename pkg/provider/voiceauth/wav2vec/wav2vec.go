// Package wav2vec implements voiceauth.Provider against a model sidecar
// serving a wav2vec2-based deepfake classifier. The sidecar exposes a single
// POST /v1/detect endpoint accepting a WAV body and returning the class
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
	"github.com/ringguard/ringguard/pkg/provider/voiceauth"
)

const defaultTimeout = 10 * time.Second

// Compile-time assertion that Provider implements voiceauth.Provider.
var _ voiceauth.Provider = (*Provider)(nil)

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

// Provider implements voiceauth.Provider backed by a wav2vec2 deepfake
// classifier sidecar. Safe for concurrent use.
type Provider struct {
	serverURL  string
	httpClient *http.Client
}

// New creates a Provider that sends detection requests to the sidecar at
// serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("wav2vec: serverURL must not be empty")
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

// detectResponse mirrors the sidecar's JSON response.
type detectResponse struct {
	Label         string             `json:"label"`
	Score         float64            `json:"score"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Detect uploads the waveform as WAV and returns the classifier's verdict.
// The returned Confidence is always the synthetic-class probability, even
// when the top label is human.
func (p *Provider) Detect(ctx context.Context, w audio.Waveform) (voiceauth.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/v1/detect",
		bytes.NewReader(audio.EncodeWAV(w)))
	if err != nil {
		return voiceauth.Result{}, fmt.Errorf("wav2vec: build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return voiceauth.Result{}, fmt.Errorf("wav2vec: detect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return voiceauth.Result{}, fmt.Errorf("wav2vec: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var dr detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return voiceauth.Result{}, fmt.Errorf("wav2vec: decode response: %w", err)
	}

	res := voiceauth.Result{
		Label:            dr.Label,
		RawProbabilities: dr.Probabilities,
	}
	// Prefer the explicit synthetic-class probability from the distribution;
	// fall back to the top score when the sidecar omits it.
	if syn, ok := dr.Probabilities[voiceauth.LabelSynthetic]; ok {
		res.Confidence = syn
	} else if dr.Label == voiceauth.LabelSynthetic {
		res.Confidence = dr.Score
	} else {
		res.Confidence = 1 - dr.Score
	}
	if res.Confidence < 0 {
		res.Confidence = 0
	}
	if res.Confidence > 1 {
		res.Confidence = 1
	}
	return res, nil
}
