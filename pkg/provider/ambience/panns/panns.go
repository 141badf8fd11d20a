// Package panns implements ambience.Provider against a model sidecar serving
// a PANNs (large-scale pretrained audio neural network) audio-tagging model.
// The sidecar exposes POST /v1/tag accepting a WAV body and returning the
// clipwise class scores as JSON.
//
// Tag weighting and thresholding happen here rather than in the sidecar so
// the sidecar stays a dumb model server.
package panns

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
	"github.com/ringguard/ringguard/pkg/provider/ambience"
)

const (
	defaultTimeout = 10 * time.Second

	// defaultThreshold is the suspicion score above which the environment is
	// flagged. Matches the tuning of the weight table in ambience.
	defaultThreshold = 0.6
)

// Compile-time assertion that Provider implements ambience.Provider.
var _ ambience.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithThreshold overrides the suspicion decision threshold. Defaults to 0.6.
func WithThreshold(th float64) Option {
	return func(p *Provider) { p.threshold = th }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements ambience.Provider backed by a PANNs audio-tagging
// sidecar. Safe for concurrent use.
type Provider struct {
	serverURL  string
	threshold  float64
	httpClient *http.Client
}

// New creates a Provider that sends tagging requests to the sidecar at
// serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("panns: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		threshold:  defaultThreshold,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// tagResponse mirrors the sidecar's JSON response: clipwise scores keyed by
// AudioSet class label.
type tagResponse struct {
	Scores map[string]float64 `json:"scores"`
}

// Classify uploads the waveform as WAV, folds the clipwise scores through the
// suspicious-tag weight table, and returns the aggregate verdict.
func (p *Provider) Classify(ctx context.Context, w audio.Waveform) (ambience.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/v1/tag",
		bytes.NewReader(audio.EncodeWAV(w)))
	if err != nil {
		return ambience.Result{}, fmt.Errorf("panns: build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ambience.Result{}, fmt.Errorf("panns: tag request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ambience.Result{}, fmt.Errorf("panns: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var tr tagResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return ambience.Result{}, fmt.Errorf("panns: decode response: %w", err)
	}

	return p.score(tr.Scores), nil
}

// score folds clipwise model output through the weight table. A tag is
// reported when its score exceeds its per-tag weight; every suspicious-class
// score contributes weight*score to the aggregate regardless.
func (p *Provider) score(scores map[string]float64) ambience.Result {
	res := ambience.Result{Method: "panns"}

	for label, score := range scores {
		weight, ok := ambience.SuspiciousWeights[label]
		if !ok {
			continue
		}
		if score > weight {
			res.Tags = append(res.Tags, ambience.Tag{Label: label, Confidence: score})
		}
		res.SuspicionScore += score * weight
	}
	if res.SuspicionScore > 1 {
		res.SuspicionScore = 1
	}
	res.Suspicious = res.SuspicionScore > p.threshold

	sort.Slice(res.Tags, func(i, j int) bool {
		if res.Tags[i].Confidence != res.Tags[j].Confidence {
			return res.Tags[i].Confidence > res.Tags[j].Confidence
		}
		return res.Tags[i].Label < res.Tags[j].Label
	})
	return res
}
