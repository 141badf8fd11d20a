// Package whisper provides transcription providers backed by whisper.cpp.
//
// Two implementations are available:
//
//   - [Provider] talks to a running whisper-server binary over its REST API
//     (POST /inference with a WAV upload). This keeps the heavy model in a
//     separate process and is the default deployment.
//   - [NativeProvider] (native.go) links whisper.cpp directly via the CGO
//     bindings, eliminating HTTP overhead where the library is available at
//     link time.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithTimeout(8*time.Second),
//	)
//	res, err := p.Transcribe(ctx, waveform)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/transcribe"
)

const (
	defaultLanguage = "en"

	// defaultTimeout bounds a single inference request. Tuned for ~10 s
	// chunks on a medium model; the orchestrator's stage deadline is the
	// outer bound.
	defaultTimeout = 15 * time.Second
)

// Compile-time assertion that Provider implements transcribe.Provider.
var _ transcribe.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de"). An empty string requests auto-detection. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTranslate requests translation to English instead of verbatim
// transcription. The original deployment translated so that keyword scoring
// works on English text regardless of the call language.
func WithTranslate(translate bool) Option {
	return func(p *Provider) { p.translate = translate }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 15 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements transcribe.Provider against a whisper-server REST API.
// Safe for concurrent use; each Transcribe call is an independent request.
type Provider struct {
	serverURL  string
	language   string
	translate  bool
	httpClient *http.Client
}

// New creates a Provider that sends inference requests to the whisper-server
// at serverURL (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse mirrors whisper-server's verbose JSON response shape.
type inferenceResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"` // seconds
		End   float64 `json:"end"`   // seconds
		// whisper reports avg_logprob; the server maps it to a 0–1 score.
		Confidence float64 `json:"confidence"`
	} `json:"segments"`
}

// Transcribe uploads the waveform as a WAV file and parses the verbose JSON
// response into a [transcribe.Result].
func (p *Provider) Transcribe(ctx context.Context, w audio.Waveform) (transcribe.Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(w)); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: write form file: %w", err)
	}
	_ = mw.WriteField("response_format", "verbose_json")
	if p.language != "" {
		_ = mw.WriteField("language", p.language)
	}
	if p.translate {
		_ = mw.WriteField("translate", "true")
	}
	if err := mw.Close(); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: finalise multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return transcribe.Result{}, fmt.Errorf("whisper: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var ir inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: decode response: %w", err)
	}

	return toResult(ir), nil
}

// toResult converts the wire response into the provider-neutral Result,
// computing the average segment confidence.
func toResult(ir inferenceResponse) transcribe.Result {
	res := transcribe.Result{
		Text:     strings.TrimSpace(ir.Text),
		Language: ir.Language,
	}

	var confSum float64
	var confN int
	for _, s := range ir.Segments {
		seg := transcribe.Segment{
			Text:       strings.TrimSpace(s.Text),
			Start:      time.Duration(s.Start * float64(time.Second)),
			End:        time.Duration(s.End * float64(time.Second)),
			Confidence: s.Confidence,
		}
		res.Segments = append(res.Segments, seg)
		if s.Confidence > 0 {
			confSum += s.Confidence
			confN++
		}
	}
	if confN > 0 {
		res.AverageConfidence = confSum / float64(confN)
	}
	return res
}
