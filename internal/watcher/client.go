package watcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	maxRetryElapsed      = 2 * time.Minute
)

// Client submits audio chunks to the analysis server's ingest endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client targeting the server at baseURL
// (e.g., "http://localhost:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultSubmitTimeout},
	}
}

// SubmitChunk uploads one WAV-encoded chunk, retrying transient failures with
// exponential backoff, and returns the server's verdict JSON. Client errors
// (4xx) are not retried.
func (c *Client) SubmitChunk(ctx context.Context, callID string, sequence int, wav []byte) ([]byte, error) {
	var verdict []byte
	op := func() error {
		var err error
		verdict, err = c.post(ctx, callID, sequence, wav)
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxRetryElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("watcher: submit chunk %s/%d: %w", callID, sequence, err)
	}
	return verdict, nil
}

func (c *Client) post(ctx context.Context, callID string, sequence int, wav []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("call_id", callID); err != nil {
		return nil, backoff.Permanent(err)
	}
	if err := mw.WriteField("sequence", strconv.Itoa(sequence)); err != nil {
		return nil, backoff.Permanent(err)
	}
	part, err := mw.CreateFormFile("audio", fmt.Sprintf("%s-%d.wav", callID, sequence))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, backoff.Permanent(err)
	}
	if err := mw.Close(); err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chunks", &body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		verdict, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		return verdict, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("server rejected chunk: %s: %s", resp.Status, msg))
	default:
		return nil, fmt.Errorf("server error: %s", resp.Status)
	}
}
