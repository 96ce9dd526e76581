// Package transcribe uploads recorded WAV files to a speech-to-text endpoint
// and returns the recognized text.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/s0s0/VolcanoChat/logutil"
)

const (
	maxRetries     = 3
	retryBaseDelay = 500 * time.Millisecond
)

// Client performs transcription uploads.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	retryDelay time.Duration
}

func New(endpoint, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		retryDelay: retryBaseDelay,
	}
}

// SetHTTPClient overrides the transport, used by tests.
func (c *Client) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

// Transcribe uploads the audio file and returns the recognized text, trimmed.
// Transient failures are retried with exponential backoff.
func (c *Client) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("transcription endpoint is empty")
	}

	delay := c.retryDelay
	var lastErr error

	for try := 1; try <= maxRetries; try++ {
		text, retryable, err := c.doUpload(ctx, wavPath)
		if err == nil {
			return strings.TrimSpace(text), nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
		log.Printf("Transcribe: attempt %d failed: %v", try, err)
		if try == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return "", fmt.Errorf("transcription failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) doUpload(ctx context.Context, wavPath string) (text string, retryable bool, err error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return "", false, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return "", false, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", false, fmt.Errorf("copy audio file: %w", err)
	}
	if c.model != "" {
		_ = writer.WriteField("model", c.model)
	}
	_ = writer.WriteField("response_format", "json")
	_ = writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, body)
	if err != nil {
		return "", false, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("User-Agent", "volcanochat/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	log.Printf("Transcribe: request took %v, status %d", time.Since(start), resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		// Client errors are terminal, server errors worth retrying.
		retryable = resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return "", retryable, fmt.Errorf("transcription API status %d: %s", resp.StatusCode, logutil.Trim(string(respBody), 200))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	return parsed.Text, false, nil
}
