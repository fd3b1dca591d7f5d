package assess

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/semaphore"

	"github.com/pavelanni/placement/internal/audio"
	"github.com/pavelanni/placement/internal/metrics"
)

// DefaultBaseURL is the Language Confidence API endpoint.
const DefaultBaseURL = "https://apis.languageconfidence.ai"

const (
	minAudioBytes   = 1024
	maxAudioBytes   = 50 << 20
	largeAudioBytes = 1 << 20

	defaultTimeout = 90 * time.Second
	largeTimeout   = 120 * time.Second

	defaultQuestion    = "Please speak about the given topic"
	defaultDescription = "Free speech assessment"
)

// ErrNoAPIKey is returned when the client has no provider key.
var ErrNoAPIKey = errors.New("assess: no API key configured")

// ErrInvalidAudio is returned for recordings the provider would reject.
var ErrInvalidAudio = errors.New("assess: invalid audio")

// StatusError is an HTTP error reported by the provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d: %s", e.Code, e.Body)
}

// Client is an HTTP client for the Language Confidence assessment API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	sem        *semaphore.Weighted

	maxTries        uint
	initialInterval time.Duration
	timeout         time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithConcurrency caps the number of in-flight provider calls.
func WithConcurrency(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithRetry sets the number of attempts and the first backoff interval.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		c.initialInterval = initial
	}
}

// WithTimeout overrides the per-attempt timeout. Zero keeps the size-based default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a provider client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiKey:          apiKey,
		httpClient:      &http.Client{},
		sem:             semaphore.NewWeighted(4),
		maxTries:        3,
		initialInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Assess uploads the recording and returns the provider's result document.
func (c *Client) Assess(ctx context.Context, req Request) (Document, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	size := info.Size()
	if size < minAudioBytes {
		return nil, fmt.Errorf("%w: file too small (%d bytes)", ErrInvalidAudio, size)
	}
	if size > maxAudioBytes {
		return nil, fmt.Errorf("%w: file too large (%d bytes)", ErrInvalidAudio, size)
	}
	data, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	url, payload, err := c.buildRequest(req, data)
	if err != nil {
		return nil, err
	}
	timeout := c.timeout
	if timeout == 0 {
		timeout = defaultTimeout
		if size > largeAudioBytes {
			timeout = largeTimeout
		}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	start := time.Now()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	doc, err := backoff.Retry(ctx, func() (Document, error) {
		return c.post(ctx, url, payload, timeout)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("assessment call failed, retrying", "mode", req.Mode, "wait", wait, "error", err)
		}),
	)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ProviderDuration.WithLabelValues(string(req.Mode), status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("assess %s: %w", req.Mode, err)
	}
	return doc, nil
}

func (c *Client) buildRequest(req Request, data []byte) (string, []byte, error) {
	accent := req.Accent
	if accent == "" {
		accent = "us"
	}
	body := map[string]any{
		"audio_base64": base64.StdEncoding.EncodeToString(data),
		"audio_format": audio.Format(req.AudioPath),
	}
	var url string
	switch req.Mode {
	case ModeScripted:
		if req.ExpectedText == "" {
			return "", nil, errors.New("assess: scripted request without expected text")
		}
		url = fmt.Sprintf("%s/pronunciation/%s", c.baseURL, accent)
		body["expected_text"] = req.ExpectedText
		body["user_metadata"] = map[string]string{
			"speaker_gender":        "male",
			"speaker_age":           "adult",
			"speaker_english_level": "intermediate",
		}
	case ModeUnscripted:
		url = fmt.Sprintf("%s/speech-assessment/unscripted/%s", c.baseURL, accent)
		question, description := req.Question, req.ContextDescription
		if question == "" && description == "" {
			question, description = defaultQuestion, defaultDescription
		}
		body["context"] = map[string]string{
			"question":            question,
			"context_description": description,
		}
	default:
		return "", nil, fmt.Errorf("assess: unknown mode %q", req.Mode)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", nil, fmt.Errorf("marshal request: %w", err)
	}
	return url, payload, nil
}

func (c *Client) post(ctx context.Context, url string, payload []byte, timeout time.Duration) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpReq.Header.Set("api-key", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		serr := &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 500)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if e, ok := doc["error"]; ok && e != nil {
		return nil, backoff.Permanent(fmt.Errorf("provider error: %v", e))
	}
	return doc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
