// Package llm answers questions about filing documents through Google's
// Gemini API, with rate-limit aware retries and SSE streaming.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoAPIKey is returned when the Gemini key is missing or rejected.
	ErrNoAPIKey = errors.New("gemini API key missing or invalid")
	// ErrRateLimit is returned when the API keeps answering 429 after the
	// retry budget is spent.
	ErrRateLimit = errors.New("gemini rate limit exceeded")
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"

	// maxAttempts bounds rate-limit retries per request.
	maxAttempts = 3
	// defaultRetryDelay applies when the 429 body names no retry interval.
	defaultRetryDelay = 5 * time.Second
)

// Message is one turn of prior conversation.
type Message struct {
	Role    string `json:"role"` // "user" or "model"
	Content string `json:"content"`
}

// StreamChunk is one increment of a streamed answer.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// Client talks to the Gemini generateContent endpoints.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	log     logrus.FieldLogger
}

// Option configures the client.
type Option func(*Client)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

// New creates a Gemini client.
func New(apiKey string, log logrus.FieldLogger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		client:  &http.Client{Timeout: 120 * time.Second},
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ask answers a question about a document. contextText is the extracted
// document text; prior turns keep a conversation coherent across calls.
func (c *Client) Ask(ctx context.Context, question, contextText string, prior []Message) (string, error) {
	body, err := json.Marshal(c.buildRequest(question, contextText, prior))
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	data, err := c.postWithRetry(ctx, url, body)
	if err != nil {
		return "", err
	}

	var result geminiResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	answer := result.text()
	if answer == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return answer, nil
}

// AskStream streams the answer incrementally over the SSE endpoint. The
// returned channel closes when the answer completes or fails; a failed
// stream carries its error in the final chunk.
func (c *Client) AskStream(ctx context.Context, question, contextText string, prior []Message) (<-chan StreamChunk, error) {
	body, err := json.Marshal(c.buildRequest(question, contextText, prior))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.apiError(resp.StatusCode, resp.Body)
	}

	ch := make(chan StreamChunk, 64)
	go c.readStream(resp.Body, ch)
	return ch, nil
}

// --- Request / response shapes ---

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var parts []string
	for _, p := range r.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "")
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// buildRequest folds the document context into the system instruction and
// the prior turns plus the new question into the contents list.
func (c *Client) buildRequest(question, contextText string, prior []Message) geminiRequest {
	r := geminiRequest{}
	if contextText != "" {
		r.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: "Answer using the following document content.\n\n" + contextText}},
		}
	}
	for _, m := range prior {
		role := m.Role
		if role != "model" {
			role = "user"
		}
		r.Contents = append(r.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	r.Contents = append(r.Contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: question}},
	})
	return r
}

// --- Transport ---

// postWithRetry POSTs the request, retrying on 429 for the delay the error
// body asks for.
func (c *Client) postWithRetry(ctx context.Context, url string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			if readErr != nil {
				return nil, fmt.Errorf("gemini: read response: %w", readErr)
			}
			return data, nil
		}

		apiErr := c.apiError(resp.StatusCode, bytes.NewReader(data))
		if resp.StatusCode != http.StatusTooManyRequests {
			return nil, apiErr
		}
		lastErr = apiErr

		delay := retryDelay(string(data))
		c.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("gemini rate limited, backing off")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrRateLimit, lastErr)
}

func (c *Client) apiError(status int, body io.Reader) error {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	var apiErr geminiErrorResponse
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrNoAPIKey, apiErr.Error.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimit, apiErr.Error.Message)
		}
		return fmt.Errorf("gemini: API error (%d): %s", status, apiErr.Error.Message)
	}
	return fmt.Errorf("gemini: HTTP %d: %s", status, string(data))
}

var retryDelayRe = regexp.MustCompile(`retry in ([\d.]+)s`)

// retryDelay extracts the wait the rate-limit error asks for, falling back
// to a flat default when the body names none.
func retryDelay(body string) time.Duration {
	m := retryDelayRe.FindStringSubmatch(strings.ToLower(body))
	if m == nil {
		return defaultRetryDelay
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil || secs <= 0 {
		return defaultRetryDelay
	}
	return time.Duration(secs * float64(time.Second))
}

func (c *Client) readStream(body io.ReadCloser, ch chan<- StreamChunk) {
	defer close(ch)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "" {
			continue
		}

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			ch <- StreamChunk{Err: fmt.Errorf("gemini: stream parse: %w", err)}
			return
		}

		sc := StreamChunk{Text: chunk.text()}
		if len(chunk.Candidates) > 0 && chunk.Candidates[0].FinishReason == "STOP" {
			sc.Done = true
		}
		ch <- sc
	}
	if err := scanner.Err(); err != nil {
		ch <- StreamChunk{Err: fmt.Errorf("gemini: stream read: %w", err)}
	}
}
