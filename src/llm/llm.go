package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"screen-reader-llm/src/history"
	"screen-reader-llm/src/logutil"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultMaxTokens = 300
	maxRetries       = 3
	initialDelay     = 1 * time.Second
	maxErrorBody     = 4096
	maxResponseBody  = 1 << 20
)

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Providers  []string
	MaxTokens  int
	HTTPClient *http.Client
	// RetryDelay overrides the initial backoff; tests set it to zero.
	RetryDelay *time.Duration
}

// OpenAI-compatible chat structures
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ProviderPreferences struct {
	Order          []string `json:"order,omitempty"`
	AllowFallbacks *bool    `json:"allow_fallbacks,omitempty"`
}

type ChatRequest struct {
	Model     string               `json:"model"`
	Messages  []Message            `json:"messages"`
	MaxTokens int                  `json:"max_tokens"`
	Provider  *ProviderPreferences `json:"provider,omitempty"`
}

type ChatResponse struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Content string `json:"content"`
}

type APIError struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"` // Can be string or number
}

// StatusError is a non-2xx upstream response. Its message is safe to show
// to the user: it carries the upstream error text, never the request.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client queries a vision-capable chat model.
type Client struct {
	apiKey     string
	model      string
	url        string
	providers  []string
	maxTokens  int
	httpClient *http.Client
	retryDelay time.Duration
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("API key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model is required")
	}
	c := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      strings.TrimSpace(cfg.Model),
		url:        chatURL(cfg.BaseURL),
		providers:  cfg.Providers,
		maxTokens:  cfg.MaxTokens,
		httpClient: cfg.HTTPClient,
		retryDelay: initialDelay,
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	if cfg.RetryDelay != nil {
		c.retryDelay = *cfg.RetryDelay
	}
	log.Printf("llm: client for model %s at %s (key %s)", c.model, c.url, logutil.RedactKey(c.apiKey))
	return c, nil
}

func (c *Client) Model() string { return c.model }

func chatURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// providerPreferences returns OpenRouter routing preferences, or nil to use
// the backend's default routing.
func (c *Client) providerPreferences() *ProviderPreferences {
	if len(c.providers) == 0 {
		return nil
	}
	allowFallbacks := false
	return &ProviderPreferences{
		Order:          c.providers,
		AllowFallbacks: &allowFallbacks,
	}
}

// BuildMessages replays hist as text turns followed by the current user
// turn carrying the prompt and the PNG image.
func BuildMessages(prompt string, image []byte, hist []history.Turn) []Message {
	messages := make([]Message, 0, len(hist)+1)
	for _, turn := range hist {
		messages = append(messages, Message{
			Role:    turn.Role.String(),
			Content: []Content{{Type: "text", Text: turn.Text}},
		})
	}

	var current []Content
	if prompt != "" {
		current = append(current, Content{Type: "text", Text: prompt})
	}
	if len(image) > 0 {
		current = append(current, Content{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)},
		})
	}
	return append(messages, Message{Role: "user", Content: current})
}

// Query sends prompt, image and prior turns and returns the reply text.
// Errors are phrased for display to the user.
func (c *Client) Query(ctx context.Context, prompt string, image []byte, hist []history.Turn) (string, error) {
	if prompt == "" && len(image) == 0 {
		return "", errors.New("nothing to send: empty prompt and image")
	}
	request := ChatRequest{
		Model:     c.model,
		Messages:  BuildMessages(prompt, image, hist),
		MaxTokens: c.maxTokens,
		Provider:  c.providerPreferences(),
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(c.retryDelay) * (1.5 * float64(attempt)))
			log.Printf("llm: retrying in %v after: %v", delay, lastErr)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("request cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		response, err := c.makeAPIRequest(ctx, request)
		if err != nil {
			lastErr = err
			var se *StatusError
			if errors.As(err, &se) && !se.retryable() {
				return "", err
			}
			if ctx.Err() != nil {
				return "", fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			continue
		}

		if len(response.Choices) == 0 {
			lastErr = errors.New("no choices in API response")
			continue
		}

		reply := strings.TrimSpace(response.Choices[0].Message.Content)
		if reply == "" {
			return "", errors.New("model returned an empty reply")
		}
		log.Printf("llm: reply (%d chars): %q", len(reply), logutil.Sanitize(reply, 100))
		return reply, nil
	}

	return "", fmt.Errorf("failed after %d attempts: %w", maxRetries, lastErr)
}

// Ping checks that the backend accepts the API key.
func (c *Client) Ping(ctx context.Context) error {
	url := strings.TrimSuffix(c.url, "/chat/completions") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	return nil
}

func (c *Client) makeAPIRequest(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", "Screen Reader LLM")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}

	var response ChatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("API error: %s (type: %s, code: %v)", response.Error.Message, response.Error.Type, response.Error.Code)
	}
	return &response, nil
}

// statusError extracts the upstream error message from a non-2xx response.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload ChatResponse
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		msg = payload.Error.Message
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
