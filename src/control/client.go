package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"screen-reader-llm/src/history"
)

const clientTimeout = 3 * time.Second

// Client talks to a resident app's control server.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(port int) *Client {
	return &Client{
		baseURL: "http://" + net.JoinHostPort(residentHost, strconv.Itoa(port)),
		http:    &http.Client{Timeout: clientTimeout},
	}
}

// newClientForURL is used by tests to target an httptest server.
func newClientForURL(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, http: hc}
}

// Running reports whether a resident answers on port.
func Running(ctx context.Context, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	return NewClient(port).Health(ctx) == nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", http.StatusOK, nil)
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/status", http.StatusOK, &st)
	return st, err
}

func (c *Client) Trigger(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/trigger", http.StatusAccepted, nil)
}

func (c *Client) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/history/clear", http.StatusOK, nil)
}

func (c *Client) History(ctx context.Context) ([]history.Turn, error) {
	var turns []history.Turn
	err := c.do(ctx, http.MethodGet, "/history", http.StatusOK, &turns)
	return turns, err
}

func (c *Client) do(ctx context.Context, method, path string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("resident not reachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s", apiErr.Error.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
