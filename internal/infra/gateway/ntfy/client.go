package ntfy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andrewinci/actual-sync/pkg/logger"
)

const requestTimeout = 10 * time.Second

// Config points the client at a topic on an ntfy server
type Config struct {
	URL   string
	Topic string
	Token string
}

// Message is one ntfy publication
type Message struct {
	Title    string
	Body     string
	Tags     []string
	Priority int // 1..5, 0 leaves the server default
}

// Client publishes messages to one ntfy topic
type Client struct {
	topicURL   string
	token      string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new ntfy client
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid ntfy url: %w", err)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("ntfy topic is required")
	}

	return &Client{
		topicURL: base.ResolveReference(&url.URL{Path: url.PathEscape(cfg.Topic)}).String(),
		token:    cfg.Token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: log.WithField("component", "ntfy"),
	}, nil
}

// Publish posts msg to the topic
func (c *Client) Publish(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.topicURL, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Title", msg.Title)
	if len(msg.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.Tags, ","))
	}
	if msg.Priority > 0 {
		req.Header.Set("Priority", strconv.Itoa(msg.Priority))
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	c.logger.Debug("message published", "title", msg.Title, "status_code", resp.StatusCode)
	return nil
}

// APIError is a non-2xx answer from the ntfy server
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ntfy error: status %d, body: %s", e.StatusCode, e.Body)
}
