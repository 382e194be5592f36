package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking-agent/internal/messaging"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// Config controls how the gateway client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Instance   string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client calls the Evolution API for one WhatsApp instance.
type Client struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

var _ messaging.Sender = (*Client)(nil)

// New creates a configured Client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("evolution: base URL is required")
	}
	if strings.TrimSpace(cfg.Instance) == "" {
		return nil, errors.New("evolution: instance is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		instance:   cfg.Instance,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
	}, nil
}

// SendText delivers a text message to a phone address.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	number := messaging.AddressFromJID(to)
	if number == "" {
		return errors.New("evolution: recipient required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("evolution: body required")
	}
	payload := sendTextRequest{Number: number, Text: body}
	_, err := c.invoke(ctx, http.MethodPost, "/message/sendText/"+url.PathEscape(c.instance), payload)
	return err
}

// MarkRead acknowledges an inbound message.
func (c *Client) MarkRead(ctx context.Context, remoteJID, messageID string) error {
	payload := markReadRequest{ReadMessages: []readMessage{{RemoteJID: remoteJID, FromMe: false, ID: messageID}}}
	_, err := c.invoke(ctx, http.MethodPost, "/chat/markMessageAsRead/"+url.PathEscape(c.instance), payload)
	return err
}

// SendTyping shows the composing indicator for duration milliseconds.
func (c *Client) SendTyping(ctx context.Context, to string, duration int) error {
	payload := presenceRequest{
		Number:  messaging.AddressFromJID(to),
		Options: presenceOptions{Delay: duration, Presence: "composing"},
	}
	_, err := c.invoke(ctx, http.MethodPost, "/chat/sendPresence/"+url.PathEscape(c.instance), payload)
	return err
}

func (c *Client) invoke(ctx context.Context, method, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("evolution: marshal body: %w", err)
	}
	fullURL := c.baseURL + path
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("evolution: build request: %w", err)
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("evolution: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("evolution: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("evolution: request failed without response")
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoff * time.Duration(1<<attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	c.logger.Warn("evolution retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("evolution: status %d: %s", e.StatusCode, e.Body)
}
