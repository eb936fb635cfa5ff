// Package monday executes named GraphQL operations against the monday.com v2 API.
package monday

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

const (
	DefaultURL        = "https://api.monday.com/v2"
	APIVersion        = "2023-10"
	maxResponseSize   = 8 * 1024 * 1024
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
)

// Options configures a Client.
type Options struct {
	URL         string
	Token       string
	Timeout     time.Duration
	MaxAttempts int
	HTTPClient  *http.Client
	Logger      *log.Logger
}

// Client is the remote graph-query capability.
type Client struct {
	url         string
	token       string
	timeout     time.Duration
	maxAttempts int
	http        *http.Client
	log         *log.Logger
	newBackOff  func() backoff.BackOff
}

// New creates a Client. Zero values in opts fall back to defaults.
func New(opts Options) *Client {
	c := &Client{
		url:         opts.URL,
		token:       opts.Token,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		http:        opts.HTTPClient,
		log:         opts.Logger,
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxRetries
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = log.StandardLogger()
	}
	c.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		return b
	}
	return c
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type response struct {
	Data         sonic.NoCopyRawMessage `json:"data"`
	Errors       []gqlError             `json:"errors"`
	ErrorMessage string                 `json:"error_message"`
}

// Execute runs the named operation with vars and decodes the data object into
// out. Transient failures are retried with exponential backoff; remote
// GraphQL errors are returned as *domain.RemoteError without retrying.
func (c *Client) Execute(ctx context.Context, operation string, vars map[string]any, out any) error {
	query, ok := operations[operation]
	if !ok {
		return fmt.Errorf("unknown operation %q", operation)
	}
	body, err := sonic.Marshal(request{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encode %s: %w", operation, err)
	}

	var data []byte
	attempt := 0
	call := func() error {
		attempt++
		d, err := c.do(ctx, operation, body)
		if err != nil {
			var remote *domain.RemoteError
			if errors.As(err, &remote) && !remote.Temporary() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.log.WithError(err).WithFields(log.Fields{"operation": operation, "attempt": attempt}).Warn("remote call failed")
			return err
		}
		data = d
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxAttempts-1)), ctx)
	if err := backoff.Retry(call, policy); err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", operation, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, operation string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API-Version", APIVersion)
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", operation, err)
	}

	var decoded response
	decodeErr := sonic.Unmarshal(raw, &decoded)
	if resp.StatusCode >= http.StatusBadRequest {
		remote := &domain.RemoteError{Operation: operation, StatusCode: resp.StatusCode}
		if decodeErr == nil {
			remote.Messages = decoded.messages()
		}
		if len(remote.Messages) == 0 {
			remote.Messages = []string{http.StatusText(resp.StatusCode)}
		}
		return nil, remote
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%s: decode envelope: %w", operation, decodeErr)
	}
	if msgs := decoded.messages(); len(msgs) > 0 {
		return nil, &domain.RemoteError{Operation: operation, Messages: msgs}
	}
	return decoded.Data, nil
}

func (r response) messages() []string {
	msgs := make([]string, 0, len(r.Errors)+1)
	for _, e := range r.Errors {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
		}
	}
	if r.ErrorMessage != "" {
		msgs = append(msgs, r.ErrorMessage)
	}
	return msgs
}
