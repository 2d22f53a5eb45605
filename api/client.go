package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/pkg/tlsutil"
)

// Retcodes that mean the server accepted the action
const (
	RetCodeOK    = 0
	RetCodeAsync = 1
)

// maxErrorBody bounds how much of a failed HTTP response is kept in errors
const maxErrorBody = 512

// Config holds the connection settings of the action API
type Config struct {
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	AccessToken string        `json:"access_token" yaml:"access_token"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	RateLimit   float64       `json:"rate_limit" yaml:"rate_limit"` // calls per second, 0 disables
	Burst       int           `json:"burst" yaml:"burst"`

	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`
}

// Response is the envelope every action returns
type Response struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"msg,omitempty"`
	Wording string          `json:"wording,omitempty"`
}

// IsAcceptable reports whether the action was executed or queued
func (r *Response) IsAcceptable() bool {
	return r.RetCode == RetCodeOK || r.RetCode == RetCodeAsync
}

// Client calls actions on the bot server's HTTP API.
// It is safe for concurrent use.
type Client struct {
	base       *url.URL
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for action results
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the API at cfg.BaseURL
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "check base URL")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "NewClient", "parse base URL")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("unsupported scheme %q", base.Scheme), "Client", "NewClient", "check base URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: timeout}
	if tlsConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		httpClient.Transport = transport
	}

	c := &Client{
		base:       base,
		token:      cfg.AccessToken,
		httpClient: httpClient,
		logger:     slog.Default(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "api")

	return c, nil
}

// Call posts payload as JSON to <base>/<action> and decodes the envelope.
// A response that is not acceptable is returned together with an error
// wrapping ErrActionFailed.
func (c *Client) Call(ctx context.Context, action string, payload any) (*Response, error) {
	if strings.TrimSpace(action) == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("empty action"), "Client", "Call", "validate action")
	}
	if payload == nil {
		payload = struct{}{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "Call", "marshal payload")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if errors.IsCancelled(err) {
				return nil, err
			}
			return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrRateLimited, err),
				"Client", "Call", "wait for rate limiter")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath(action).String(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "Call", "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("call %s: %w", action, ctx.Err())
		}
		return nil, errors.WrapTransient(err, "Client", "Call", fmt.Sprintf("post %s", action))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := fmt.Errorf("action %s: HTTP %d: %s", action, resp.StatusCode, bytes.TrimSpace(snippet))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrRateLimited, statusErr),
				"Client", "Call", "check status")
		case resp.StatusCode >= 500:
			return nil, errors.WrapTransient(statusErr, "Client", "Call", "check status")
		default:
			return nil, errors.WrapFatal(statusErr, "Client", "Call", "check status")
		}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Client", "Call", "decode response")
	}

	if !out.IsAcceptable() {
		return &out, errors.WrapInvalid(
			fmt.Errorf("%w: %s returned status %q retcode %d", errors.ErrActionFailed, action, out.Status, out.RetCode),
			"Client", "Call", "check retcode")
	}

	return &out, nil
}

// SetFriendAddRequest approves or rejects a friend request
func (c *Client) SetFriendAddRequest(ctx context.Context, flag string, approve bool, remark string) error {
	payload := map[string]any{
		"flag":    flag,
		"approve": approve,
		"remark":  remark,
	}
	if _, err := c.Call(ctx, "set_friend_add_request", payload); err != nil {
		return err
	}

	c.logger.Info("Friend request answered", "flag", flag, "approve", approve)
	return nil
}

// SetGroupAddRequest approves or rejects a group add or invite request.
// subType is the sub_type of the request post.
func (c *Client) SetGroupAddRequest(ctx context.Context, flag, subType string, approve bool, reason string) error {
	payload := map[string]any{
		"flag":     flag,
		"sub_type": subType,
		"type":     subType,
		"approve":  approve,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	if _, err := c.Call(ctx, "set_group_add_request", payload); err != nil {
		return err
	}

	c.logger.Info("Group request answered", "flag", flag, "sub_type", subType, "approve", approve)
	return nil
}

// HandleFriendRequest answers a friend request from a post merged with its response
func (c *Client) HandleFriendRequest(ctx context.Context, merged map[string]any) error {
	flag, err := requireFlag(merged, "HandleFriendRequest")
	if err != nil {
		return err
	}
	return c.SetFriendAddRequest(ctx, flag, boolField(merged, "approve", true), stringField(merged, "remark"))
}

// HandleGroupRequest answers a group request from a post merged with its response
func (c *Client) HandleGroupRequest(ctx context.Context, merged map[string]any) error {
	flag, err := requireFlag(merged, "HandleGroupRequest")
	if err != nil {
		return err
	}
	return c.SetGroupAddRequest(ctx, flag, stringField(merged, "sub_type"),
		boolField(merged, "approve", true), stringField(merged, "reason"))
}

// SendPrivateMessage sends a CQ code message to a user and returns its message ID
func (c *Client) SendPrivateMessage(ctx context.Context, userID int64, message string) (int64, error) {
	return c.send(ctx, "send_private_msg", map[string]any{"user_id": userID, "message": message})
}

// SendGroupMessage sends a CQ code message to a group and returns its message ID
func (c *Client) SendGroupMessage(ctx context.Context, groupID int64, message string) (int64, error) {
	return c.send(ctx, "send_group_msg", map[string]any{"group_id": groupID, "message": message})
}

func (c *Client) send(ctx context.Context, action string, payload map[string]any) (int64, error) {
	resp, err := c.Call(ctx, action, payload)
	if err != nil {
		return 0, err
	}

	var data struct {
		MessageID int64 `json:"message_id"`
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return 0, errors.WrapInvalid(err, "Client", "send", "decode message id")
		}
	}
	return data.MessageID, nil
}

func requireFlag(merged map[string]any, method string) (string, error) {
	flag := stringField(merged, "flag")
	if flag == "" {
		return "", errors.WrapInvalid(fmt.Errorf("%w: request has no flag", errors.ErrInvalidData),
			"Client", method, "read flag")
	}
	return flag, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func boolField(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}
