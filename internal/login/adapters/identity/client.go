package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/login/ports"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/resilience"
)

const (
	loginPath          = "/umbraco/management/api/v1/security/back-office/login"
	forgotPasswordPath = "/umbraco/management/api/v1/security/forgot-password"
	resetPasswordPath  = "/umbraco/management/api/v1/security/forgot-password/reset"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the back-office identity endpoints. Every call goes through
// a circuit breaker; rejected credentials and MFA prompts do not count as
// failures, only transport errors and 5xx answers do.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	logger     logger.Logger
}

var _ ports.IdentityProvider = (*Client)(nil)

func NewClient(cfg Config, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig("identity-provider")
	breakerCfg.IsSuccessful = func(err error) bool {
		return err == nil || ports.IsRejected(err) || errors.Is(err, ports.ErrMFARequired)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
		breaker:    resilience.NewCircuitBreaker(breakerCfg, log),
		logger:     log,
	}
}

func (c *Client) Login(ctx context.Context, req ports.LoginRequest) (ports.LoginResponse, error) {
	return resilience.Execute(ctx, c.breaker, func(ctx context.Context) (ports.LoginResponse, error) {
		var resp ports.LoginResponse
		err := c.post(ctx, loginPath, req, &resp)
		return resp, err
	})
}

func (c *Client) RequestPasswordReset(ctx context.Context, username string) error {
	_, err := resilience.Execute(ctx, c.breaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.post(ctx, forgotPasswordPath, map[string]string{"email": username}, nil)
	})
	return err
}

func (c *Client) SetNewPassword(ctx context.Context, req ports.NewPasswordRequest) error {
	_, err := resilience.Execute(ctx, c.breaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.post(ctx, resetPasswordPath, req, nil)
	})
	return err
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read identity provider response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode identity provider response: %w", err)
			}
		}
		return nil
	case resp.StatusCode == http.StatusPaymentRequired:
		return ports.ErrMFARequired
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ports.RejectedError{Status: resp.StatusCode, Message: errorMessage(data)}
	default:
		c.logger.Warn("Identity provider returned an error", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}
}

// errorMessage pulls a human readable message out of an error body, which
// is either {"error": ".."} or a problem details document. Any other body,
// such as an HTML error page, yields "" and the generic rejection text.
func errorMessage(data []byte) string {
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	for _, m := range []string{body.Error, body.Detail, body.Title} {
		if m = strings.TrimSpace(m); m != "" {
			return m
		}
	}
	return ""
}
