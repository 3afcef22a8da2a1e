package healthcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	NoSniffCheckID   = "1CF27DB3-EFC0-41D7-A1BB-EA912064E071"
	GroupSecurity    = "Security"
	noSniffReadMore  = "https://umbra.co/healthchecks-no-sniff"
	defaultUserAgent = "umbraco-healthcheck"
)

type HeaderCheckConfig struct {
	ID          string
	Name        string
	Description string
	Group       string
	ReadMore    string
	// Header must be present on the site's response. When Value is set the
	// header must also carry it, compared case-insensitively.
	Header string
	Value  string
}

// HeaderCheck requests the site root and looks for a response header.
type HeaderCheck struct {
	cfg     HeaderCheckConfig
	siteURL string
	client  *http.Client
	now     func() time.Time
}

func NewHeaderCheck(cfg HeaderCheckConfig, siteURL string, client *http.Client) *HeaderCheck {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HeaderCheck{
		cfg:     cfg,
		siteURL: siteURL,
		client:  client,
		now:     time.Now,
	}
}

// NewNoSniffCheck checks for the header that stops browsers from MIME sniffing.
func NewNoSniffCheck(siteURL string, client *http.Client) *HeaderCheck {
	return NewHeaderCheck(HeaderCheckConfig{
		ID:          NoSniffCheckID,
		Name:        "Content/MIME Sniffing Protection",
		Description: "Checks that your site contains a header used to protect against MIME sniffing vulnerabilities.",
		Group:       GroupSecurity,
		ReadMore:    noSniffReadMore,
		Header:      "X-Content-Type-Options",
		Value:       "nosniff",
	}, siteURL, client)
}

func (c *HeaderCheck) ID() string { return c.cfg.ID }
func (c *HeaderCheck) Name() string { return c.cfg.Name }
func (c *HeaderCheck) Description() string { return c.cfg.Description }
func (c *HeaderCheck) Group() string { return c.cfg.Group }

func (c *HeaderCheck) Run(ctx context.Context) Result {
	res := Result{
		CheckID:      c.cfg.ID,
		Name:         c.cfg.Name,
		Group:        c.cfg.Group,
		ReadMoreLink: c.cfg.ReadMore,
		CheckedAt:    c.now().UTC(),
	}

	found, err := c.headerPresent(ctx)
	switch {
	case err != nil:
		res.Status = StatusError
		res.Message = fmt.Sprintf("Could not check the %s header: %v", c.cfg.Header, err)
	case found:
		res.Status = StatusSuccess
		res.Message = fmt.Sprintf("The %s header was found.", c.cfg.Header)
	default:
		res.Status = StatusError
		res.Message = fmt.Sprintf("The %s header was not found.", c.cfg.Header)
	}
	return res
}

func (c *HeaderCheck) headerPresent(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.siteURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	values := resp.Header.Values(c.cfg.Header)
	if len(values) == 0 {
		return false, nil
	}
	if c.cfg.Value == "" {
		return true, nil
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), c.cfg.Value) {
			return true, nil
		}
	}
	return false, nil
}
