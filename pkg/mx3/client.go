// Package mx3 is a small client for the SRG SSR mx3 API: it authenticates
// with OAuth2 client credentials and fetches the live performances of one
// canton at a time.
package mx3

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/hazyhaar/swiss-bandmap/pkg/gig"
)

// Cantons are the 26 Swiss canton codes accepted as state_code.
var Cantons = []string{
	"ZH", "BE", "LU", "UR", "SZ", "OW", "NW", "GL", "ZG", "FR",
	"SO", "BS", "BL", "SH", "AR", "AI", "SG", "GR", "AG", "TG",
	"TI", "VD", "VS", "NE", "GE", "JU",
}

const (
	DefaultBaseURL  = "https://api.srgssr.ch/mx3/v2"
	DefaultTokenURL = "https://api.srgssr.ch/oauth/v1/accesstoken"

	// tokenEarlyExpiry refreshes the access token one hour before it lapses.
	tokenEarlyExpiry = time.Hour
	maxResponseBytes = 32 << 20
)

var (
	ErrMissingCredentials = errors.New("mx3: CONSUMER_KEY and CONSUMER_SECRET must be set")
	ErrStatus             = errors.New("mx3: response status not Ok")
)

// FetchError reports a failed fetch for one region.
type FetchError struct {
	Region string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch gigs for %s: %v", e.Region, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Config holds connection settings. Credentials come from the environment,
// never from the config file.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	TokenURL       string        `yaml:"token_url"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	Backoff        time.Duration `yaml:"backoff"`
	ConsumerKey    string        `yaml:"-"`
	ConsumerSecret string        `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// Client fetches performances from mx3.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a client. The access token is requested lazily on the first
// call and reused until one hour before its expiry.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, ErrMissingCredentials
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	base := &http.Client{Timeout: cfg.Timeout}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ConsumerKey,
		ClientSecret: cfg.ConsumerSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	src := oauth2.ReuseTokenSourceWithExpiry(nil, cc.TokenSource(tokenCtx), tokenEarlyExpiry)

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &oauth2.Transport{Source: src, Base: base.Transport},
		},
		logger: logger,
	}, nil
}

type gigsResponse struct {
	Response struct {
		Status       string    `json:"status"`
		Performances []gig.Raw `json:"performances"`
	} `json:"response"`
}

// FetchGigs returns the performances listed for region. Each record is tagged
// with "canton" set to region. Transport errors, 429 and 5xx responses are
// retried with exponential backoff; any failure is a *FetchError.
func (c *Client) FetchGigs(ctx context.Context, region string) ([]gig.Raw, error) {
	endpoint := c.cfg.BaseURL + "/gigs?" + url.Values{"state_code": {region}}.Encode()

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &FetchError{Region: region, Err: ctx.Err()}
			case <-time.After(c.cfg.Backoff << uint(attempt-1)):
			}
			c.logger.Debug("retrying mx3 request", "region", region, "attempt", attempt+1, "error", lastErr)
		}

		body, retry, err := c.get(ctx, endpoint)
		if err != nil {
			lastErr = err
			if !retry || ctx.Err() != nil {
				break
			}
			continue
		}

		var resp gigsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &FetchError{Region: region, Err: fmt.Errorf("decode response: %w", err)}
		}
		if resp.Response.Status != "Ok" {
			return nil, &FetchError{Region: region, Err: fmt.Errorf("%w: %q", ErrStatus, resp.Response.Status)}
		}

		gigs := resp.Response.Performances
		if gigs == nil {
			gigs = []gig.Raw{}
		}
		for _, g := range gigs {
			if g != nil {
				g["canton"] = region
			}
		}
		c.logger.Info("fetched gigs", "region", region, "count", len(gigs))
		return gigs, nil
	}
	return nil, &FetchError{Region: region, Err: lastErr}
}

// get performs one request. The bool reports whether the failure is worth
// retrying.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil && rErr.Response.StatusCode < 500 {
			return nil, false, fmt.Errorf("access token: %w", err)
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}
	return body, false, nil
}
