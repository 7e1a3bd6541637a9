// Package upstox is a minimal client for the Upstox HTTP API covering the
// surface this project needs: the OAuth2 login flow with TOTP assistance,
// historical candle retrieval, and the NSE instrument master download.
package upstox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

const (
	defaultBaseURL    = "https://api.upstox.com"
	authorizePath     = "/v2/login/authorization/dialog"
	tokenPath         = "/v2/login/authorization/token"
	profilePath       = "/v2/user/profile"
	historicalPath    = "/v3/historical-candle"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
)

// Config carries credentials and tuning for the client.
type Config struct {
	APIKey      string
	APISecret   string
	RedirectURI string
	TOTPSecret  string

	BaseURL    string        // default: https://api.upstox.com
	Timeout    time.Duration // default: 30s
	MaxRetries int           // default: 3
	RetryDelay time.Duration // default: 2s
}

// Client talks to the Upstox REST API. Safe for concurrent use once the
// access token is set.
type Client struct {
	apiKey      string
	apiSecret   string
	redirectURI string
	totpSecret  string

	baseURL     string
	maxRetries  int
	retryDelay  time.Duration
	accessToken string

	httpClient *http.Client
}

// New builds a Client, filling zero config fields with defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Client{
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		redirectURI: cfg.RedirectURI,
		totpSecret:  cfg.TOTPSecret,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// SetAccessToken installs a previously obtained token.
func (c *Client) SetAccessToken(token string) { c.accessToken = token }

// AuthorizationURL returns the OAuth dialog URL the user must open to grant
// access. The state parameter ties the callback to this run.
func (c *Client) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.apiKey)
	q.Set("redirect_uri", c.redirectURI)
	q.Set("state", state)
	return c.baseURL + authorizePath + "?" + q.Encode()
}

// CurrentTOTP returns the 2FA code for the configured secret, along with the
// seconds left before it rotates.
func (c *Client) CurrentTOTP() (code string, remaining int, err error) {
	now := time.Now()
	code, err = totp.GenerateCode(c.totpSecret, now)
	if err != nil {
		return "", 0, fmt.Errorf("generate totp: %w", err)
	}
	return code, 30 - int(now.Unix()%30), nil
}

// ExchangeCode trades an authorization code for an access token and stores it
// on the client.
func (c *Client) ExchangeCode(ctx context.Context, authCode string) (*Token, error) {
	form := url.Values{}
	form.Set("code", authCode)
	form.Set("client_id", c.apiKey)
	form.Set("client_secret", c.apiSecret)
	form.Set("redirect_uri", c.redirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("token exchange: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string   `json:"access_token"`
		UserID      string   `json:"user_id"`
		UserName    string   `json:"user_name"`
		Email       string   `json:"email"`
		Exchanges   []string `json:"exchanges"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("token exchange: decode: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token exchange: response carried no access token")
	}

	tok := &Token{
		AccessToken: payload.AccessToken,
		UserID:      payload.UserID,
		UserName:    payload.UserName,
		Email:       payload.Email,
		Exchanges:   payload.Exchanges,
		Timestamp:   time.Now(),
	}
	c.accessToken = tok.AccessToken
	return tok, nil
}

// ValidateToken probes the profile endpoint to check the stored token is
// still accepted. A 401 means the token has expired.
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+profilePath, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("validate token: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusUnauthorized:
		return false, nil
	default:
		return false, fmt.Errorf("validate token: unexpected status %d", resp.StatusCode)
	}
}

// RawCandle is one row of Upstox candle data, delivered on the wire as a
// positional array: [timestamp, open, high, low, close, volume, openInterest].
type RawCandle struct {
	Timestamp    time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64
	OpenInterest int64
}

func (rc *RawCandle) UnmarshalJSON(data []byte) error {
	var row []json.RawMessage
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	if len(row) < 6 {
		return fmt.Errorf("candle row has %d fields, need at least 6", len(row))
	}
	var ts string
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return fmt.Errorf("candle timestamp: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return fmt.Errorf("candle timestamp %q: %w", ts, err)
	}
	rc.Timestamp = parsed
	for i, dst := range []*float64{&rc.Open, &rc.High, &rc.Low, &rc.Close} {
		if err := json.Unmarshal(row[i+1], dst); err != nil {
			return fmt.Errorf("candle field %d: %w", i+1, err)
		}
	}
	var vol float64
	if err := json.Unmarshal(row[5], &vol); err != nil {
		return fmt.Errorf("candle volume: %w", err)
	}
	rc.Volume = int64(vol)
	if len(row) > 6 {
		var oi float64
		if err := json.Unmarshal(row[6], &oi); err == nil {
			rc.OpenInterest = int64(oi)
		}
	}
	return nil
}

// HistoricalCandles fetches candles for one instrument over [from, to].
// unit is "minutes" or "days"; interval is the bar width in that unit.
// Rate-limit responses are retried with linear backoff up to MaxRetries.
func (c *Client) HistoricalCandles(ctx context.Context, instrumentKey, unit string, interval int, from, to time.Time) ([]RawCandle, error) {
	endpoint := fmt.Sprintf("%s%s/%s/%s/%d/%s/%s",
		c.baseURL, historicalPath,
		url.PathEscape(instrumentKey), unit, interval,
		to.Format("2006-01-02"), from.Format("2006-01-02"))

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		candles, retryable, err := c.fetchCandlesOnce(ctx, endpoint)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		log.Printf("[upstox] %s attempt %d/%d failed: %v", instrumentKey, attempt+1, c.maxRetries, err)
	}
	return nil, fmt.Errorf("historical candles for %s: %w", instrumentKey, lastErr)
}

func (c *Client) fetchCandlesOnce(ctx context.Context, endpoint string) (candles []RawCandle, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("rate limited")
	case resp.StatusCode == http.StatusUnauthorized:
		io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("unauthorized: token expired or invalid")
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("status %d", resp.StatusCode)
	}

	var payload struct {
		Status string `json:"status"`
		Data   struct {
			Candles []RawCandle `json:"candles"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, true, fmt.Errorf("decode: %w", err)
	}
	if payload.Status != "success" {
		return nil, false, fmt.Errorf("api status %q", payload.Status)
	}
	return payload.Data.Candles, false, nil
}
