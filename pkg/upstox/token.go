package upstox

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Token is the persisted outcome of a login. Upstox tokens are single-day:
// every token dies at 03:30 IST the morning after it was issued.
type Token struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id,omitempty"`
	UserName    string    `json:"user_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Exchanges   []string  `json:"exchanges,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

var istZone = time.FixedZone("IST", 5*3600+1800)

// ExpiresAt returns the moment this token stops working: 03:30 IST strictly
// after the issue time.
func (t *Token) ExpiresAt() time.Time {
	issued := t.Timestamp.In(istZone)
	expiry := time.Date(issued.Year(), issued.Month(), issued.Day(), 3, 30, 0, 0, istZone)
	if !issued.Before(expiry) {
		expiry = expiry.AddDate(0, 0, 1)
	}
	return expiry
}

// LikelyExpired reports whether the token should be treated as dead without
// asking the API.
func (t *Token) LikelyExpired(now time.Time) bool {
	if t.AccessToken == "" || t.Timestamp.IsZero() {
		return true
	}
	return !now.Before(t.ExpiresAt())
}

// LoadToken reads a token file saved by SaveToken.
func LoadToken(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("load token: parse %s: %w", path, err)
	}
	if t.AccessToken == "" {
		return nil, fmt.Errorf("load token: %s carries no access token", path)
	}
	return &t, nil
}

// SaveToken writes the token to disk with owner-only permissions.
func SaveToken(path string, t *Token) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
