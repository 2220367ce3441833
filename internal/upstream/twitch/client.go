// Package twitch reads live-stream status through the Helix API using a
// cached app access token.
package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"streamwatch/internal/upstream"
	logx "streamwatch/pkg/logx"
)

const (
	defaultAPIBase   = "https://api.twitch.tv/helix"
	defaultTokenBase = "https://id.twitch.tv/oauth2/token"
)

type Config struct {
	ClientID     string
	ClientSecret string

	APIBase   string // override for tests
	TokenBase string // override for tests
	Timeout   time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.APIBase) == "" {
		cfg.APIBase = defaultAPIBase
	}
	cfg.APIBase = strings.TrimSuffix(cfg.APIBase, "/")
	if strings.TrimSpace(cfg.TokenBase) == "" {
		cfg.TokenBase = defaultTokenBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}, log: log}
}

// Configured reports whether client credentials are present.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.ClientID) != "" && strings.TrimSpace(c.cfg.ClientSecret) != ""
}

// accessToken returns a cached app access token, refreshing it via
// client_credentials once 90% of its lifetime has passed.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", errors.New("twitch credentials not configured")
	}

	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.expiresAt) {
		tok := c.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenBase, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", helixStatusError(resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(float64(tr.ExpiresIn)*0.9) * time.Second)
	tok := c.token
	c.mu.Unlock()
	return tok, nil
}

// StreamStatus returns the login's current live stream, or nil when the
// streamer is offline.
func (c *Client) StreamStatus(ctx context.Context, userLogin string) (*Stream, error) {
	var resp streamsResponse
	if err := c.get(ctx, "/streams?user_login="+url.QueryEscape(userLogin), &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	st := resp.Data[0]
	if st.Type != "live" {
		return nil, nil
	}
	return &st, nil
}

// User looks up a streamer's profile (display name).
func (c *Client) User(ctx context.Context, userLogin string) (*User, error) {
	var resp usersResponse
	if err := c.get(ctx, "/users?login="+url.QueryEscape(userLogin), &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	u := resp.Data[0]
	return &u, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Client-Id", c.cfg.ClientID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == 401 {
			// Token may have been revoked early; drop the cache so the
			// next call re-authenticates.
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
		}
		return helixStatusError(resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}

func helixStatusError(status int, body []byte) error {
	var he struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &he)
	msg := he.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return &upstream.StatusError{Status: status, Code: he.Error, Message: msg}
}
