// Package notify renders tenant message templates and delivers them to
// webhook endpoints, recording one delivery outcome per attempt.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "streamwatch/pkg/logx"
)

type Config struct {
	// Username and AvatarURL decorate the webhook payload.
	Username  string
	AvatarURL string

	// RatePerSec bounds outbound webhook sends across all targets.
	RatePerSec int
	Timeout    time.Duration
}

// Dispatcher posts rendered messages to webhook endpoints. A non-2xx
// response or a transport error is a failure; no retries are attempted.
type Dispatcher struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

type webhookPayload struct {
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func NewDispatcher(cfg Config, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
	}
}

// Deliver sends one message to the webhook. The returned error carries
// the response status and body text on rejection.
func (d *Dispatcher) Deliver(ctx context.Context, webhookURL, message string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(webhookPayload{
		Content:   message,
		Username:  d.cfg.Username,
		AvatarURL: d.cfg.AvatarURL,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("webhook rejected: %d %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
