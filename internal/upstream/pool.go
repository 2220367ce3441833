// Package upstream provides shared plumbing for upstream API access:
// a rotating credential pool and the error taxonomy used to decide
// between failover and fail-fast.
package upstream

import (
	"context"
	"fmt"
	"strings"
	"sync"

	logx "streamwatch/pkg/logx"
)

// Pool rotates a fixed list of interchangeable API credentials.
//
// The rotation cursor is guarded by a short-held mutex so one pool can
// be shared by concurrent sweeps. A resolution tries each credential at
// most once; when all fail the cursor resets to zero and the caller gets
// ErrExhausted.
type Pool struct {
	mu     sync.Mutex
	keys   []string
	cursor int

	log logx.Logger
}

func NewPool(keys []string, log logx.Logger) *Pool {
	if log.IsZero() {
		log = logx.Nop()
	}
	clean := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	return &Pool{keys: clean, log: log}
}

// Size reports how many credentials the pool holds.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

func (p *Pool) next() (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", 0
	}
	k := p.keys[p.cursor]
	i := p.cursor
	p.cursor = (p.cursor + 1) % len(p.keys)
	return k, i
}

func (p *Pool) reset() {
	p.mu.Lock()
	p.cursor = 0
	p.mu.Unlock()
}

// Resolve runs fn with rotating credentials until it succeeds.
//
// Failover rules:
//   - capacity errors (quota/rate limit) advance to the next key
//   - transport and 5xx errors advance to the next key
//   - any other 4xx fails immediately without trying further keys
//
// No key is used more than once per resolution. When every key has
// failed, the cursor resets and the last error is returned wrapped in
// ErrExhausted.
func (p *Pool) Resolve(ctx context.Context, fn func(ctx context.Context, key string) error) error {
	attempts := p.Size()
	if attempts == 0 {
		return ErrNoCredentials
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		key, idx := p.next()
		err := fn(ctx, key)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsClient(err) {
			return err
		}
		// Capacity or transient: rotate to the next key.
		p.log.Debug("credential failed, rotating",
			logx.Int("key", idx), logx.Int("attempt", attempt), logx.Err(err))
	}

	p.reset()
	return fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}
