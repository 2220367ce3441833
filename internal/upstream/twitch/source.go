package twitch

import (
	"context"
	"fmt"
	"time"

	"streamwatch/internal/watch"
	logx "streamwatch/pkg/logx"
)

// Source adapts the Helix client to the poller's fetch capability.
type Source struct {
	client *Client
	log    logx.Logger
}

func NewSource(client *Client, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{client: client, log: log}
}

func (s *Source) Platform() watch.Platform { return watch.PlatformTwitch }

func (s *Source) Configured() bool { return s.client.Configured() }

// FetchLatest returns the streamer's current live broadcast as a
// stream-typed item keyed by its start timestamp, or nil when offline.
func (s *Source) FetchLatest(ctx context.Context, t *watch.Target) (*watch.Item, error) {
	stream, err := s.client.StreamStatus(ctx, t.Identity)
	if err != nil {
		return nil, fmt.Errorf("stream status: %w", err)
	}
	if stream == nil {
		return nil, nil
	}

	startedAt, err := time.Parse(time.RFC3339, stream.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at %q: %w", stream.StartedAt, err)
	}

	streamer := stream.UserName
	if streamer == "" {
		// Helix occasionally omits the display name on streams; fall
		// back to a profile lookup, then to the login itself.
		if u, err := s.client.User(ctx, t.Identity); err == nil && u != nil {
			streamer = u.DisplayName
		}
	}
	if streamer == "" {
		streamer = t.Identity
	}

	return &watch.Item{
		TargetID:    t.ID,
		Platform:    watch.PlatformTwitch,
		ContentID:   stream.ID,
		Title:       stream.Title,
		URL:         "https://twitch.tv/" + stream.UserLogin,
		PublishedAt: startedAt,
		Type:        watch.TypeStream,
		Streamer:    streamer,
	}, nil
}
