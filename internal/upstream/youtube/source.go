package youtube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"streamwatch/internal/watch"
	logx "streamwatch/pkg/logx"
)

const defaultFeedBase = "https://www.youtube.com/feeds/videos.xml"

// FeedIDSaver persists a resolved uploads playlist id back onto a target.
type FeedIDSaver interface {
	UpdateResolvedFeedID(ctx context.Context, targetID, feedID string) error
}

type SourceConfig struct {
	// FeedProbe enables the quota-free Atom feed check before any Data
	// API call is spent on a target.
	FeedProbe bool
	FeedBase  string // override for tests
}

// Source adapts the YouTube client to the poller's fetch capability.
type Source struct {
	client *Client
	saver  FeedIDSaver
	parser *gofeed.Parser
	cfg    SourceConfig
	log    logx.Logger
}

func NewSource(client *Client, saver FeedIDSaver, cfg SourceConfig, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.FeedBase) == "" {
		cfg.FeedBase = defaultFeedBase
	}
	return &Source{
		client: client,
		saver:  saver,
		parser: gofeed.NewParser(),
		cfg:    cfg,
		log:    log,
	}
}

func (s *Source) Platform() watch.Platform { return watch.PlatformYouTube }

func (s *Source) Configured() bool { return s.client.Configured() }

// FetchLatest returns the channel's newest upload as a classified item,
// or nil when there is nothing to report this tick.
//
// The uploads playlist id is resolved once per target and persisted;
// re-resolving is idempotent. When the Atom feed probe is enabled and
// the feed head matches the target's marker, the Data API is skipped
// entirely for this tick.
func (s *Source) FetchLatest(ctx context.Context, t *watch.Target) (*watch.Item, error) {
	if s.cfg.FeedProbe && t.LastSeenMarker != "" {
		head, err := s.feedHead(ctx, t.Identity)
		if err != nil {
			// Probe failures fall through to the Data API; the probe is
			// an optimization, never a gate.
			s.log.Debug("feed probe failed", logx.String("target", t.ID), logx.Err(err))
		} else if head != "" && head == t.LastSeenMarker {
			return nil, nil
		}
	}

	playlistID := t.ResolvedFeedID
	if playlistID == "" {
		var err error
		playlistID, err = s.client.UploadsPlaylist(ctx, t.Identity)
		if err != nil {
			return nil, fmt.Errorf("resolve uploads playlist: %w", err)
		}
		if err := s.saver.UpdateResolvedFeedID(ctx, t.ID, playlistID); err != nil {
			return nil, fmt.Errorf("persist uploads playlist: %w", err)
		}
		t.ResolvedFeedID = playlistID
	}

	videoID, title, publishedAt, err := s.client.LatestUpload(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("latest upload: %w", err)
	}
	if videoID == "" {
		return nil, nil
	}

	details, err := s.client.Video(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("video details: %w", err)
	}
	typ := Classify(details)

	return &watch.Item{
		TargetID:    t.ID,
		Platform:    watch.PlatformYouTube,
		ContentID:   videoID,
		Title:       title,
		URL:         WatchURL(videoID, typ),
		PublishedAt: publishedAt,
		Type:        typ,
	}, nil
}

// feedHead returns the newest video id in the channel's public Atom feed.
func (s *Source) feedHead(ctx context.Context, channelID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	feed, err := s.parser.ParseURLWithContext(s.cfg.FeedBase+"?channel_id="+channelID, ctx)
	if err != nil {
		return "", err
	}
	if len(feed.Items) == 0 {
		return "", nil
	}
	// Atom entry ids read "yt:video:<id>".
	id := feed.Items[0].GUID
	if i := strings.LastIndex(id, ":"); i >= 0 {
		id = id[i+1:]
	}
	return id, nil
}
