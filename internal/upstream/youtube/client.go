// Package youtube reads the latest upload of a channel through the
// Data API v3, with API keys rotated by the shared credential pool.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streamwatch/internal/upstream"
	logx "streamwatch/pkg/logx"
)

const defaultAPIBase = "https://www.googleapis.com/youtube/v3"

// ErrNotFound is returned when a channel or video id resolves to nothing.
var ErrNotFound = errors.New("youtube: not found")

type Config struct {
	APIKeys []string
	APIBase string // override for tests
	Timeout time.Duration
}

type Client struct {
	pool *upstream.Pool
	http *http.Client
	base string
	log  logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimSuffix(cfg.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		pool: upstream.NewPool(cfg.APIKeys, log.With(logx.String("comp", "youtube.pool"))),
		http: &http.Client{Timeout: timeout},
		base: base,
		log:  log,
	}
}

// Configured reports whether at least one API key is available.
func (c *Client) Configured() bool { return c.pool.Size() > 0 }

// UploadsPlaylist resolves the channel's "all uploads" playlist id.
func (c *Client) UploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	var resp channelListResponse
	err := c.get(ctx, "channels", url.Values{
		"part": {"contentDetails"},
		"id":   {channelID},
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

// LatestUpload returns the newest entry of an uploads playlist, or nil
// when the playlist is empty.
func (c *Client) LatestUpload(ctx context.Context, playlistID string) (id, title string, publishedAt time.Time, err error) {
	var resp playlistItemsResponse
	err = c.get(ctx, "playlistItems", url.Values{
		"part":       {"snippet"},
		"playlistId": {playlistID},
		"maxResults": {"1"},
	}, &resp)
	if err != nil {
		return "", "", time.Time{}, err
	}
	if len(resp.Items) == 0 {
		return "", "", time.Time{}, nil
	}
	sn := resp.Items[0].Snippet
	ts, _ := time.Parse(time.RFC3339, sn.PublishedAt)
	return sn.ResourceID.VideoID, sn.Title, ts, nil
}

// Video fetches the metadata used for content classification.
func (c *Client) Video(ctx context.Context, videoID string) (*VideoDetails, error) {
	var resp videoListResponse
	err := c.get(ctx, "videos", url.Values{
		"part": {"contentDetails,snippet,liveStreamingDetails"},
		"id":   {videoID},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}
	it := resp.Items[0]
	return &VideoDetails{
		Duration:           it.ContentDetails.Duration,
		BroadcastState:     it.Snippet.LiveBroadcastContent,
		ScheduledStartTime: it.LiveStreamingDetails.ScheduledStartTime,
		ActualStartTime:    it.LiveStreamingDetails.ActualStartTime,
	}, nil
}

// get runs one Data API request through the credential pool.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	return c.pool.Resolve(ctx, func(ctx context.Context, key string) error {
		q := url.Values{}
		for k, vs := range params {
			q[k] = vs
		}
		q.Set("key", key)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+endpoint+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
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
			var ae apiError
			_ = json.Unmarshal(body, &ae)
			se := &upstream.StatusError{Status: resp.StatusCode, Message: ae.Error.Message}
			if len(ae.Error.Errors) > 0 {
				se.Code = ae.Error.Errors[0].Reason
			}
			if se.Message == "" {
				se.Message = strings.TrimSpace(string(body))
			}
			return se
		}
		return json.Unmarshal(body, out)
	})
}
