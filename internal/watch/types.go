package watch

import "time"

// Platform identifies which upstream a target is watched on.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTwitch  Platform = "twitch"
)

// ContentType classifies a fetched item.
type ContentType string

const (
	TypeVideo    ContentType = "video"
	TypeShort    ContentType = "short"
	TypeLive     ContentType = "live"
	TypePremiere ContentType = "premiere"
	TypeStream   ContentType = "stream"
)

// Filters selects which content types a target notifies on.
//
// YouTube targets use the per-type booleans; Twitch targets use only
// NotifyStream.
type Filters struct {
	NotifyVideo    bool `json:"notify_video"`
	NotifyShort    bool `json:"notify_short"`
	NotifyLive     bool `json:"notify_live"`
	NotifyPremiere bool `json:"notify_premiere"`
	NotifyStream   bool `json:"notify_stream"`
}

// Allows reports whether the filter set permits notifying on t.
func (f Filters) Allows(t ContentType) bool {
	switch t {
	case TypeVideo:
		return f.NotifyVideo
	case TypeShort:
		return f.NotifyShort
	case TypeLive:
		return f.NotifyLive
	case TypePremiere:
		return f.NotifyPremiere
	case TypeStream:
		return f.NotifyStream
	default:
		return false
	}
}

// Target is one tenant's subscription to one external channel/streamer
// plus delivery preferences.
//
// The engine mutates only LastSeenMarker and ResolvedFeedID; everything
// else is owned by tenant-facing configuration operations.
type Target struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	Platform Platform `json:"platform"`
	Name     string   `json:"name"`

	// Identity is the YouTube channel id or Twitch user login.
	Identity string `json:"identity"`

	// ResolvedFeedID caches the YouTube "uploads" playlist id once resolved.
	ResolvedFeedID string `json:"resolved_feed_id,omitempty"`

	WebhookURL string  `json:"webhook_url"`
	Filters    Filters `json:"filters"`
	Template   string  `json:"template"`

	// LastSeenMarker is the opaque last-seen content identity: the last
	// notified video id for YouTube, the last stream start timestamp
	// (RFC 3339) for Twitch. Empty means never seen.
	LastSeenMarker string `json:"last_seen_marker,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Item is the ephemeral result of one upstream read. It is consumed by
// the pipeline immediately and never persisted.
type Item struct {
	TargetID    string
	Platform    Platform
	ContentID   string
	Title       string
	URL         string
	PublishedAt time.Time
	Type        ContentType

	// Streamer is the display name of the live-stream owner (Twitch only).
	Streamer string
}

// Marker returns the novelty marker identity of the item: the content id
// for feed items, the stream start timestamp for stream items.
func (it *Item) Marker() string {
	if it.Type == TypeStream {
		return it.PublishedAt.UTC().Format(time.RFC3339)
	}
	return it.ContentID
}

// DeliveryOutcome records one dispatch attempt. Append-only.
type DeliveryOutcome struct {
	ID        string      `json:"id"`
	TargetID  string      `json:"target_id"`
	Platform  Platform    `json:"platform"`
	Type      ContentType `json:"type"`
	ContentID string      `json:"content_id"`
	Message   string      `json:"message"`
	SentAt    time.Time   `json:"sent_at"`
	Status    Status      `json:"status"`
	Error     string      `json:"error,omitempty"`
}

// Status is the result of a delivery attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)
