package youtube

import (
	"regexp"
	"strconv"

	"streamwatch/internal/watch"
)

// shortMaxSeconds is the classification boundary between shorts and
// regular uploads.
const shortMaxSeconds = 120

var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration converts an ISO 8601 duration ("PT4M13S") to seconds.
// Malformed input parses as 0.
func ParseISODuration(d string) int {
	m := isoDurationRe.FindStringSubmatch(d)
	if m == nil {
		return 0
	}
	atoi := func(s string) int {
		if s == "" {
			return 0
		}
		n, _ := strconv.Atoi(s)
		return n
	}
	return atoi(m[1])*3600 + atoi(m[2])*60 + atoi(m[3])
}

// Classify maps video metadata onto a content type. Broadcast state wins
// over duration: an upcoming premiere or a running live stream is never
// a short, no matter how the duration field reads.
func Classify(d *VideoDetails) watch.ContentType {
	switch d.BroadcastState {
	case "upcoming":
		return watch.TypePremiere
	case "live":
		return watch.TypeLive
	}
	if ParseISODuration(d.Duration) <= shortMaxSeconds {
		return watch.TypeShort
	}
	return watch.TypeVideo
}

// WatchURL builds the canonical link for a classified upload.
func WatchURL(videoID string, t watch.ContentType) string {
	if t == watch.TypeShort {
		return "https://www.youtube.com/shorts/" + videoID
	}
	return "https://www.youtube.com/watch?v=" + videoID
}
