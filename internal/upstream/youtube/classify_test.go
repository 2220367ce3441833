package youtube

import (
	"testing"

	"streamwatch/internal/watch"
)

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"PT4M13S", 253},
		{"PT1H2M3S", 3723},
		{"PT59S", 59},
		{"PT2M", 120},
		{"PT1H", 3600},
		{"", 0},
		{"P1DT2H", 0}, // days not produced for uploads; malformed here
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := ParseISODuration(tc.in); got != tc.want {
			t.Errorf("ParseISODuration(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		d    VideoDetails
		want watch.ContentType
	}{
		{"upcoming premiere", VideoDetails{BroadcastState: "upcoming", Duration: "PT10M"}, watch.TypePremiere},
		{"running live", VideoDetails{BroadcastState: "live", Duration: "PT30S"}, watch.TypeLive},
		{"short at boundary", VideoDetails{BroadcastState: "none", Duration: "PT2M"}, watch.TypeShort},
		{"regular video", VideoDetails{BroadcastState: "none", Duration: "PT2M1S"}, watch.TypeVideo},
		{"zero duration is short", VideoDetails{BroadcastState: "none", Duration: ""}, watch.TypeShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(&tc.d); got != tc.want {
				t.Fatalf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestWatchURL(t *testing.T) {
	if got := WatchURL("abc", watch.TypeShort); got != "https://www.youtube.com/shorts/abc" {
		t.Fatalf("short url: %s", got)
	}
	if got := WatchURL("abc", watch.TypeVideo); got != "https://www.youtube.com/watch?v=abc" {
		t.Fatalf("video url: %s", got)
	}
	if got := WatchURL("abc", watch.TypeLive); got != "https://www.youtube.com/watch?v=abc" {
		t.Fatalf("live url: %s", got)
	}
}
