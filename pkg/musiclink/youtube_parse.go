package musiclink

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// youtubeWatchURL is the canonical watch URL prefix used for search results.
	youtubeWatchURL = "https://www.youtube.com/watch?v="
	// youtubeArtworkURL is the thumbnail URL pattern; %s is the video ID.
	youtubeArtworkURL = "https://i.ytimg.com/vi/%s/maxresdefault.jpg"

	itagOpusHigh = 251
	itagOpusLow  = 250

	searchResultsPath = "contents.twoColumnSearchResultsRenderer.primaryContents.sectionListRenderer.contents"
)

var (
	jsURLRegex = regexp.MustCompile(`"jsUrl":"(/s/player/[^"]+)"`)
)

// PlayerResponse is the part of ytInitialPlayerResponse needed for resolution.
type PlayerResponse struct {
	VideoID           string
	Title             string
	Author            string
	DurationMS        int64
	PlayabilityStatus string
	PlayabilityReason string
	Formats           []AdaptiveFormat
	PlayerJSURL       string
}

// AdaptiveFormat is one entry of streamingData.adaptiveFormats.
type AdaptiveFormat struct {
	Itag            int
	MimeType        string
	URL             string
	SignatureCipher string
}

// ParsePlayerResponse extracts the embedded player response from a watch page.
func ParsePlayerResponse(page string) (*PlayerResponse, error) {
	raw, err := extractAssignedJSON(page, "ytInitialPlayerResponse")
	if err != nil {
		return nil, err
	}

	data := gjson.ParseBytes(raw)
	details := data.Get("videoDetails")
	if !details.Exists() {
		return nil, errors.New("player response has no videoDetails")
	}

	player := &PlayerResponse{
		VideoID:           details.Get("videoId").String(),
		Title:             details.Get("title").String(),
		Author:            details.Get("author").String(),
		DurationMS:        details.Get("lengthSeconds").Int() * 1000,
		PlayabilityStatus: data.Get("playabilityStatus.status").String(),
		PlayabilityReason: data.Get("playabilityStatus.reason").String(),
		PlayerJSURL:       extractPlayerJSURL(page),
	}

	data.Get("streamingData.adaptiveFormats").ForEach(func(_, f gjson.Result) bool {
		cipher := f.Get("signatureCipher").String()
		if cipher == "" {
			cipher = f.Get("cipher").String()
		}
		player.Formats = append(player.Formats, AdaptiveFormat{
			Itag:            int(f.Get("itag").Int()),
			MimeType:        f.Get("mimeType").String(),
			URL:             f.Get("url").String(),
			SignatureCipher: cipher,
		})
		return true
	})

	return player, nil
}

// SelectAudioFormat picks the preferred audio-only stream: itag 251, then 250, then any Opus MIME type.
func SelectAudioFormat(formats []AdaptiveFormat) (AdaptiveFormat, bool) {
	for _, itag := range []int{itagOpusHigh, itagOpusLow} {
		for _, f := range formats {
			if f.Itag == itag {
				return f, true
			}
		}
	}
	for _, f := range formats {
		if strings.Contains(strings.ToLower(f.MimeType), "opus") {
			return f, true
		}
	}
	return AdaptiveFormat{}, false
}

// ParseSearchResults extracts video results from a search results page.
// Renderers that are not videos (shelves, ads) are ignored; broken videos are reported as skips.
func ParseSearchResults(page string, limit int) (SearchResults, error) {
	raw, err := extractAssignedJSON(page, "ytInitialData")
	if err != nil {
		return nil, err
	}

	var results SearchResults
	accepted := 0
	gjson.GetBytes(raw, searchResultsPath).ForEach(func(_, section gjson.Result) bool {
		section.Get("itemSectionRenderer.contents").ForEach(func(_, item gjson.Result) bool {
			video := item.Get("videoRenderer")
			if !video.Exists() {
				return true
			}

			result := parseVideoRenderer(video)
			results = append(results, result)
			if result.Track != nil {
				accepted++
			}
			return accepted < limit
		})
		return accepted < limit
	})

	return results, nil
}

func parseVideoRenderer(video gjson.Result) SearchResult {
	videoID := video.Get("videoId").String()
	if videoID == "" {
		return skipped("video renderer without videoId")
	}
	title := video.Get("title.runs.0.text").String()
	if title == "" {
		return skipped("video " + videoID + " has no title")
	}

	length := video.Get("lengthText.simpleText").String()
	if length == "" {
		length = "0:00"
	}

	return found(&Track{
		ID:         videoID,
		Title:      title,
		Artist:     video.Get("ownerText.runs.0.text").String(),
		DurationMS: parseClockDuration(length),
		StreamURL:  youtubeWatchURL + videoID,
		Platform:   PlatformYouTube,
		ArtworkURL: youtubeArtwork(videoID),
	})
}

func extractPlayerJSURL(page string) string {
	matches := jsURLRegex.FindStringSubmatch(page)
	if len(matches) < 2 {
		return ""
	}
	return strings.ReplaceAll(matches[1], `\`, "")
}

func youtubeArtwork(videoID string) string {
	return fmt.Sprintf(youtubeArtworkURL, videoID)
}
