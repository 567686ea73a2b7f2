package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"encore/types"
)

const (
	ytMusicBaseURL = "https://music.youtube.com/youtubei/v1"

	// Search filter limiting results to songs, which are the entries that
	// carry structured lyrics.
	ytMusicSongsParams = "EgWKAQIIAWoKEAkQBRAKEAMQBA%3D%3D"

	// Lyrics browse IDs carry this prefix in watch-next responses.
	lyricsBrowsePrefix = "MPLYt"
)

// ytMusicLyrics implements the primary LyricSource against the unauthenticated
// YouTube Music internal API: search the track as a song, locate its lyrics
// browse ID from the watch-next response, then browse it for the text.
type ytMusicLyrics struct {
	httpClient *http.Client
	baseURL    string
}

// NewYTMusicLyricSource creates the structured-lyrics source.
func NewYTMusicLyricSource() LyricSource {
	return &ytMusicLyrics{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    ytMusicBaseURL,
	}
}

func (y *ytMusicLyrics) Name() string {
	return "ytmusic"
}

func (y *ytMusicLyrics) Lyrics(ctx context.Context, ref *types.MediaReference) (string, error) {
	query := NormalizeQuery(ref.Title, ref.Channel)

	search, err := y.post(ctx, "/search", map[string]any{
		"query":  query,
		"params": ytMusicSongsParams,
	})
	if err != nil {
		return "", fmt.Errorf("ytmusic search: %w", err)
	}

	// The track's lyric identity is the best song match for its own title
	// and artist, not the audio locator.
	songID := findString(search, "videoId")
	if songID == "" {
		return "", nil
	}

	next, err := y.post(ctx, "/next", map[string]any{"videoId": songID})
	if err != nil {
		return "", fmt.Errorf("ytmusic watch next: %w", err)
	}

	browseID := findStringWithPrefix(next, "browseId", lyricsBrowsePrefix)
	if browseID == "" {
		return "", nil
	}

	browse, err := y.post(ctx, "/browse", map[string]any{"browseId": browseID})
	if err != nil {
		return "", fmt.Errorf("ytmusic browse lyrics: %w", err)
	}

	return findRunsText(browse, "description"), nil
}

// post issues an innertube request with the WEB_REMIX client context.
func (y *ytMusicLyrics) post(ctx context.Context, endpoint string, body map[string]any) (any, error) {
	payload := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    "WEB_REMIX",
				"clientVersion": "1.20240101.01.00",
				"hl":            "en",
			},
		},
	}
	for k, v := range body {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.baseURL+endpoint+"?prettyPrint=false", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://music.youtube.com")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d from %s", resp.StatusCode, endpoint)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return parsed, nil
}

// findString depth-first searches arbitrarily nested innertube JSON for the
// first string value under the given key.
func findString(v any, key string) string {
	return findStringWithPrefix(v, key, "")
}

func findStringWithPrefix(v any, key, prefix string) string {
	switch node := v.(type) {
	case map[string]any:
		if s, ok := node[key].(string); ok && strings.HasPrefix(s, prefix) {
			return s
		}
		for _, child := range node {
			if s := findStringWithPrefix(child, key, prefix); s != "" {
				return s
			}
		}
	case []any:
		for _, child := range node {
			if s := findStringWithPrefix(child, key, prefix); s != "" {
				return s
			}
		}
	}
	return ""
}

// findRunsText locates the first map under key that carries a "runs" list and
// concatenates the run texts, which is how innertube encodes lyric bodies.
func findRunsText(v any, key string) string {
	switch node := v.(type) {
	case map[string]any:
		if child, ok := node[key].(map[string]any); ok {
			if text := joinRuns(child); text != "" {
				return text
			}
		}
		for _, child := range node {
			if text := findRunsText(child, key); text != "" {
				return text
			}
		}
	case []any:
		for _, child := range node {
			if text := findRunsText(child, key); text != "" {
				return text
			}
		}
	}
	return ""
}

func joinRuns(node map[string]any) string {
	runs, ok := node["runs"].([]any)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, run := range runs {
		if m, ok := run.(map[string]any); ok {
			if text, ok := m["text"].(string); ok {
				b.WriteString(text)
			}
		}
	}
	return b.String()
}
