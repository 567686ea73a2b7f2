package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"encore/types"
)

const timedTextBaseURL = "https://www.youtube.com"

// transcriptLyrics implements the fallback LyricSource on YouTube's timedtext
// captions, tried over a prioritized language list and flattened to plain
// text. Keyed by the audio's own video ID.
type transcriptLyrics struct {
	httpClient *http.Client
	baseURL    string
	languages  []string
}

// NewTranscriptLyricSource creates the transcript fallback source. languages
// are caption language codes in preference order.
func NewTranscriptLyricSource(languages []string) LyricSource {
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	return &transcriptLyrics{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    timedTextBaseURL,
		languages:  languages,
	}
}

func (t *transcriptLyrics) Name() string {
	return "transcript"
}

func (t *transcriptLyrics) Lyrics(ctx context.Context, ref *types.MediaReference) (string, error) {
	var lastErr error
	for _, lang := range t.languages {
		text, err := t.fetch(ctx, ref.VideoID, lang)
		if err != nil {
			lastErr = err
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	return "", lastErr
}

func (t *transcriptLyrics) fetch(ctx context.Context, videoID, lang string) (string, error) {
	params := url.Values{}
	params.Set("v", videoID)
	params.Set("lang", lang)

	reqURL := fmt.Sprintf("%s/api/timedtext?%s", t.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("timedtext request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("timedtext returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	// No captions for this language comes back as an empty 200 body.
	if len(body) == 0 {
		return "", nil
	}

	return formatTranscript(body)
}

// formatTranscript flattens a timedtext XML document into one caption line
// per row, entities unescaped.
func formatTranscript(body []byte) (string, error) {
	var doc struct {
		XMLName xml.Name `xml:"transcript"`
		Lines   []struct {
			Text string `xml:",chardata"`
		} `xml:"text"`
	}
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("parse timedtext: %w", err)
	}

	lines := make([]string, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		text := strings.TrimSpace(html.UnescapeString(line.Text))
		if text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}
